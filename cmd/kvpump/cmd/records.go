package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-confined-pump/core"
	"github.com/Swind/go-confined-pump/store"
)

func PutCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "Store a value",
		ArgsUsage: "KEY VALUE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "tx",
				Usage: "write inside an explicit transaction",
			},
		},
		Action: putAction,
	}
}

func putAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: put KEY VALUE", 2)
	}
	key, value := c.Args().Get(0), c.Args().Get(1)

	return withPump(c, func(p *core.Pump[store.KV]) error {
		put := func(_ context.Context, kv store.KV) error {
			return kv.Put(key, []byte(value))
		}
		if !c.Bool("tx") {
			return p.Invoke(put)
		}

		if err := p.BeginTransaction(); err != nil {
			return err
		}
		if err := p.Invoke(put); err != nil {
			_ = p.RollbackTransaction()
			return err
		}
		return p.CommitTransaction()
	})
}

func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print a value",
		ArgsUsage: "KEY",
		Action:    getAction,
	}
}

func getAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: get KEY", 2)
	}
	key := c.Args().First()

	return withPump(c, func(p *core.Pump[store.KV]) error {
		var value []byte
		err := p.Invoke(func(_ context.Context, kv store.KV) error {
			var err error
			value, err = kv.Get(key)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, string(value))
		return nil
	})
}

func DelCommand() *cli.Command {
	return &cli.Command{
		Name:      "del",
		Aliases:   []string{"rm"},
		Usage:     "Delete a key",
		ArgsUsage: "KEY",
		Action:    delAction,
	}
}

func delAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: del KEY", 2)
	}
	key := c.Args().First()

	return withPump(c, func(p *core.Pump[store.KV]) error {
		return p.Invoke(func(_ context.Context, kv store.KV) error {
			return kv.Delete(key)
		})
	})
}

func KeysCommand() *cli.Command {
	return &cli.Command{
		Name:   "keys",
		Usage:  "List keys with their sizes",
		Action: keysAction,
	}
}

// keysAction reads every value on the worker, then formats off the worker
// goroutine and prints from a continuation back on it.
func keysAction(c *cli.Context) error {
	return withPump(c, func(p *core.Pump[store.KV]) error {
		task, err := p.InvokeAsync(func(ctx context.Context, kv store.KV) *core.Task {
			keys, err := kv.Keys()
			if err != nil {
				return core.Completed(err)
			}
			sizes := make(map[string]int, len(keys))
			for _, k := range keys {
				v, err := kv.Get(k)
				if err != nil {
					return core.Completed(err)
				}
				sizes[k] = len(v)
			}

			var lines []string
			formatted := core.Go(func() error {
				for _, k := range keys {
					lines = append(lines, fmt.Sprintf("%s\t%d", k, sizes[k]))
				}
				return nil
			})
			return core.Then(ctx, formatted, func(err error) error {
				if err != nil {
					return err
				}
				for _, line := range lines {
					fmt.Fprintln(c.App.Writer, line)
				}
				return nil
			})
		})
		if err != nil {
			return err
		}
		return task.Wait(c.Context)
	})
}
