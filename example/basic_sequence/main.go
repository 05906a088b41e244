package main

import (
	"context"
	"fmt"
	"maps"
	"time"

	confinedpump "github.com/Swind/go-confined-pump"
	"github.com/Swind/go-confined-pump/internal/goid"
)

// notebook is a toy resource that panics when touched off the goroutine that
// opened it, like a handle from a thread-bound C library would misbehave.
type notebook struct {
	owner   uint64
	lines   map[string]string
	pending map[string]string
}

func openNotebook(string) (*notebook, error) {
	return &notebook{owner: goid.Current(), lines: map[string]string{}}, nil
}

func (n *notebook) guard() {
	if goid.Current() != n.owner {
		panic("notebook used from a foreign goroutine")
	}
}

func (n *notebook) Write(key, line string) {
	n.guard()
	if n.pending != nil {
		n.pending[key] = line
		return
	}
	n.lines[key] = line
}

func (n *notebook) Refresh() error { n.guard(); return nil }

func (n *notebook) BeginTransaction() (confinedpump.Transaction, error) {
	n.guard()
	n.pending = map[string]string{}
	return n, nil
}

func (n *notebook) Commit() error {
	n.guard()
	maps.Copy(n.lines, n.pending)
	n.pending = nil
	return nil
}

func (n *notebook) Rollback() error { n.guard(); n.pending = nil; return nil }

func (n *notebook) Close() error { n.guard(); return nil }

func main() {
	fmt.Println("=== Basic Sequence Example ===")

	// 1. Start a pump; the notebook is opened on its worker goroutine
	pump, err := confinedpump.NewPump("notebook", confinedpump.Opener[*notebook](openNotebook), nil)
	if err != nil {
		panic(err)
	}

	// 2. Fire-and-forget items run one after another, in order
	for i := 1; i <= 3; i++ {
		_ = pump.BeginInvoke(func(ctx context.Context, n *notebook) error {
			fmt.Printf("Item %d running on worker goroutine %d\n", i, goid.Current())
			n.Write(fmt.Sprint(i), "written")
			time.Sleep(50 * time.Millisecond)
			return nil
		})
	}

	// 3. A blocking item waits for everything queued before it
	_ = pump.Invoke(func(ctx context.Context, n *notebook) error {
		fmt.Printf("Notebook holds %d lines\n", len(n.lines))
		return nil
	})

	// 4. Dispose closes the notebook on the worker as well
	if err := pump.Dispose(); err != nil {
		panic(err)
	}
	fmt.Println("=== Example Finished ===")
}
