package confinedpump_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	confinedpump "github.com/Swind/go-confined-pump"
	"github.com/Swind/go-confined-pump/store"
	"github.com/Swind/go-confined-pump/store/boltstore"
)

func exampleDSN() (string, func()) {
	dir, err := os.MkdirTemp("", "confinedpump-example")
	if err != nil {
		panic(err)
	}
	return "file:" + filepath.Join(dir, "records.boltdb"), func() { _ = os.RemoveAll(dir) }
}

func quietConfig() *confinedpump.PumpConfig {
	cfg := confinedpump.DefaultPumpConfig()
	cfg.Logger = confinedpump.NewNoOpLogger()
	return cfg
}

// ExampleNewPump demonstrates blocking and fire-and-forget work on one import.
func ExampleNewPump() {
	dsn, cleanup := exampleDSN()
	defer cleanup()

	pump, err := confinedpump.NewPump(dsn, store.Opener(boltstore.Open), quietConfig())
	if err != nil {
		panic(err)
	}
	defer pump.Dispose()

	_ = pump.BeginInvoke(func(ctx context.Context, kv store.KV) error {
		return kv.Put("greeting", []byte("hello"))
	})

	_ = pump.Invoke(func(ctx context.Context, kv store.KV) error {
		v, err := kv.Get("greeting")
		if err != nil {
			return err
		}
		fmt.Println(string(v))
		return nil
	})

	// Output:
	// hello
}

// ExamplePump_BeginTransaction demonstrates grouping writes into one commit.
func ExamplePump_BeginTransaction() {
	dsn, cleanup := exampleDSN()
	defer cleanup()

	pump, err := confinedpump.NewPump(dsn, store.Opener(boltstore.Open), quietConfig())
	if err != nil {
		panic(err)
	}
	defer pump.Dispose()

	_ = pump.BeginTransaction()
	_ = pump.Invoke(func(ctx context.Context, kv store.KV) error {
		_ = kv.Put("a", []byte("1"))
		return kv.Put("b", []byte("2"))
	})
	fmt.Println("in transaction:", pump.InTransaction())

	_ = pump.RollbackTransaction()
	_ = pump.Invoke(func(ctx context.Context, kv store.KV) error {
		keys, _ := kv.Keys()
		fmt.Println("keys after rollback:", len(keys))
		return nil
	})

	// Output:
	// in transaction: true
	// keys after rollback: 0
}

// ExamplePump_InvokeAsync demonstrates suspending inside a work item.
func ExamplePump_InvokeAsync() {
	dsn, cleanup := exampleDSN()
	defer cleanup()

	pump, err := confinedpump.NewPump(dsn, store.Opener(boltstore.Open), quietConfig())
	if err != nil {
		panic(err)
	}
	defer pump.Dispose()

	task, _ := pump.InvokeAsync(func(ctx context.Context, kv store.KV) *confinedpump.Task {
		fmt.Println("fetching")
		return confinedpump.Then(ctx, confinedpump.Delay(10*time.Millisecond), func(error) error {
			fmt.Println("storing on the worker:", pump.IsWorker())
			return kv.Put("fetched", []byte("yes"))
		})
	})
	_ = task.Wait(context.Background())
	fmt.Println("done")

	// Output:
	// fetching
	// storing on the worker: true
	// done
}
