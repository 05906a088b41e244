package core

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTaskFailed = errors.New("task failed")

// TestTask_Completed verifies a pre-resolved task
func TestTask_Completed(t *testing.T) {
	task := Completed(errTaskFailed)

	assert.True(t, task.IsDone())
	assert.ErrorIs(t, task.Err(), errTaskFailed)
	assert.ErrorIs(t, task.Wait(context.Background()), errTaskFailed)
}

// TestTask_ResolvesOnce verifies only the first result sticks
// Given: A task source
// When: It is resolved twice
// Then: The first result wins and the second call reports false
func TestTask_ResolvesOnce(t *testing.T) {
	src := NewTaskSource()
	assert.Nil(t, src.Task().Err())
	assert.False(t, src.Task().IsDone())

	assert.True(t, src.SetResult(nil))
	assert.False(t, src.SetResult(errTaskFailed))

	assert.NoError(t, src.Task().Err())
}

// TestTask_WaitHonoursContext verifies waiting gives up when ctx ends
func TestTask_WaitHonoursContext(t *testing.T) {
	src := NewTaskSource()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := src.Task().Wait(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, src.Task().IsDone())
}

// TestTask_Go verifies results and panics of background work
// Given: Background functions that succeed, fail and panic
// When: Their tasks finish
// Then: Each task carries the matching outcome
func TestTask_Go(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, Go(func() error { return nil }).Wait(ctx))
	assert.ErrorIs(t, Go(func() error { return errTaskFailed }).Wait(ctx), errTaskFailed)

	err := Go(func() error { panic("kaboom") }).Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	assert.ErrorIs(t, Go(nil).Wait(ctx), ErrInvalidArgument)
}

// TestTask_Delay verifies the timer task
func TestTask_Delay(t *testing.T) {
	start := time.Now()
	require.NoError(t, Delay(20*time.Millisecond).Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	assert.True(t, Delay(0).IsDone())
}

// TestAwait_WithoutExecutionContext verifies continuations outside a pump
// Given: A context without an ExecutionContext
// When: A continuation is awaited on a failing task
// Then: The continuation sees the error and the result task follows it
func TestAwait_WithoutExecutionContext(t *testing.T) {
	var seen error
	result := Await(context.Background(), Go(func() error { return errTaskFailed }), func(err error) *Task {
		seen = err
		return nil
	})

	require.NoError(t, result.Wait(context.Background()))
	assert.ErrorIs(t, seen, errTaskFailed)
}

// TestAwait_ChainsReturnedTask verifies the result waits for the continuation's task
func TestAwait_ChainsReturnedTask(t *testing.T) {
	inner := NewTaskSource()
	result := Await(context.Background(), Completed(nil), func(error) *Task {
		return inner.Task()
	})

	time.Sleep(10 * time.Millisecond)
	assert.False(t, result.IsDone())

	inner.SetResult(errTaskFailed)
	assert.ErrorIs(t, result.Wait(context.Background()), errTaskFailed)
}

// TestAwait_PanickingContinuation verifies panics become the result error
func TestAwait_PanickingContinuation(t *testing.T) {
	result := Await(context.Background(), Completed(nil), func(error) *Task {
		panic("continuation broke")
	})

	err := result.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "continuation broke")
}

// TestAwait_InvalidArguments verifies nil inputs fail the result task
func TestAwait_InvalidArguments(t *testing.T) {
	assert.ErrorIs(t, Await(context.Background(), nil, func(error) *Task { return nil }).Err(), ErrInvalidArgument)
	assert.ErrorIs(t, Await(context.Background(), Completed(nil), nil).Err(), ErrInvalidArgument)
	assert.ErrorIs(t, Then(context.Background(), Completed(nil), nil).Err(), ErrInvalidArgument)
}

// TestAwait_CompletedContextFailsResult verifies awaiting into a finished context
// Given: An ExecutionContext that already completed
// When: A continuation is awaited against it
// Then: The result task fails with ErrContextCompleted, the drop hook is told and the continuation never runs
func TestAwait_CompletedContextFailsResult(t *testing.T) {
	ec := newExecutionContext(false, nil)
	var dropped error
	ec.onDrop = func(err error) { dropped = err }
	ec.Complete()
	ctx := WithExecutionContext(context.Background(), ec)

	ran := false
	result := Await(ctx, Completed(nil), func(error) *Task {
		ran = true
		return nil
	})

	assert.ErrorIs(t, result.Wait(context.Background()), ErrContextCompleted)
	assert.False(t, ran)
	assert.ErrorIs(t, dropped, ErrContextCompleted)
}

// TestThen_PropagatesError verifies synchronous continuations
func TestThen_PropagatesError(t *testing.T) {
	result := Then(context.Background(), Completed(nil), func(error) error {
		return errTaskFailed
	})
	assert.ErrorIs(t, result.Wait(context.Background()), errTaskFailed)
}
