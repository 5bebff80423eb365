package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-packedserial/logger"
)

func TestManager_StartStopWait(t *testing.T) {
	mgr := NewManager(context.Background(), logger.NewNop())

	started := make(chan struct{})
	require.NoError(t, mgr.Start("worker", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))

	<-started
	assert.Equal(t, 1, mgr.Count())

	mgr.Stop()
	mgr.Wait()
	assert.Equal(t, 0, mgr.Count())

	// the manager is re-armed after Wait
	done := make(chan struct{})
	require.NoError(t, mgr.Start("again", func(context.Context) { close(done) }))
	<-done
	mgr.Wait()
}

func TestManager_StartAfterStop(t *testing.T) {
	mgr := NewManager(context.Background(), logger.NewNop())
	mgr.Stop()

	err := mgr.Start("late", func(context.Context) {})
	require.ErrorIs(t, err, ErrStopped)
}

func TestManager_ParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mgr := NewManager(ctx, logger.NewNop())
	cancel()
	mgr.Wait()

	err := mgr.Start("late", func(context.Context) {})
	require.ErrorIs(t, err, ErrStopped)
}

func TestManager_RecoverPanic(t *testing.T) {
	mgr := NewManager(context.Background(), logger.NewNop())

	require.NoError(t, mgr.Start("panicky", func(context.Context) {
		panic("boom")
	}))

	mgr.Wait()
	assert.Equal(t, 0, mgr.Count())
}

func TestManager_StartInterval(t *testing.T) {
	mgr := NewManager(context.Background(), logger.NewNop())

	var calls atomic.Int32
	require.NoError(t, mgr.StartInterval("tick", 5*time.Millisecond, true, func(context.Context) bool {
		return calls.Add(1) < 3
	}))

	mgr.Wait()
	assert.Equal(t, int32(3), calls.Load())

	require.Error(t, mgr.StartInterval("bad", 0, false, func(context.Context) bool { return true }))
}
