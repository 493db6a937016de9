package background

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"scamwatch/internal/observability"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFailuresAreLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	runner := New(zap.New(core), observability.NewMetrics(), time.Second)

	var ran int32
	runner.Go("dm", func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return errors.New("cannot send messages to this user")
	})
	runner.Go("audit_channel", func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	runner.Go("audit_row", func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		panic("boom")
	})
	runner.Wait()

	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))
	require.Equal(t, 2, logs.Len())
	kinds := []string{}
	for _, entry := range logs.All() {
		kinds = append(kinds, entry.ContextMap()["kind"].(string))
	}
	assert.ElementsMatch(t, []string{"dm", "audit_row"}, kinds)
}

func TestTasksGetTimeout(t *testing.T) {
	runner := New(zap.NewNop(), nil, 20*time.Millisecond)
	var deadlineHit int32
	runner.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		atomic.StoreInt32(&deadlineHit, 1)
		return ctx.Err()
	})
	runner.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&deadlineHit))
}

func TestShutdownCancelsStragglers(t *testing.T) {
	runner := New(zap.NewNop(), nil, time.Minute)
	runner.Go("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, runner.Shutdown(ctx), context.DeadlineExceeded)
}
