// Package background runs best-effort side effects (DMs, audit channel
// posts, audit rows) detached from the command that triggered them.
package background

import (
	"context"
	"sync"
	"time"

	"scamwatch/internal/observability"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Runner struct {
	base    context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

func New(logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	return &Runner{base: base, cancel: cancel, timeout: timeout, logger: logger, metrics: metrics}
}

// Go runs fn on its own goroutine with the runner's timeout. Errors and
// panics are logged, counted under kind and sent to Sentry; the caller
// never sees them.
func (r *Runner) Go(kind string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(r.base, r.timeout)
		defer cancel()
		r.report(kind, r.run(ctx, fn))
	}()
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

func (r *Runner) report(kind string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("side effect failed", zap.String("kind", kind), zap.Error(err))
	r.metrics.SideEffectFailed(kind)
	observability.CaptureError(kind, err)
}

func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown waits for running tasks until ctx is done, then cancels them.
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
