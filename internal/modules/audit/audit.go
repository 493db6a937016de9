package audit

import (
	"context"

	"scamwatch/internal/background"
	"scamwatch/internal/observability"
	"scamwatch/internal/storage"

	"go.uber.org/zap"
)

type Store interface {
	AddAdminAction(ctx context.Context, action storage.AdminAction) error
}

type Logger struct {
	store   Store
	logger  *zap.Logger
	runner  *background.Runner
	metrics *observability.Metrics
	notify  func(context.Context, storage.AdminAction) error
}

func NewLogger(store Store, runner *background.Runner, metrics *observability.Metrics, logger *zap.Logger) *Logger {
	return &Logger{store: store, runner: runner, metrics: metrics, logger: logger}
}

// SetNotifier installs the audit channel poster. It runs detached through
// the background runner after every recorded action.
func (l *Logger) SetNotifier(notify func(context.Context, storage.AdminAction) error) {
	l.notify = notify
}

// Record appends action to the audit log. A failed write is logged and
// counted; it never reaches the caller.
func (l *Logger) Record(ctx context.Context, action storage.AdminAction) {
	if l.store != nil {
		if err := l.store.AddAdminAction(ctx, action); err != nil {
			l.logger.Error("audit write failed", zap.String("action", action.ActionType), zap.String("target_id", action.TargetID), zap.Error(err))
			l.metrics.SideEffectFailed("audit_row")
			observability.CaptureError("audit_row", err)
		}
	}
	l.Notify(action)
	l.logger.Info("audit", zap.String("admin_id", action.AdminID), zap.String("action", action.ActionType), zap.String("target_id", action.TargetID), zap.String("details", action.Details))
}

// Notify posts action to the audit channel without writing a row, for
// actions whose row was written in a transaction of their own.
func (l *Logger) Notify(action storage.AdminAction) {
	if l.notify == nil || l.runner == nil {
		return
	}
	notify := l.notify
	l.runner.Go("audit_channel", func(ctx context.Context) error {
		return notify(ctx, action)
	})
}
