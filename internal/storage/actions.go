package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Action types recorded in admin_actions.
const (
	ActionAddAdmin           = "add_admin"
	ActionBan                = "ban"
	ActionKick               = "kick"
	ActionTimeout            = "timeout"
	ActionClearReport        = "clear_report"
	ActionClearDatabase      = "clear_database"
	ActionExportDatabase     = "export_database"
	ActionUpdateReportStatus = "update_report_status"
)

type AdminAction struct {
	ID            int64     `db:"id"`
	AdminID       string    `db:"admin_id"`
	AdminUsername string    `db:"admin_username"`
	ActionType    string    `db:"action_type"`
	TargetID      string    `db:"target_id"`
	Details       string    `db:"details"`
	CreatedAt     time.Time `db:"-"`
}

type UserTimeout struct {
	ID              int64     `db:"id"`
	UserID          string    `db:"user_id"`
	ModeratorID     string    `db:"moderator_id"`
	DurationMinutes int       `db:"duration_minutes"`
	Reason          string    `db:"reason"`
	CreatedAt       time.Time `db:"-"`
}

type actionRow struct {
	AdminAction
	CreatedAtMs int64 `db:"created_at"`
}

type timeoutRow struct {
	UserTimeout
	CreatedAtMs int64 `db:"created_at"`
}

func (s *Store) AddAdminAction(ctx context.Context, action AdminAction) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO admin_actions (admin_id, admin_username, action_type, target_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		action.AdminID, action.AdminUsername, action.ActionType, action.TargetID, action.Details, toMillis(s.now()),
	)
	return errors.Wrap(err, "insert admin action")
}

// AddTimeout records a timeout together with its audit entry.
func (s *Store) AddTimeout(ctx context.Context, timeout UserTimeout, action AdminAction) (err error) {
	now := toMillis(s.now())
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin timeout insert")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO user_timeouts (user_id, moderator_id, duration_minutes, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		timeout.UserID, timeout.ModeratorID, timeout.DurationMinutes, timeout.Reason, now,
	)
	if err != nil {
		return errors.Wrap(err, "insert timeout")
	}
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO admin_actions (admin_id, admin_username, action_type, target_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		action.AdminID, action.AdminUsername, action.ActionType, action.TargetID, action.Details, now,
	)
	if err != nil {
		return errors.Wrap(err, "insert timeout action")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit timeout insert")
	}
	return nil
}

func (s *Store) AllAdminActions(ctx context.Context) ([]AdminAction, error) {
	var rows []actionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, admin_id, admin_username, action_type, target_id, details, created_at
		FROM admin_actions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "select admin actions")
	}
	out := make([]AdminAction, 0, len(rows))
	for _, row := range rows {
		action := row.AdminAction
		action.CreatedAt = fromMillis(row.CreatedAtMs)
		out = append(out, action)
	}
	return out, nil
}

func (s *Store) AllTimeouts(ctx context.Context) ([]UserTimeout, error) {
	var rows []timeoutRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, moderator_id, duration_minutes, reason, created_at
		FROM user_timeouts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "select timeouts")
	}
	out := make([]UserTimeout, 0, len(rows))
	for _, row := range rows {
		timeout := row.UserTimeout
		timeout.CreatedAt = fromMillis(row.CreatedAtMs)
		out = append(out, timeout)
	}
	return out, nil
}

// CountAdminActions returns the number of audit rows per action type for
// the given types.
func (s *Store) CountAdminActions(ctx context.Context, types ...string) (map[string]int, error) {
	counts := make(map[string]int, len(types))
	for _, actionType := range types {
		var count int
		err := s.db.GetContext(ctx, &count, s.rebind(`SELECT COUNT(*) FROM admin_actions WHERE action_type = ?`), actionType)
		if err != nil {
			return nil, errors.Wrapf(err, "count %s actions", actionType)
		}
		counts[actionType] = count
	}
	return counts, nil
}

func (s *Store) CountTimeouts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM user_timeouts`); err != nil {
		return 0, errors.Wrap(err, "count timeouts")
	}
	return count, nil
}

func (s *Store) CountAllAdminActions(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM admin_actions`); err != nil {
		return 0, errors.Wrap(err, "count admin actions")
	}
	return count, nil
}
