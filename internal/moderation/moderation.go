// Package moderation runs timeout, kick, ban and admin-grant against the
// chat platform with the shared pre-checks and best-effort follow-ups.
package moderation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"scamwatch/internal/apperr"
	"scamwatch/internal/background"
	"scamwatch/internal/observability"
	"scamwatch/internal/storage"
	"scamwatch/internal/utils"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	MinTimeoutMinutes = 1
	MaxTimeoutMinutes = 10080
	MaxBanDeleteDays  = 7
)

// ErrMemberNotFound is returned by Gateway.Member for users outside the guild.
var ErrMemberNotFound = errors.New("member not found")

// Member is a guild member as far as moderation cares.
type Member struct {
	ID              string
	Username        string
	Roles           []string
	HighestPosition int
	IsAdmin         bool
}

func (m Member) HasRole(roleID string) bool {
	for _, role := range m.Roles {
		if role == roleID {
			return true
		}
	}
	return false
}

// Target is the user named in a command; they need not be a member.
type Target struct {
	ID       string
	Username string
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Notice is a direct message to the affected user.
type Notice struct {
	Title       string
	Description string
	Fields      []Field
}

type Gateway interface {
	Member(ctx context.Context, userID string) (Member, error)
	IsBanned(ctx context.Context, userID string) (bool, error)
	Timeout(ctx context.Context, userID string, until time.Time, reason string) error
	Kick(ctx context.Context, userID, reason string) error
	Ban(ctx context.Context, userID, reason string, deleteDays int) error
	AddRole(ctx context.Context, userID, roleID string) error
	DirectMessage(ctx context.Context, userID string, notice Notice) error
	GuildName() string
}

type TimeoutStore interface {
	AddTimeout(ctx context.Context, timeout storage.UserTimeout, action storage.AdminAction) error
}

type Auditor interface {
	Record(ctx context.Context, action storage.AdminAction)
	Notify(action storage.AdminAction)
}

type Options struct {
	AdminRoleID string
	DMEnabled   bool
	DMTimeout   time.Duration
}

type Service struct {
	gw      Gateway
	store   TimeoutStore
	audit   Auditor
	runner  *background.Runner
	metrics *observability.Metrics
	opts    Options
	now     func() time.Time
	logger  *zap.Logger
}

func NewService(gw Gateway, store TimeoutStore, audit Auditor, runner *background.Runner, metrics *observability.Metrics, opts Options, logger *zap.Logger) *Service {
	if opts.DMTimeout <= 0 {
		opts.DMTimeout = 5 * time.Second
	}
	return &Service{gw: gw, store: store, audit: audit, runner: runner, metrics: metrics, opts: opts, now: time.Now, logger: logger}
}

type TimeoutResult struct {
	Until  time.Time
	Reason string
}

func (s *Service) Timeout(ctx context.Context, actor Member, target Target, minutes int, reason string) (TimeoutResult, error) {
	if minutes < MinTimeoutMinutes || minutes > MaxTimeoutMinutes {
		return TimeoutResult{}, apperr.Validationf("duration", "Duration must be between %d and %d minutes.", MinTimeoutMinutes, MaxTimeoutMinutes)
	}
	member, err := s.guardTarget(ctx, actor, target, "timeout", false)
	if err != nil {
		return TimeoutResult{}, err
	}

	reason = utils.SanitizeReason(reason)
	until := s.now().Add(time.Duration(minutes) * time.Minute)
	if err := s.gw.Timeout(ctx, member.ID, until, reason); err != nil {
		return TimeoutResult{}, apperr.Dependency(err, "timeout member")
	}

	action := storage.AdminAction{
		AdminID:       actor.ID,
		AdminUsername: actor.Username,
		ActionType:    storage.ActionTimeout,
		TargetID:      member.ID,
		Details:       fmt.Sprintf("Duration: %d minutes, Reason: %s", minutes, reason),
	}
	err = s.store.AddTimeout(ctx, storage.UserTimeout{
		UserID:          member.ID,
		ModeratorID:     actor.ID,
		DurationMinutes: minutes,
		Reason:          reason,
	}, action)
	if err != nil {
		s.logger.Error("failed to record timeout", zap.String("target_id", member.ID), zap.Error(err))
		s.metrics.SideEffectFailed("audit_row")
	}
	s.audit.Notify(action)

	s.notifyLater(member.ID, Notice{
		Title: "You have been timed out",
		Fields: []Field{
			{Name: "Server", Value: s.gw.GuildName(), Inline: true},
			{Name: "Duration", Value: strconv.Itoa(minutes) + " minutes", Inline: true},
			{Name: "Reason", Value: reason},
		},
	})
	return TimeoutResult{Until: until, Reason: reason}, nil
}

func (s *Service) Kick(ctx context.Context, actor Member, target Target, reason string) (string, error) {
	member, err := s.guardTarget(ctx, actor, target, "kick", false)
	if err != nil {
		return "", err
	}
	reason = utils.SanitizeReason(reason)

	// Notify first: once kicked the bot may share no guild with the user.
	s.notifyNow(ctx, member.ID, Notice{
		Title: "You have been kicked",
		Fields: []Field{
			{Name: "Server", Value: s.gw.GuildName(), Inline: true},
			{Name: "Reason", Value: reason},
		},
	})
	if err := s.gw.Kick(ctx, member.ID, reason); err != nil {
		return "", apperr.Dependency(err, "kick member")
	}

	s.audit.Record(ctx, storage.AdminAction{
		AdminID:       actor.ID,
		AdminUsername: actor.Username,
		ActionType:    storage.ActionKick,
		TargetID:      member.ID,
		Details:       fmt.Sprintf("User: %s, Reason: %s", target.Username, reason),
	})
	return reason, nil
}

func (s *Service) Ban(ctx context.Context, actor Member, target Target, reason string, deleteDays int) (string, error) {
	if deleteDays < 0 || deleteDays > MaxBanDeleteDays {
		return "", apperr.Validationf("delete_days", "Days of messages to delete must be between 0 and %d.", MaxBanDeleteDays)
	}
	banned, err := s.gw.IsBanned(ctx, target.ID)
	if err != nil {
		return "", apperr.Dependency(err, "look up ban")
	}
	if banned {
		return "", apperr.Validation("", "This user is already banned.")
	}
	member, err := s.guardTarget(ctx, actor, target, "ban", true)
	if err != nil {
		return "", err
	}
	reason = utils.SanitizeReason(reason)

	if member.ID != "" {
		s.notifyNow(ctx, member.ID, Notice{
			Title: "You have been banned",
			Fields: []Field{
				{Name: "Server", Value: s.gw.GuildName(), Inline: true},
				{Name: "Reason", Value: reason},
			},
		})
	}
	if err := s.gw.Ban(ctx, target.ID, reason, deleteDays); err != nil {
		return "", apperr.Dependency(err, "ban user")
	}

	s.audit.Record(ctx, storage.AdminAction{
		AdminID:       actor.ID,
		AdminUsername: actor.Username,
		ActionType:    storage.ActionBan,
		TargetID:      target.ID,
		Details:       fmt.Sprintf("User: %s, Reason: %s, Delete Days: %d", target.Username, reason, deleteDays),
	})
	return reason, nil
}

func (s *Service) GrantAdmin(ctx context.Context, actor Member, target Target) error {
	if target.ID == actor.ID {
		return apperr.Validation("", "You cannot add admin role to yourself.")
	}
	if s.opts.AdminRoleID == "" {
		return apperr.Validation("", "Admin role is not configured. Please set ADMIN_ROLE_ID in your environment variables.")
	}
	member, err := s.lookup(ctx, target.ID)
	if err != nil {
		return err
	}
	if member.HasRole(s.opts.AdminRoleID) {
		return apperr.Validation("", "User already has admin role.")
	}
	if err := s.gw.AddRole(ctx, member.ID, s.opts.AdminRoleID); err != nil {
		return apperr.Dependency(err, "add admin role")
	}

	s.audit.Record(ctx, storage.AdminAction{
		AdminID:       actor.ID,
		AdminUsername: actor.Username,
		ActionType:    storage.ActionAddAdmin,
		TargetID:      member.ID,
		Details:       "Added admin role to " + target.Username,
	})
	s.notifyLater(member.ID, Notice{
		Title:       "You have been promoted to Admin",
		Description: "You now have access to admin commands. Use them responsibly!",
		Fields: []Field{
			{Name: "Server", Value: s.gw.GuildName(), Inline: true},
			{Name: "Promoted by", Value: actor.Username, Inline: true},
		},
	})
	return nil
}

// guardTarget runs the shared pre-checks: no self-target, no target at or
// above the actor's highest role, no administrator target. With
// allowAbsent a non-member passes and the zero Member is returned.
func (s *Service) guardTarget(ctx context.Context, actor Member, target Target, verb string, allowAbsent bool) (Member, error) {
	if target.ID == actor.ID {
		return Member{}, apperr.Validationf("", "You cannot %s yourself.", verb)
	}
	member, err := s.gw.Member(ctx, target.ID)
	if errors.Is(err, ErrMemberNotFound) {
		if allowAbsent {
			return Member{}, nil
		}
		return Member{}, apperr.Validation("", "User not found in this server.")
	}
	if err != nil {
		return Member{}, apperr.Dependency(err, "look up member")
	}
	if member.HighestPosition >= actor.HighestPosition {
		return Member{}, apperr.Validationf("", "You cannot %s a user with equal or higher role than you.", verb)
	}
	if member.IsAdmin {
		return Member{}, apperr.Validationf("", "You cannot %s an administrator.", verb)
	}
	return member, nil
}

func (s *Service) lookup(ctx context.Context, userID string) (Member, error) {
	member, err := s.gw.Member(ctx, userID)
	if errors.Is(err, ErrMemberNotFound) {
		return Member{}, apperr.Validation("", "User not found in this server.")
	}
	if err != nil {
		return Member{}, apperr.Dependency(err, "look up member")
	}
	return member, nil
}

func (s *Service) notifyNow(ctx context.Context, userID string, notice Notice) {
	if !s.opts.DMEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.DMTimeout)
	defer cancel()
	if err := s.gw.DirectMessage(ctx, userID, notice); err != nil {
		s.logger.Info("could not DM user", zap.String("user_id", userID), zap.Error(err))
		s.metrics.SideEffectFailed("dm")
	}
}

func (s *Service) notifyLater(userID string, notice Notice) {
	if !s.opts.DMEnabled || s.runner == nil {
		return
	}
	s.runner.Go("dm", func(ctx context.Context) error {
		return s.gw.DirectMessage(ctx, userID, notice)
	})
}
