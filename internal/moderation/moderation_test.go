package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	"scamwatch/internal/apperr"
	"scamwatch/internal/background"
	"scamwatch/internal/storage"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGateway struct {
	mu       sync.Mutex
	members  map[string]Member
	banned   map[string]bool
	failWith error
	dmErr    error
	calls    []string
	dms      []string
}

func newGateway(members ...Member) *fakeGateway {
	gw := &fakeGateway{members: map[string]Member{}, banned: map[string]bool{}}
	for _, m := range members {
		gw.members[m.ID] = m
	}
	return gw
}

func (g *fakeGateway) record(call string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	return g.failWith
}

func (g *fakeGateway) Member(_ context.Context, userID string) (Member, error) {
	m, ok := g.members[userID]
	if !ok {
		return Member{}, ErrMemberNotFound
	}
	return m, nil
}

func (g *fakeGateway) IsBanned(_ context.Context, userID string) (bool, error) {
	return g.banned[userID], nil
}

func (g *fakeGateway) Timeout(_ context.Context, userID string, _ time.Time, _ string) error {
	return g.record("timeout:" + userID)
}

func (g *fakeGateway) Kick(_ context.Context, userID, _ string) error {
	return g.record("kick:" + userID)
}

func (g *fakeGateway) Ban(_ context.Context, userID, _ string, _ int) error {
	return g.record("ban:" + userID)
}

func (g *fakeGateway) AddRole(_ context.Context, userID, roleID string) error {
	return g.record("role:" + userID + ":" + roleID)
}

func (g *fakeGateway) DirectMessage(_ context.Context, userID string, notice Notice) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "dm:"+userID)
	g.dms = append(g.dms, notice.Title)
	return g.dmErr
}

func (g *fakeGateway) GuildName() string { return "Test Guild" }

type fakeStore struct {
	timeouts []storage.UserTimeout
	actions  []storage.AdminAction
	err      error
}

func (f *fakeStore) AddTimeout(_ context.Context, timeout storage.UserTimeout, action storage.AdminAction) error {
	if f.err != nil {
		return f.err
	}
	f.timeouts = append(f.timeouts, timeout)
	f.actions = append(f.actions, action)
	return nil
}

type fakeAudit struct {
	recorded []storage.AdminAction
	notified []storage.AdminAction
}

func (f *fakeAudit) Record(_ context.Context, action storage.AdminAction) {
	f.recorded = append(f.recorded, action)
}

func (f *fakeAudit) Notify(action storage.AdminAction) {
	f.notified = append(f.notified, action)
}

var (
	moderator = Member{ID: "mod", Username: "mod", HighestPosition: 10}
	regular   = Member{ID: "user", Username: "user", HighestPosition: 2}
	peer      = Member{ID: "peer", Username: "peer", HighestPosition: 10}
	admin     = Member{ID: "adm", Username: "adm", HighestPosition: 1, IsAdmin: true}
)

type fixture struct {
	svc    *Service
	gw     *fakeGateway
	store  *fakeStore
	audit  *fakeAudit
	runner *background.Runner
}

func newFixture(members ...Member) *fixture {
	f := &fixture{
		gw:     newGateway(members...),
		store:  &fakeStore{},
		audit:  &fakeAudit{},
		runner: background.New(zap.NewNop(), nil, time.Second),
	}
	f.svc = NewService(f.gw, f.store, f.audit, f.runner, nil, Options{AdminRoleID: "admin-role", DMEnabled: true}, zap.NewNop())
	return f
}

func TestTimeoutRecordsBothRows(t *testing.T) {
	f := newFixture(moderator, regular)
	result, err := f.svc.Timeout(context.Background(), moderator, Target{ID: "user", Username: "user"}, 30, "")
	require.NoError(t, err)
	f.runner.Wait()

	assert.Equal(t, "No reason provided", result.Reason)
	require.Len(t, f.store.timeouts, 1)
	assert.Equal(t, 30, f.store.timeouts[0].DurationMinutes)
	assert.Equal(t, "Duration: 30 minutes, Reason: No reason provided", f.store.actions[0].Details)
	assert.Len(t, f.audit.notified, 1)
	assert.Equal(t, []string{"timeout:user", "dm:user"}, f.gw.calls)
}

func TestPreChecks(t *testing.T) {
	f := newFixture(moderator, regular, peer, admin)
	ctx := context.Background()

	cases := []struct {
		name   string
		target Target
		want   string
	}{
		{"self", Target{ID: "mod"}, "You cannot kick yourself."},
		{"higher or equal", Target{ID: "peer"}, "You cannot kick a user with equal or higher role than you."},
		{"administrator", Target{ID: "adm"}, "You cannot kick an administrator."},
		{"not a member", Target{ID: "ghost"}, "User not found in this server."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Kick(ctx, moderator, tc.target, "spam")
			msg, ok := apperr.UserMessage(err)
			require.True(t, ok)
			assert.Equal(t, tc.want, msg)
		})
	}
	assert.Empty(t, f.gw.calls)
	assert.Empty(t, f.audit.recorded)
}

func TestTimeoutDurationBounds(t *testing.T) {
	f := newFixture(moderator, regular)
	for _, minutes := range []int{0, MaxTimeoutMinutes + 1} {
		_, err := f.svc.Timeout(context.Background(), moderator, Target{ID: "user"}, minutes, "x")
		require.ErrorIs(t, err, apperr.ErrValidation)
	}
}

func TestPrimaryFailureSkipsLogging(t *testing.T) {
	f := newFixture(moderator, regular)
	f.gw.failWith = errors.New("50013: Missing Permissions")

	_, err := f.svc.Timeout(context.Background(), moderator, Target{ID: "user"}, 10, "x")
	require.ErrorIs(t, err, apperr.ErrDependency)
	f.runner.Wait()
	assert.Empty(t, f.store.timeouts)
	assert.Empty(t, f.audit.notified)
	assert.NotContains(t, f.gw.calls, "dm:user")
}

func TestLoggingFailureStillSucceeds(t *testing.T) {
	f := newFixture(moderator, regular)
	f.store.err = errors.New("database is locked")
	f.gw.dmErr = errors.New("cannot send messages to this user")

	_, err := f.svc.Timeout(context.Background(), moderator, Target{ID: "user"}, 10, "x")
	require.NoError(t, err)
	f.runner.Wait()
}

func TestKickSendsNoticeFirst(t *testing.T) {
	f := newFixture(moderator, regular)
	_, err := f.svc.Kick(context.Background(), moderator, Target{ID: "user", Username: "user"}, "scam links")
	require.NoError(t, err)

	assert.Equal(t, []string{"dm:user", "kick:user"}, f.gw.calls)
	require.Len(t, f.audit.recorded, 1)
	assert.Equal(t, "User: user, Reason: scam links", f.audit.recorded[0].Details)
}

func TestBanNonMemberAndAlreadyBanned(t *testing.T) {
	f := newFixture(moderator)
	_, err := f.svc.Ban(context.Background(), moderator, Target{ID: "ghost", Username: "ghost"}, "alt account", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"ban:ghost"}, f.gw.calls)
	assert.Equal(t, storage.ActionBan, f.audit.recorded[0].ActionType)

	f.gw.banned["ghost"] = true
	_, err = f.svc.Ban(context.Background(), moderator, Target{ID: "ghost"}, "", 0)
	msg, _ := apperr.UserMessage(err)
	assert.Equal(t, "This user is already banned.", msg)

	_, err = f.svc.Ban(context.Background(), moderator, Target{ID: "other"}, "", 8)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestBanLongReasonIsCapped(t *testing.T) {
	f := newFixture(moderator, regular)
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	reason, err := f.svc.Ban(context.Background(), moderator, Target{ID: "user"}, string(long), 0)
	require.NoError(t, err)
	assert.Len(t, reason, 512)
}

func TestGrantAdmin(t *testing.T) {
	holder := Member{ID: "holder", Roles: []string{"admin-role"}}
	f := newFixture(moderator, regular, holder)
	ctx := context.Background()

	require.NoError(t, f.svc.GrantAdmin(ctx, moderator, Target{ID: "user", Username: "user"}))
	f.runner.Wait()
	assert.Contains(t, f.gw.calls, "role:user:admin-role")
	assert.Equal(t, "Added admin role to user", f.audit.recorded[0].Details)

	err := f.svc.GrantAdmin(ctx, moderator, Target{ID: "holder"})
	msg, _ := apperr.UserMessage(err)
	assert.Equal(t, "User already has admin role.", msg)

	err = f.svc.GrantAdmin(ctx, moderator, Target{ID: "mod"})
	msg, _ = apperr.UserMessage(err)
	assert.Equal(t, "You cannot add admin role to yourself.", msg)

	f.svc.opts.AdminRoleID = ""
	err = f.svc.GrantAdmin(ctx, moderator, Target{ID: "user"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}
