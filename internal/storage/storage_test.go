package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"scamwatch/internal/apperr"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)

	_, err = store.Migrate()
	require.NoError(t, err)
	store.WithClock(&stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)})
	return store
}

func newReport(id string) *Report {
	return &Report{
		ID:               id,
		ReporterID:       "reporter",
		ReporterUsername: "alice",
		OffenderName:     "scammer " + id,
		Description:      "sold fake items",
		Links:            []string{"https://scam.test/pay"},
		ScreenshotPaths:  []string{"uploads/" + id + "_a.webp"},
		ReporterIP:       "unavailable",
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	n, err := store.Migrate()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCreateAndGetReport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	report := newReport("r1")
	report.IsVPN = true
	require.NoError(t, store.CreateReport(ctx, report))
	assert.Equal(t, StatusPending, report.Status)
	assert.False(t, report.CreatedAt.IsZero())

	got, err := store.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "scammer r1", got.OffenderName)
	assert.Equal(t, []string{"https://scam.test/pay"}, got.Links)
	assert.Equal(t, []string{"uploads/r1_a.webp"}, got.ScreenshotPaths)
	assert.True(t, got.IsVPN)
	assert.Equal(t, report.CreatedAt, got.CreatedAt)
}

func TestCreateReportRequiresEvidence(t *testing.T) {
	store := newTestStore(t)
	report := newReport("r1")
	report.ScreenshotPaths = nil
	require.Error(t, store.CreateReport(context.Background(), report))

	_, err := store.GetReport(context.Background(), "r1")
	require.ErrorIs(t, err, ErrReportNotFound)
}

func TestCreateReportDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateReport(ctx, newReport("r1")))
	err := store.CreateReport(ctx, newReport("r1"))
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(errors.Cause(err)))
}

func TestGetReportNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetReport(context.Background(), "missing")
	require.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestListReportsFiltersByStatusNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		report := newReport(fmt.Sprintf("r%d", i))
		if i%2 == 0 && i < 6 {
			report.Status = StatusResolved
		}
		require.NoError(t, store.CreateReport(ctx, report))
	}

	got, err := store.ListReports(ctx, ReportFilter{Status: StatusResolved, Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "r4", got[0].ID)
	assert.Equal(t, "r2", got[1].ID)
	assert.Equal(t, "r0", got[2].ID)
	for _, report := range got {
		assert.Equal(t, StatusResolved, report.Status)
	}
}

func TestListReportsSearchAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		require.NoError(t, store.CreateReport(ctx, newReport(fmt.Sprintf("id-%02d", i))))
	}
	special := newReport("special")
	special.OffenderName = "Mr_Percent%"
	special.OffenderID = "998877"
	require.NoError(t, store.CreateReport(ctx, special))

	all, err := store.ListReports(ctx, ReportFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, all, MaxListLimit)

	def, err := store.ListReports(ctx, ReportFilter{})
	require.NoError(t, err)
	assert.Len(t, def, DefaultListLimit)

	byName, err := store.ListReports(ctx, ReportFilter{Search: "mr_percent%"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "special", byName[0].ID)

	byOffenderID, err := store.ListReports(ctx, ReportFilter{Search: "8877"})
	require.NoError(t, err)
	require.Len(t, byOffenderID, 1)

	wildcard, err := store.ListReports(ctx, ReportFilter{Search: "_"})
	require.NoError(t, err)
	assert.Len(t, wildcard, 1, "underscore must match literally")
}

func TestUpdateReportStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateReport(ctx, newReport("r1")))

	require.NoError(t, store.UpdateReportStatus(ctx, "r1", StatusReviewed))
	got, err := store.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusReviewed, got.Status)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	require.ErrorIs(t, store.UpdateReportStatus(ctx, "missing", StatusReviewed), ErrReportNotFound)
	require.Error(t, store.UpdateReportStatus(ctx, "r1", Status("archived")))
}

func TestDeleteReportTwice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateReport(ctx, newReport("r1")))

	require.NoError(t, store.DeleteReport(ctx, "r1"))
	require.ErrorIs(t, store.DeleteReport(ctx, "r1"), ErrReportNotFound)
}

func TestClearReportsPreservesAuditLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateReport(ctx, newReport("r1")))
	require.NoError(t, store.CreateReport(ctx, newReport("r2")))
	require.NoError(t, store.AddTimeout(ctx,
		UserTimeout{UserID: "u1", ModeratorID: "m1", DurationMinutes: 10, Reason: "spam"},
		AdminAction{AdminID: "m1", AdminUsername: "mod", ActionType: ActionTimeout, TargetID: "u1", Details: "Duration: 10 minutes, Reason: spam"},
	))

	files, err := store.ListReportFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	result, err := store.ClearReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Reports)
	assert.Equal(t, int64(1), result.Timeouts)

	reports, err := store.AllReports(ctx)
	require.NoError(t, err)
	assert.Empty(t, reports)

	actions, err := store.AllAdminActions(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionTimeout, actions[0].ActionType)
}

func TestCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	vpn := newReport("r1")
	vpn.IsVPN = true
	require.NoError(t, store.CreateReport(ctx, vpn))
	dismissed := newReport("r2")
	dismissed.Status = StatusDismissed
	require.NoError(t, store.CreateReport(ctx, dismissed))
	require.NoError(t, store.AddAdminAction(ctx, AdminAction{AdminID: "a", AdminUsername: "admin", ActionType: ActionBan, TargetID: "u"}))

	byStatus, err := store.CountReportsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, byStatus[StatusPending])
	assert.Equal(t, 1, byStatus[StatusDismissed])
	assert.Equal(t, 0, byStatus[StatusResolved])

	vpnCount, err := store.CountVPNReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, vpnCount)

	actions, err := store.CountAdminActions(ctx, ActionBan, ActionKick)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{ActionBan: 1, ActionKick: 0}, actions)
}
