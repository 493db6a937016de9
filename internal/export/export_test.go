package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scamwatch/internal/storage"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	reports  []storage.Report
	actions  []storage.AdminAction
	timeouts []storage.UserTimeout
	err      error
}

func (f fakeSource) AllReports(context.Context) ([]storage.Report, error) { return f.reports, f.err }

func (f fakeSource) AllAdminActions(context.Context) ([]storage.AdminAction, error) {
	return f.actions, f.err
}

func (f fakeSource) AllTimeouts(context.Context) ([]storage.UserTimeout, error) {
	return f.timeouts, f.err
}

var exportTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExportReportsFormatting(t *testing.T) {
	dir := t.TempDir()
	src := fakeSource{reports: []storage.Report{{
		ID:           "r1",
		OffenderName: "Scammer, Inc",
		Links:        []string{"https://a.test", "https://b.test"},
		IsVPN:        true,
		Status:       storage.StatusPending,
		CreatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}

	files, err := New(src, dir, zap.NewNop()).Export(context.Background(), TableReports, exportTime)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Regexp(t, `^reports_export_2024-05-06_07-08-09_[0-9a-f]{8}\.csv$`, files[0].Name)
	assert.Equal(t, 1, files[0].Records)

	rows := readCSV(t, files[0].Path)
	require.Len(t, rows, 2)
	assert.Equal(t, "Report ID", rows[0][0])
	assert.Equal(t, "VPN Detected", rows[0][9])
	assert.Equal(t, "Scammer, Inc", rows[1][3])
	assert.Equal(t, "https://a.test; https://b.test", rows[1][7])
	assert.Equal(t, "Yes", rows[1][9])
	assert.Equal(t, "2024-01-02 03:04:05 UTC", rows[1][11])
}

func TestExportEmptyTableYieldsNoData(t *testing.T) {
	dir := t.TempDir()
	exporter := New(fakeSource{}, dir, zap.NewNop())

	for _, table := range []Table{TableReports, TableAll} {
		files, err := exporter.Export(context.Background(), table, exportTime)
		require.True(t, errors.Is(err, ErrNoData))
		assert.Empty(t, files)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExportAllSkipsEmptyTables(t *testing.T) {
	dir := t.TempDir()
	src := fakeSource{
		actions:  []storage.AdminAction{{ID: 3, AdminID: "a", ActionType: storage.ActionBan}},
		timeouts: []storage.UserTimeout{{ID: 1, UserID: "u", DurationMinutes: 15, Reason: "spam"}},
	}
	files, err := New(src, dir, zap.NewNop()).Export(context.Background(), TableAll, exportTime)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, TableAdminActions, files[0].Table)
	assert.Equal(t, TableTimeouts, files[1].Table)
	assert.Equal(t, 2, TotalRecords(files))

	rows := readCSV(t, files[1].Path)
	assert.Equal(t, []string{"1", "u", "", "15", "spam", ""}, rows[1])
}

func TestExportSourceError(t *testing.T) {
	_, err := New(fakeSource{err: errors.New("db down")}, t.TempDir(), zap.NewNop()).Export(context.Background(), TableAll, exportTime)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoData))
}

func TestScheduleCleanup(t *testing.T) {
	dir := t.TempDir()
	src := fakeSource{actions: []storage.AdminAction{{ID: 1}}}
	exporter := New(src, dir, zap.NewNop())
	files, err := exporter.Export(context.Background(), TableAdminActions, exportTime)
	require.NoError(t, err)

	exporter.ScheduleCleanup(files, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, files[0].Name))
		return os.IsNotExist(err)
	}, time.Second, 5*time.Millisecond)
}

func TestExportsInSameSecondDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	src := fakeSource{actions: []storage.AdminAction{{ID: 1}}}
	exporter := New(src, dir, zap.NewNop())

	first, err := exporter.Export(context.Background(), TableAdminActions, exportTime)
	require.NoError(t, err)
	second, err := exporter.Export(context.Background(), TableAdminActions, exportTime.Add(500*time.Millisecond))
	require.NoError(t, err)
	require.NotEqual(t, first[0].Path, second[0].Path)

	exporter.Remove(first)
	_, err = os.Stat(first[0].Path)
	assert.True(t, os.IsNotExist(err))
	rows := readCSV(t, second[0].Path)
	assert.Len(t, rows, 2)
}

func TestAllTablesShareOneSuffix(t *testing.T) {
	src := fakeSource{
		actions:  []storage.AdminAction{{ID: 1}},
		timeouts: []storage.UserTimeout{{ID: 1, UserID: "u"}},
	}
	files, err := New(src, t.TempDir(), zap.NewNop()).Export(context.Background(), TableAll, exportTime)
	require.NoError(t, err)
	require.Len(t, files, 2)
	suffix := files[0].Name[len("admin_actions_export_"):]
	assert.Equal(t, "user_timeouts_export_"+suffix, files[1].Name)
}

func TestParseTable(t *testing.T) {
	table, ok := ParseTable("")
	assert.True(t, ok)
	assert.Equal(t, TableReports, table)

	_, ok = ParseTable("users")
	assert.False(t, ok)
}
