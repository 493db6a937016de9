// Package export writes the report store's tables to CSV files for
// download by administrators.
package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"scamwatch/internal/storage"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Table string

const (
	TableReports      Table = "reports"
	TableAdminActions Table = "admin_actions"
	TableTimeouts     Table = "user_timeouts"
	TableAll          Table = "all"
)

// Tables lists the exportable tables in the order "all" writes them.
var Tables = []Table{TableReports, TableAdminActions, TableTimeouts}

func ParseTable(value string) (Table, bool) {
	if value == "" {
		return TableReports, true
	}
	switch table := Table(value); table {
	case TableReports, TableAdminActions, TableTimeouts, TableAll:
		return table, true
	}
	return "", false
}

var ErrNoData = errors.New("no data found to export")

const (
	fileStampLayout = "2006-01-02_15-04-05"
	timeLayout      = "2006-01-02 15:04:05 UTC"
)

type Source interface {
	AllReports(ctx context.Context) ([]storage.Report, error)
	AllAdminActions(ctx context.Context) ([]storage.AdminAction, error)
	AllTimeouts(ctx context.Context) ([]storage.UserTimeout, error)
}

type File struct {
	Table   Table
	Name    string
	Path    string
	Records int
}

type Exporter struct {
	source Source
	dir    string
	logger *zap.Logger
}

func New(source Source, dir string, logger *zap.Logger) *Exporter {
	return &Exporter{source: source, dir: dir, logger: logger}
}

// Export writes one file per non-empty table. ErrNoData is returned, and
// nothing is written, when every requested table is empty.
func (e *Exporter) Export(ctx context.Context, table Table, now time.Time) ([]File, error) {
	tables := []Table{table}
	if table == TableAll {
		tables = Tables
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create export dir")
	}

	// Exports started in the same second must not share files, or one
	// export's cleanup removes the other's.
	stamp := now.UTC().Format(fileStampLayout) + "_" + uuid.NewString()[:8]
	var files []File
	for _, t := range tables {
		header, records, err := e.rows(ctx, t)
		if err != nil {
			e.Remove(files)
			return nil, err
		}
		if len(records) == 0 {
			e.logger.Debug("export skipped empty table", zap.String("table", string(t)))
			continue
		}

		name := string(t) + "_export_" + stamp + ".csv"
		path := filepath.Join(e.dir, name)
		if err := writeCSV(path, header, records); err != nil {
			e.Remove(files)
			return nil, errors.Wrapf(err, "export %s", t)
		}
		files = append(files, File{Table: t, Name: name, Path: path, Records: len(records)})
	}

	if len(files) == 0 {
		return nil, ErrNoData
	}
	return files, nil
}

// ScheduleCleanup removes files after delay. The returned timer may be
// stopped to keep them.
func (e *Exporter) ScheduleCleanup(files []File, delay time.Duration) *time.Timer {
	return time.AfterFunc(delay, func() { e.Remove(files) })
}

func (e *Exporter) Remove(files []File) {
	for _, file := range files {
		if err := os.Remove(file.Path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("failed to clean up export", zap.String("path", file.Path), zap.Error(err))
		}
	}
}

func TotalRecords(files []File) int {
	total := 0
	for _, file := range files {
		total += file.Records
	}
	return total
}

func (e *Exporter) rows(ctx context.Context, table Table) ([]string, [][]string, error) {
	switch table {
	case TableReports:
		reports, err := e.source.AllReports(ctx)
		if err != nil {
			return nil, nil, err
		}
		header := []string{"Report ID", "Reporter ID", "Reporter Username", "Offender Name", "Offender Discord ID",
			"Offender Email", "Description", "Links", "Reporter IP", "VPN Detected", "Status", "Created At", "Updated At"}
		records := make([][]string, 0, len(reports))
		for _, r := range reports {
			records = append(records, []string{
				r.ID, r.ReporterID, r.ReporterUsername, r.OffenderName, r.OffenderID,
				r.OffenderEmail, r.Description, strings.Join(r.Links, "; "), r.ReporterIP, yesNo(r.IsVPN),
				string(r.Status), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
			})
		}
		return header, records, nil

	case TableAdminActions:
		actions, err := e.source.AllAdminActions(ctx)
		if err != nil {
			return nil, nil, err
		}
		header := []string{"Action ID", "Admin ID", "Admin Username", "Action Type", "Target ID", "Details", "Created At"}
		records := make([][]string, 0, len(actions))
		for _, a := range actions {
			records = append(records, []string{
				strconv.FormatInt(a.ID, 10), a.AdminID, a.AdminUsername, a.ActionType, a.TargetID, a.Details, formatTime(a.CreatedAt),
			})
		}
		return header, records, nil

	case TableTimeouts:
		timeouts, err := e.source.AllTimeouts(ctx)
		if err != nil {
			return nil, nil, err
		}
		header := []string{"Timeout ID", "User ID", "Moderator ID", "Duration (Minutes)", "Reason", "Created At"}
		records := make([][]string, 0, len(timeouts))
		for _, t := range timeouts {
			records = append(records, []string{
				strconv.FormatInt(t.ID, 10), t.UserID, t.ModeratorID, strconv.Itoa(t.DurationMinutes), t.Reason, formatTime(t.CreatedAt),
			})
		}
		return header, records, nil
	}
	return nil, nil, errors.Errorf("unknown table %q", table)
}

func writeCSV(path string, header []string, records [][]string) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	writer := csv.NewWriter(f)
	if err := writer.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := writer.WriteAll(records); err != nil {
		return errors.Wrap(err, "write records")
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
