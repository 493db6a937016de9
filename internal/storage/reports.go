package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"scamwatch/internal/apperr"

	"github.com/pkg/errors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewed  Status = "reviewed"
	StatusResolved  Status = "resolved"
	StatusDismissed Status = "dismissed"
)

var Statuses = []Status{StatusPending, StatusReviewed, StatusResolved, StatusDismissed}

func (s Status) Valid() bool {
	for _, status := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

const (
	DefaultListLimit = 10
	MaxListLimit     = 25
)

var ErrReportNotFound = apperr.NotFound("Report not found with that ID.")

type Report struct {
	ID               string
	ReporterID       string
	ReporterUsername string
	OffenderName     string
	OffenderID       string
	OffenderEmail    string
	Description      string
	Links            []string
	ScreenshotPaths  []string
	ReporterIP       string
	IsVPN            bool
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type ReportFilter struct {
	Status Status
	Search string
	Limit  int
}

// ReportFiles lists the stored image handles of one report.
type ReportFiles struct {
	ReportID string
	Paths    []string
}

type reportRow struct {
	ID               string `db:"id"`
	ReporterID       string `db:"reporter_id"`
	ReporterUsername string `db:"reporter_username"`
	OffenderName     string `db:"offender_display_name"`
	OffenderID       string `db:"offender_discord_id"`
	OffenderEmail    string `db:"offender_email"`
	Description      string `db:"description"`
	Links            string `db:"links"`
	ScreenshotPaths  string `db:"screenshot_paths"`
	ReporterIP       string `db:"reporter_ip"`
	IsVPN            bool   `db:"is_vpn"`
	Status           string `db:"status"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
}

const reportColumns = `id, reporter_id, reporter_username, offender_display_name, offender_discord_id,
	offender_email, description, links, screenshot_paths, reporter_ip, is_vpn, status, created_at, updated_at`

func (r reportRow) toReport() (Report, error) {
	report := Report{
		ID:               r.ID,
		ReporterID:       r.ReporterID,
		ReporterUsername: r.ReporterUsername,
		OffenderName:     r.OffenderName,
		OffenderID:       r.OffenderID,
		OffenderEmail:    r.OffenderEmail,
		Description:      r.Description,
		ReporterIP:       r.ReporterIP,
		IsVPN:            r.IsVPN,
		Status:           Status(r.Status),
		CreatedAt:        fromMillis(r.CreatedAt),
		UpdatedAt:        fromMillis(r.UpdatedAt),
	}
	if err := decodeList(r.Links, &report.Links); err != nil {
		return Report{}, errors.Wrapf(err, "decode links of report %s", r.ID)
	}
	if err := decodeList(r.ScreenshotPaths, &report.ScreenshotPaths); err != nil {
		return Report{}, errors.Wrapf(err, "decode screenshots of report %s", r.ID)
	}
	return report, nil
}

// CreateReport inserts a new pending report. CreatedAt, UpdatedAt and an
// empty Status are filled in by the store.
func (s *Store) CreateReport(ctx context.Context, report *Report) (err error) {
	if report.ID == "" {
		return errors.New("report id is required")
	}
	if len(report.ScreenshotPaths) == 0 {
		return errors.New("report requires at least one screenshot")
	}
	if report.Status == "" {
		report.Status = StatusPending
	}
	if !report.Status.Valid() {
		return errors.Errorf("invalid report status %q", report.Status)
	}

	links, err := encodeList(report.Links)
	if err != nil {
		return err
	}
	screenshots, err := encodeList(report.ScreenshotPaths)
	if err != nil {
		return err
	}

	now := s.now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin report insert")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		report.ID, report.ReporterID, report.ReporterUsername, report.OffenderName, report.OffenderID,
		report.OffenderEmail, report.Description, links, screenshots, report.ReporterIP, report.IsVPN,
		string(report.Status), toMillis(now), toMillis(now),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return errors.Wrapf(err, "report %s already exists", report.ID)
		}
		return errors.Wrap(err, "insert report")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit report insert")
	}

	report.CreatedAt = fromMillis(toMillis(now))
	report.UpdatedAt = report.CreatedAt
	return nil
}

func (s *Store) GetReport(ctx context.Context, id string) (Report, error) {
	var row reportRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT `+reportColumns+` FROM reports WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Report{}, ErrReportNotFound
		}
		return Report{}, errors.Wrap(err, "get report")
	}
	return row.toReport()
}

// ListReports returns reports newest first. An empty Status matches every
// status; Search matches a substring of the offender name, the offender's
// platform ID or the report ID, case-insensitively.
func (s *Store) ListReports(ctx context.Context, filter ReportFilter) ([]Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE 1 = 1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		query += ` AND (LOWER(offender_display_name) LIKE ? ESCAPE '\' OR LOWER(offender_discord_id) LIKE ? ESCAPE '\' OR LOWER(id) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern, pattern)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, ClampLimit(filter.Limit))

	var rows []reportRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list reports")
	}
	return toReports(rows)
}

// AllReports returns every report newest first, for export.
func (s *Store) AllReports(ctx context.Context) ([]Report, error) {
	var rows []reportRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, errors.Wrap(err, "select reports")
	}
	return toReports(rows)
}

func (s *Store) UpdateReportStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return errors.Errorf("invalid report status %q", status)
	}
	result, err := s.db.ExecContext(ctx, s.rebind(`UPDATE reports SET status = ?, updated_at = ? WHERE id = ?`),
		string(status), toMillis(s.now()), id)
	if err != nil {
		return errors.Wrap(err, "update report status")
	}
	return requireAffected(result)
}

// DeleteReport removes one report row. A report that is already gone
// yields ErrReportNotFound.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM reports WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "delete report")
	}
	return requireAffected(result)
}

// ListReportFiles enumerates the reports that reference stored images.
func (s *Store) ListReportFiles(ctx context.Context) ([]ReportFiles, error) {
	var rows []struct {
		ID    string `db:"id"`
		Paths string `db:"screenshot_paths"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, screenshot_paths FROM reports ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "list report files")
	}

	out := make([]ReportFiles, 0, len(rows))
	for _, row := range rows {
		var paths []string
		if err := decodeList(row.Paths, &paths); err != nil {
			return nil, errors.Wrapf(err, "decode screenshots of report %s", row.ID)
		}
		if len(paths) == 0 {
			continue
		}
		out = append(out, ReportFiles{ReportID: row.ID, Paths: paths})
	}
	return out, nil
}

type ClearResult struct {
	Reports  int64
	Timeouts int64
}

// ClearReports deletes every report and timeout row in one transaction.
// admin_actions is left untouched.
func (s *Store) ClearReports(ctx context.Context) (result ClearResult, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ClearResult{}, errors.Wrap(err, "begin clear")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM reports`)
	if err != nil {
		return ClearResult{}, errors.Wrap(err, "clear reports")
	}
	result.Reports, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM user_timeouts`)
	if err != nil {
		return ClearResult{}, errors.Wrap(err, "clear timeouts")
	}
	result.Timeouts, _ = res.RowsAffected()

	if err = tx.Commit(); err != nil {
		return ClearResult{}, errors.Wrap(err, "commit clear")
	}
	return result, nil
}

// CountReportsByStatus returns the number of reports per status; statuses
// without rows are present with zero.
func (s *Store) CountReportsByStatus(ctx context.Context) (map[Status]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM reports GROUP BY status`); err != nil {
		return nil, errors.Wrap(err, "count reports")
	}
	counts := make(map[Status]int, len(Statuses))
	for _, status := range Statuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[Status(row.Status)] = row.Count
	}
	return counts, nil
}

func (s *Store) CountVPNReports(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, s.rebind(`SELECT COUNT(*) FROM reports WHERE is_vpn = ?`), true); err != nil {
		return 0, errors.Wrap(err, "count vpn reports")
	}
	return count, nil
}

func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func toReports(rows []reportRow) ([]Report, error) {
	reports := make([]Report, 0, len(rows))
	for _, row := range rows {
		report, err := row.toReport()
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return ErrReportNotFound
	}
	return nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", errors.Wrap(err, "encode list")
	}
	return string(data), nil
}

func decodeList(raw string, out *[]string) error {
	if raw == "" {
		*out = []string{}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return err
	}
	if *out == nil {
		*out = []string{}
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
