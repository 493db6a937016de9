package reports

import (
	"context"
	"fmt"

	"scamwatch/internal/apperr"
	"scamwatch/internal/confirm"
	"scamwatch/internal/evidence"
	"scamwatch/internal/storage"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	FlowClearReport = "clear_report"
	FlowClearAll    = "clear_all"
)

func (s *Service) Get(ctx context.Context, id string) (storage.Report, error) {
	report, err := s.Store.GetReport(ctx, id)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return storage.Report{}, apperr.Dependency(err, "get report")
	}
	return report, err
}

func (s *Service) List(ctx context.Context, filter storage.ReportFilter) ([]storage.Report, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validationf("status", "Unknown status %q.", filter.Status)
	}
	reports, err := s.Store.ListReports(ctx, filter)
	if err != nil {
		return nil, apperr.Dependency(err, "list reports")
	}
	return reports, nil
}

func (s *Service) SetStatus(ctx context.Context, actor Actor, id string, status storage.Status) error {
	if !status.Valid() {
		return apperr.Validationf("status", "Unknown status %q.", status)
	}
	if err := s.Store.UpdateReportStatus(ctx, id, status); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.Dependency(err, "update report status")
	}
	s.Audit.Record(ctx, storage.AdminAction{
		AdminID:       actor.ID,
		AdminUsername: actor.Username,
		ActionType:    storage.ActionUpdateReportStatus,
		TargetID:      id,
		Details:       fmt.Sprintf("Status changed to %s", status),
	})
	return nil
}

// DeleteConfirmed waits for the prompt and, when confirmed, removes the
// report's files and then its row. Files and row are not removed
// atomically; a file that is already gone is not an error.
func (s *Service) DeleteConfirmed(ctx context.Context, actor Actor, report storage.Report, prompt Confirmation) (confirm.Outcome, error) {
	outcome := prompt.Wait(ctx)
	s.Metrics.Confirmation(FlowClearReport, outcome.String())
	if outcome != confirm.Confirmed {
		return outcome, nil
	}

	s.deleteFiles(ctx, report.ID, report.ScreenshotPaths)
	if err := s.Store.DeleteReport(ctx, report.ID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return outcome, err
		}
		return outcome, apperr.Dependency(err, "delete report")
	}

	s.Audit.Record(ctx, storage.AdminAction{
		AdminID:       actor.ID,
		AdminUsername: actor.Username,
		ActionType:    storage.ActionClearReport,
		TargetID:      report.ID,
		Details:       "Deleted report for offender: " + report.OffenderName,
	})
	return outcome, nil
}

// ClearConfirmed waits for the prompt and, when confirmed, removes the
// screenshots referenced by stored reports and then every report and
// timeout row. Files no report points at are left alone. The audit log is
// kept.
func (s *Service) ClearConfirmed(ctx context.Context, actor Actor, prompt Confirmation) (confirm.Outcome, storage.ClearResult, error) {
	outcome := prompt.Wait(ctx)
	s.Metrics.Confirmation(FlowClearAll, outcome.String())
	if outcome != confirm.Confirmed {
		return outcome, storage.ClearResult{}, nil
	}

	files, err := s.Store.ListReportFiles(ctx)
	if err != nil {
		return outcome, storage.ClearResult{}, apperr.Dependency(err, "list report files")
	}
	for _, report := range files {
		s.deleteFiles(ctx, report.ReportID, report.Paths)
	}

	cleared, err := s.Store.ClearReports(ctx)
	if err != nil {
		return outcome, storage.ClearResult{}, apperr.Dependency(err, "clear reports")
	}

	s.Audit.Record(ctx, storage.AdminAction{
		AdminID:       actor.ID,
		AdminUsername: actor.Username,
		ActionType:    storage.ActionClearDatabase,
		Details:       fmt.Sprintf("Cleared entire reports database (%d reports, %d timeouts)", cleared.Reports, cleared.Timeouts),
	})
	return outcome, cleared, nil
}

func (s *Service) deleteFiles(ctx context.Context, reportID string, handles []string) {
	for _, failed := range evidence.Failed(evidence.DeleteAll(ctx, s.Files, handles)) {
		s.Logger.Warn("failed to delete screenshot",
			zap.String("report_id", reportID),
			zap.String("handle", failed.Handle),
			zap.Error(failed.Err),
		)
	}
}
