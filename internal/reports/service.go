// Package reports runs report submission and the confirmed delete flows.
package reports

import (
	"context"
	"fmt"
	"image"

	"scamwatch/internal/apperr"
	"scamwatch/internal/config"
	"scamwatch/internal/confirm"
	"scamwatch/internal/evidence"
	"scamwatch/internal/modules/linkcheck"
	"scamwatch/internal/observability"
	"scamwatch/internal/scanner"
	"scamwatch/internal/storage"
	"scamwatch/internal/utils"
	"scamwatch/internal/vpn"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Store interface {
	CreateReport(ctx context.Context, report *storage.Report) error
	GetReport(ctx context.Context, id string) (storage.Report, error)
	ListReports(ctx context.Context, filter storage.ReportFilter) ([]storage.Report, error)
	UpdateReportStatus(ctx context.Context, id string, status storage.Status) error
	DeleteReport(ctx context.Context, id string) error
	ListReportFiles(ctx context.Context) ([]storage.ReportFiles, error)
	ClearReports(ctx context.Context) (storage.ClearResult, error)
}

type Auditor interface {
	Record(ctx context.Context, action storage.AdminAction)
}

// Confirmation is the pending yes/no prompt a delete waits on.
type Confirmation interface {
	Wait(ctx context.Context) confirm.Outcome
}

type Actor struct {
	ID       string
	Username string
}

type Attachment struct {
	Name string
	Size int64
	URL  string
}

type Submission struct {
	Reporter      Actor
	OffenderName  string
	OffenderID    string
	OffenderEmail string
	Description   string
	Attachments   []Attachment
	// Origin is the submitter's network address when the platform exposes
	// one, otherwise vpn.OriginUnavailable.
	Origin string
}

type Result struct {
	Report      storage.Report
	Findings    []linkcheck.Finding
	VPN         vpn.Result
	ScanSkipped bool
}

type Deps struct {
	Store   Store
	Files   evidence.Storage
	Fetcher Fetcher
	Images  *evidence.Processor
	Scanner scanner.Scanner
	VPN     vpn.Checker
	Links   *linkcheck.Module
	Audit   Auditor
	Uploads config.UploadConfig
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

type Service struct {
	Deps
	validate *validator.Validate
}

func NewService(deps Deps) *Service {
	if deps.Uploads.DescriptionLimit <= 0 {
		deps.Uploads.DescriptionLimit = utils.MaxInputLength
	}
	if deps.VPN == nil {
		deps.VPN = vpn.Disabled{}
	}
	if deps.Scanner == nil {
		deps.Scanner = scanner.Disabled{}
	}
	if deps.Images == nil {
		deps.Images = evidence.NewProcessor()
	}
	return &Service{Deps: deps, validate: validator.New()}
}

type payload struct {
	attachment Attachment
	data       []byte
	img        image.Image
}

// Submit validates, stores and persists a report. Any failure aborts the
// whole submission; files stored before the failure are removed again.
func (s *Service) Submit(ctx context.Context, sub Submission) (Result, error) {
	report := storage.Report{
		ReporterID:       sub.Reporter.ID,
		ReporterUsername: sub.Reporter.Username,
		OffenderName:     utils.SanitizeInput(sub.OffenderName),
		OffenderID:       utils.SanitizeInput(sub.OffenderID),
		OffenderEmail:    utils.SanitizeInput(sub.OffenderEmail),
		Description:      utils.SanitizeLimit(sub.Description, s.Uploads.DescriptionLimit),
		ReporterIP:       sub.Origin,
	}
	if report.ReporterIP == "" {
		report.ReporterIP = vpn.OriginUnavailable
	}
	if err := s.checkSubmission(report, sub.Attachments); err != nil {
		return Result{}, err
	}

	payloads, err := s.download(ctx, sub.Attachments)
	if err != nil {
		return Result{}, err
	}
	for i := range payloads {
		img, err := s.Images.Decode(payloads[i].attachment.Name, payloads[i].data)
		if err != nil {
			return Result{}, err
		}
		payloads[i].img = img
	}

	report.ID = uuid.NewString()
	handles, err := s.storeImages(ctx, report.ID, payloads)
	if err != nil {
		s.discard(ctx, handles)
		return Result{}, err
	}
	report.ScreenshotPaths = handles

	skipped, err := s.scan(ctx, payloads)
	if err != nil {
		s.discard(ctx, handles)
		return Result{}, err
	}

	report.Links = utils.ExtractLinks(report.Description)
	result := Result{
		Findings:    s.Links.Check(report.Links),
		ScanSkipped: skipped,
		VPN:         s.checkVPN(ctx, report.ReporterIP),
	}
	report.IsVPN = result.VPN.IsVPN

	if err := s.Store.CreateReport(ctx, &report); err != nil {
		s.discard(ctx, handles)
		return Result{}, apperr.Dependency(err, "save report")
	}
	s.Metrics.ReportSubmitted()
	s.Logger.Info("report submitted",
		zap.String("report_id", report.ID),
		zap.String("reporter_id", report.ReporterID),
		zap.Int("screenshots", len(handles)),
		zap.Int("links", len(report.Links)),
	)

	result.Report = report
	return result, nil
}

func (s *Service) checkSubmission(report storage.Report, attachments []Attachment) error {
	if report.OffenderName == "" {
		return apperr.Validation("offender_name", "Offender name is required.")
	}
	if report.OffenderEmail != "" {
		if err := s.validate.Var(report.OffenderEmail, "email"); err != nil {
			return apperr.Validation("email", "Not a valid email address.")
		}
	}
	if len(attachments) == 0 {
		return apperr.Validation("", "At least one screenshot is required for the report.")
	}
	if limit := s.Uploads.MaxAttachments; limit > 0 && len(attachments) > limit {
		return apperr.Validationf("", "At most %d screenshots can be attached.", limit)
	}
	for _, attachment := range attachments {
		if err := evidence.CheckAttachment(attachment.Name, attachment.Size, s.Uploads); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) download(ctx context.Context, attachments []Attachment) ([]payload, error) {
	payloads := make([]payload, len(attachments))
	g, gctx := errgroup.WithContext(ctx)
	for i, attachment := range attachments {
		payloads[i].attachment = attachment
		g.Go(func() error {
			data, err := s.Fetcher.Fetch(gctx, attachment.URL, s.Uploads.MaxFileSize)
			if errors.Is(err, ErrTooLarge) {
				return apperr.Validation(attachment.Name, fmt.Sprintf("File size exceeds maximum allowed size of %dMB", s.Uploads.MaxFileSize/1024/1024))
			}
			if err != nil {
				return apperr.Dependency(err, "download "+attachment.Name)
			}
			payloads[i].data = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}

// storeImages returns the handles stored so far even when it fails, so the
// caller can remove them.
func (s *Service) storeImages(ctx context.Context, reportID string, payloads []payload) ([]string, error) {
	handles := make([]string, 0, len(payloads))
	for _, p := range payloads {
		encoded, err := s.Images.Transcode(p.img)
		if err != nil {
			return handles, apperr.Dependency(err, "process "+p.attachment.Name)
		}
		handle, err := s.Files.Put(ctx, evidence.FileName(reportID), encoded)
		if err != nil {
			return handles, apperr.Dependency(err, "store "+p.attachment.Name)
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

func (s *Service) scan(ctx context.Context, payloads []payload) (skipped bool, err error) {
	for _, p := range payloads {
		verdict, err := s.Scanner.Scan(ctx, p.attachment.Name, p.data)
		if err != nil {
			s.Metrics.ScanVerdict("error")
			return false, apperr.Dependency(err, "scan "+p.attachment.Name)
		}
		switch {
		case verdict.Skipped:
			s.Metrics.ScanVerdict("skipped")
			skipped = true
		case !verdict.Safe:
			s.Metrics.ScanVerdict("unsafe")
			s.Logger.Warn("attachment flagged by malware scan",
				zap.String("file", p.attachment.Name),
				zap.Int("malicious", verdict.Malicious),
				zap.Int("suspicious", verdict.Suspicious),
			)
			return false, apperr.Validationf("", "Malware detected in %s. Report submission cancelled.", p.attachment.Name)
		default:
			s.Metrics.ScanVerdict("safe")
		}
	}
	return skipped, nil
}

func (s *Service) checkVPN(ctx context.Context, origin string) vpn.Result {
	if origin == vpn.OriginUnavailable {
		return vpn.Result{}
	}
	result, err := s.VPN.Check(ctx, origin)
	if err != nil {
		s.Logger.Warn("vpn check failed", zap.Error(err))
		return vpn.Result{}
	}
	return result
}

func (s *Service) discard(ctx context.Context, handles []string) {
	if len(handles) == 0 {
		return
	}
	for _, failed := range evidence.Failed(evidence.DeleteAll(context.WithoutCancel(ctx), s.Files, handles)) {
		s.Logger.Warn("orphaned screenshot", zap.String("handle", failed.Handle), zap.Error(failed.Err))
	}
}
