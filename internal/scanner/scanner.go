package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"scamwatch/internal/config"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Verdict struct {
	Safe       bool
	Malicious  int
	Suspicious int
	// Skipped is set when no scan took place and Safe was assumed.
	Skipped bool
}

type Scanner interface {
	Scan(ctx context.Context, filename string, data []byte) (Verdict, error)
}

// New picks the scanner for cfg: the VirusTotal client when a key is set,
// wrapped to treat failures as safe when FailOpen is set; otherwise the
// disabled scanner. Config validation rejects a missing key without
// FailOpen.
func New(cfg config.ScannerConfig, logger *zap.Logger) Scanner {
	if cfg.APIKey == "" {
		logger.Warn("malware scanning disabled, attachments are treated as safe")
		return Disabled{}
	}
	var s Scanner = NewVirusTotal(cfg)
	if cfg.FailOpen {
		s = FailOpen{Next: s, Logger: logger}
	}
	return s
}

type Disabled struct{}

func (Disabled) Scan(context.Context, string, []byte) (Verdict, error) {
	return Verdict{Safe: true, Skipped: true}, nil
}

// FailOpen turns scanner errors into a safe verdict.
type FailOpen struct {
	Next   Scanner
	Logger *zap.Logger
}

func (f FailOpen) Scan(ctx context.Context, filename string, data []byte) (Verdict, error) {
	verdict, err := f.Next.Scan(ctx, filename, data)
	if err != nil {
		f.Logger.Warn("scan failed, treating file as safe", zap.String("file", filename), zap.Error(err))
		return Verdict{Safe: true, Skipped: true}, nil
	}
	return verdict, nil
}

var ErrScanPending = errors.New("scan did not complete in time")

type VirusTotal struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	maxPolls     int
	limiter      *rate.Limiter
}

func NewVirusTotal(cfg config.ScannerConfig) *VirusTotal {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 4
	}
	return &VirusTotal{
		client:       &http.Client{Timeout: 30 * time.Second},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
	}
}

type uploadResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type analysisResponse struct {
	Data struct {
		Attributes struct {
			Status string `json:"status"`
			Stats  struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
			} `json:"stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// Scan uploads data and polls the analysis until it completes. A file is
// unsafe when any engine marks it malicious or suspicious.
func (v *VirusTotal) Scan(ctx context.Context, filename string, data []byte) (Verdict, error) {
	analysisID, err := v.upload(ctx, filename, data)
	if err != nil {
		return Verdict{}, err
	}

	for attempt := 0; attempt < v.maxPolls; attempt++ {
		if err := sleep(ctx, v.pollInterval); err != nil {
			return Verdict{}, err
		}
		var analysis analysisResponse
		if err := v.do(ctx, http.MethodGet, "/analyses/"+analysisID, nil, "", &analysis); err != nil {
			return Verdict{}, err
		}
		attrs := analysis.Data.Attributes
		if attrs.Status != "completed" {
			continue
		}
		return Verdict{
			Safe:       attrs.Stats.Malicious == 0 && attrs.Stats.Suspicious == 0,
			Malicious:  attrs.Stats.Malicious,
			Suspicious: attrs.Stats.Suspicious,
		}, nil
	}
	return Verdict{}, errors.Wrapf(ErrScanPending, "analysis %s", analysisID)
}

func (v *VirusTotal) upload(ctx context.Context, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", errors.Wrap(err, "build upload form")
	}
	if _, err := part.Write(data); err != nil {
		return "", errors.Wrap(err, "build upload form")
	}
	if err := form.Close(); err != nil {
		return "", errors.Wrap(err, "build upload form")
	}

	var uploaded uploadResponse
	if err := v.do(ctx, http.MethodPost, "/files", &body, form.FormDataContentType(), &uploaded); err != nil {
		return "", err
	}
	if uploaded.Data.ID == "" {
		return "", errors.New("scan upload returned no analysis id")
	}
	return uploaded.Data.ID, nil
}

func (v *VirusTotal) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if err := v.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "scan rate limit")
	}
	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build scan request")
	}
	req.Header.Set("x-apikey", v.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
