// Package vpn flags report origins that resolve to VPN or proxy ranges.
package vpn

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scamwatch/internal/config"

	"github.com/pkg/errors"
)

// OriginUnavailable is recorded when the platform does not expose the
// submitter's network address, which is always the case for Discord.
const OriginUnavailable = "unavailable"

type Result struct {
	IsVPN      bool
	Confidence int
}

type Checker interface {
	Check(ctx context.Context, origin string) (Result, error)
}

func New(cfg config.VPNConfig) Checker {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return Disabled{}
	}
	return NewHTTPChecker(cfg)
}

type Disabled struct{}

func (Disabled) Check(context.Context, string) (Result, error) {
	return Result{}, nil
}

// HTTPChecker asks a lookup service at <endpoint>/<ip>. The service answers
// with {"isVPN": bool, "confidence": int}.
type HTTPChecker struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

func NewHTTPChecker(cfg config.VPNConfig) *HTTPChecker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPChecker{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
	}
}

func (c *HTTPChecker) Check(ctx context.Context, origin string) (Result, error) {
	ip := net.ParseIP(strings.TrimSpace(origin))
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() {
		return Result{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/"+url.PathEscape(ip.String()), nil)
	if err != nil {
		return Result{}, errors.Wrap(err, "build vpn request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, errors.Wrap(err, "vpn lookup")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("vpn lookup: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		IsVPN      bool `json:"isVPN"`
		Confidence int  `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, errors.Wrap(err, "decode vpn response")
	}
	return Result{IsVPN: body.IsVPN, Confidence: body.Confidence}, nil
}
