package scanner

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"scamwatch/internal/config"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func vtServer(t *testing.T, pendingPolls int32, malicious int) (*httptest.Server, *int32) {
	t.Helper()
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-apikey"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "proof.png", header.Filename)
		assert.Equal(t, "bytes", string(data))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"type": "analysis", "id": "an-1"}})
	})
	mux.HandleFunc("/analyses/an-1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&polls, 1)
		status := "completed"
		if n <= pendingPolls {
			status = "queued"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"attributes": map[string]any{
			"status": status,
			"stats":  map[string]int{"malicious": malicious, "suspicious": 0, "harmless": 60},
		}}})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &polls
}

func testConfig(url string) config.ScannerConfig {
	return config.ScannerConfig{
		APIKey:            "secret",
		BaseURL:           url,
		PollInterval:      time.Millisecond,
		MaxPolls:          3,
		RequestsPerMinute: 6000,
	}
}

func TestVirusTotalSafe(t *testing.T) {
	server, polls := vtServer(t, 1, 0)
	verdict, err := NewVirusTotal(testConfig(server.URL)).Scan(context.Background(), "proof.png", []byte("bytes"))
	require.NoError(t, err)
	assert.True(t, verdict.Safe)
	assert.Equal(t, int32(2), atomic.LoadInt32(polls))
}

func TestVirusTotalMalicious(t *testing.T) {
	server, _ := vtServer(t, 0, 3)
	verdict, err := NewVirusTotal(testConfig(server.URL)).Scan(context.Background(), "proof.png", []byte("bytes"))
	require.NoError(t, err)
	assert.False(t, verdict.Safe)
	assert.Equal(t, 3, verdict.Malicious)
}

func TestVirusTotalGivesUpAfterMaxPolls(t *testing.T) {
	server, _ := vtServer(t, 10, 0)
	_, err := NewVirusTotal(testConfig(server.URL)).Scan(context.Background(), "proof.png", []byte("bytes"))
	require.True(t, errors.Is(err, ErrScanPending))
}

func TestVirusTotalHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewVirusTotal(testConfig(server.URL)).Scan(context.Background(), "proof.png", []byte("bytes"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

type failingScanner struct{}

func (failingScanner) Scan(context.Context, string, []byte) (Verdict, error) {
	return Verdict{}, errors.New("unreachable")
}

func TestFailOpen(t *testing.T) {
	verdict, err := FailOpen{Next: failingScanner{}, Logger: zap.NewNop()}.Scan(context.Background(), "a.png", nil)
	require.NoError(t, err)
	assert.True(t, verdict.Safe)
	assert.True(t, verdict.Skipped)
}

func TestNewSelectsImplementation(t *testing.T) {
	logger := zap.NewNop()
	assert.IsType(t, Disabled{}, New(config.ScannerConfig{FailOpen: true}, logger))
	assert.IsType(t, &VirusTotal{}, New(config.ScannerConfig{APIKey: "k", MaxPolls: 1}, logger))
	assert.IsType(t, FailOpen{}, New(config.ScannerConfig{APIKey: "k", MaxPolls: 1, FailOpen: true}, logger))
}
