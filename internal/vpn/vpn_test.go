package vpn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"scamwatch/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"isVPN": true, "confidence": 87}`))
	}))
	defer server.Close()

	checker := New(config.VPNConfig{Enabled: true, Endpoint: server.URL + "/check/", APIKey: "k"})
	result, err := checker.Check(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, Result{IsVPN: true, Confidence: 87}, result)
	assert.Equal(t, "/check/203.0.113.9", gotPath)
	assert.Equal(t, "Bearer k", gotAuth)
}

func TestHTTPCheckerSkipsUnroutableOrigins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected lookup for %s", r.URL.Path)
	}))
	defer server.Close()

	checker := NewHTTPChecker(config.VPNConfig{Enabled: true, Endpoint: server.URL})
	for _, origin := range []string{OriginUnavailable, "127.0.0.1", "10.1.2.3", ""} {
		result, err := checker.Check(context.Background(), origin)
		require.NoError(t, err)
		assert.False(t, result.IsVPN, origin)
	}
}

func TestHTTPCheckerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewHTTPChecker(config.VPNConfig{Endpoint: server.URL}).Check(context.Background(), "203.0.113.9")
	require.Error(t, err)
}

func TestDisabledWhenOff(t *testing.T) {
	assert.IsType(t, Disabled{}, New(config.VPNConfig{Endpoint: "http://x"}))
	assert.IsType(t, Disabled{}, New(config.VPNConfig{Enabled: true}))
}
