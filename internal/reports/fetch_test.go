package reports

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cdnServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/exact.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{'a'}, 16))
	})
	mux.HandleFunc("/oversized.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{'a'}, 17))
	})
	mux.HandleFunc("/gone.png", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("/broken.png", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcherReadsUpToLimit(t *testing.T) {
	srv := cdnServer(t)
	data, err := NewHTTPFetcher(5*time.Second).Fetch(context.Background(), srv.URL+"/exact.png", 16)
	require.NoError(t, err)
	assert.Len(t, data, 16)
}

func TestHTTPFetcherRejectsOversizedBody(t *testing.T) {
	srv := cdnServer(t)
	data, err := NewHTTPFetcher(5*time.Second).Fetch(context.Background(), srv.URL+"/oversized.png", 16)
	require.ErrorIs(t, err, ErrTooLarge)
	assert.Nil(t, data)
}

func TestHTTPFetcherRejectsNonOKStatus(t *testing.T) {
	srv := cdnServer(t)
	fetcher := NewHTTPFetcher(5 * time.Second)

	for path, status := range map[string]string{"/gone.png": "404", "/broken.png": "502"} {
		data, err := fetcher.Fetch(context.Background(), srv.URL+path, 1024)
		require.Error(t, err, path)
		assert.NotErrorIs(t, err, ErrTooLarge)
		assert.Contains(t, err.Error(), "unexpected status "+status)
		assert.Nil(t, data)
	}
}

func TestHTTPFetcherHonorsContext(t *testing.T) {
	srv := cdnServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPFetcher(5*time.Second).Fetch(ctx, srv.URL+"/exact.png", 16)
	require.ErrorIs(t, err, context.Canceled)
}
