// These tests exercise the behavior of the HTTP datasource client wrapper,
// focusing on:
//   - Default configuration.
//   - Retry and backoff behavior on transient failures.
//   - Handling of non-retryable statuses.
//   - Download semantics (atomic rename, typed errors).
package httpds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"chartetl/internal/etlerr"
)

func fastClient(maxRetries int) *Client {
	return NewClient(Config{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
}

// TestNewClient_Defaults verifies that NewClient applies sensible defaults.
func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{})
	if c.httpClient.Timeout <= 0 {
		t.Fatalf("expected non-zero timeout, got %v", c.httpClient.Timeout)
	}
	if c.maxRetries != 3 {
		t.Fatalf("maxRetries = %d, want 3", c.maxRetries)
	}
	if c := NewClient(Config{MaxRetries: -1}); c.maxRetries != 0 {
		t.Fatalf("maxRetries = %d, want 0 for negative config", c.maxRetries)
	}
}

// TestDo_RetriesTransientStatus serves two 503s before a 200 and expects the
// client to retry through them.
func TestDo_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := fastClient(3).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if got := calls.Load(); got != 3 {
		t.Fatalf("server saw %d calls, want 3", got)
	}
}

// TestDo_NonRetryableStatusReturnsImmediately verifies a 404 is returned
// as-is without retries.
func TestDo_NonRetryableStatusReturnsImmediately(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := fastClient(3).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("server saw %d calls, want 1", got)
	}
}

// TestDo_ExhaustedRetries expects the last error after all attempts fail.
func TestDo_ExhaustedRetries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := fastClient(2).Get(context.Background(), srv.URL); err == nil {
		t.Fatalf("want error after exhausted retries")
	}
}

func TestBackoffDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{5, time.Second}, // clamped
	}
	for _, tc := range cases {
		if got := backoffDuration(100*time.Millisecond, tc.attempt, time.Second); got != tc.want {
			t.Errorf("backoffDuration(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDownload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("date,artist\n2017-01-01,Lorde\n"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "raw", "charts.csv")
	n, err := fastClient(-1).Download(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	b, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if int64(len(b)) != n {
		t.Fatalf("reported %d bytes, file has %d", n, len(b))
	}
	if _, err := os.Stat(dest + ".partial"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial file left behind")
	}
}

// TestDownload_ServerError surfaces the typed source error and leaves no
// destination file behind.
func TestDownload_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "charts.csv")
	_, err := fastClient(-1).Download(context.Background(), srv.URL, dest)

	var se *etlerr.SourceUnavailableError
	if !errors.As(err, &se) {
		t.Fatalf("want *etlerr.SourceUnavailableError, got %T: %v", err, err)
	}
	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("destination file should not exist after failed download")
	}
}
