package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/caar/pkg/config"
	"github.com/ajitpratap0/caar/pkg/errors"
)

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	cfg := config.FetchConfig{
		Timeout:         5 * time.Second,
		ConnectTimeout:  time.Second,
		RetryAttempts:   3,
		RetryDelay:      time.Millisecond,
		RetryMultiplier: 2,
		MaxRetryDelay:   10 * time.Millisecond,
	}
	f := New(cfg, Options{}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func readAndClose(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	return data
}

func TestSplitScheme(t *testing.T) {
	tests := []struct {
		raw    string
		scheme string
		rest   string
	}{
		{"/data/cycles.csv", "", "/data/cycles.csv"},
		{"cycles.csv", "", "cycles.csv"},
		{"file:///data/cycles.csv", "file", "/data/cycles.csv"},
		{"HTTP://host/path.csv", "http", "host/path.csv"},
		{"s3://bucket/key.csv", "s3", "bucket/key.csv"},
		{"gs://bucket/object.csv", "gs", "bucket/object.csv"},
	}
	for _, tt := range tests {
		scheme, rest := splitScheme(tt.raw)
		if scheme != tt.scheme || rest != tt.rest {
			t.Errorf("splitScheme(%q) = %q, %q, expected %q, %q",
				tt.raw, scheme, rest, tt.scheme, tt.rest)
		}
	}
}

func TestSplitBucket(t *testing.T) {
	tests := []struct {
		rest   string
		bucket string
		key    string
		ok     bool
	}{
		{"bucket/key.csv", "bucket", "key.csv", true},
		{"bucket/2012/06/data.csv", "bucket", "2012/06/data.csv", true},
		{"bucket", "", "", false},
		{"bucket/", "", "", false},
		{"/key.csv", "", "", false},
	}
	for _, tt := range tests {
		bucket, key, ok := splitBucket(tt.rest)
		if bucket != tt.bucket || key != tt.key || ok != tt.ok {
			t.Errorf("splitBucket(%q) = %q, %q, %v, expected %q, %q, %v",
				tt.rest, bucket, key, ok, tt.bucket, tt.key, tt.ok)
		}
	}
}

func TestOpenLocalFile(t *testing.T) {
	content := "ThermostatId,TimeStamp,Degrees\n100,2012-01-01 00:00:00,70\n"
	path := filepath.Join(t.TempDir(), "sensors.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	f := testFetcher(t)

	for _, url := range []string{path, "file://" + path} {
		rc, err := f.Open(context.Background(), url)
		if err != nil {
			t.Fatalf("Open(%q) failed: %v", url, err)
		}
		if got := readAndClose(t, rc); string(got) != content {
			t.Errorf("Open(%q) read %q, expected %q", url, got, content)
		}
	}
}

func TestOpenLocalFileMapped(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789abcdef"), mmapThreshold/16)
	path := filepath.Join(t.TempDir(), "big.csv")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	f := testFetcher(t)

	rc, err := f.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := rc.(*mappedFile); !ok {
		t.Errorf("Open returned %T, expected a memory-mapped reader", rc)
	}
	got := readAndClose(t, rc)
	if len(got) != len(content) || !bytes.Equal(got[:16], content[:16]) {
		t.Errorf("mapped read returned %d bytes, expected %d", len(got), len(content))
	}
}

func TestOpenMissingFile(t *testing.T) {
	f := testFetcher(t)
	_, err := f.Open(context.Background(), filepath.Join(t.TempDir(), "absent.csv"))
	if !errors.IsType(err, errors.ErrorTypeFile) {
		t.Errorf("Open error = %v, expected file error", err)
	}
}

func TestOpenUnsupportedScheme(t *testing.T) {
	f := testFetcher(t)
	_, err := f.Open(context.Background(), "ftp://host/data.csv")
	if !errors.IsType(err, errors.ErrorTypeConfig) {
		t.Errorf("Open error = %v, expected config error", err)
	}
}

func TestOpenHTTP(t *testing.T) {
	content := "ThermostatId,CycleType,StartTime,EndTime\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, content)
	}))
	defer srv.Close()
	f := testFetcher(t)

	rc, err := f.Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := readAndClose(t, rc); string(got) != content {
		t.Errorf("Open read %q, expected %q", got, content)
	}
}

func TestOpenHTTPRetriesServerErrors(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()
	f := testFetcher(t)

	rc, err := f.Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := readAndClose(t, rc); string(got) != "ok" {
		t.Errorf("Open read %q, expected %q", got, "ok")
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("attempts = %d, expected 3", n)
	}
}

func TestOpenHTTPNotFoundDoesNotRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	f := testFetcher(t)

	_, err := f.Open(context.Background(), srv.URL)
	if !errors.IsType(err, errors.ErrorTypeNotFound) {
		t.Errorf("Open error = %v, expected not-found error", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("attempts = %d, expected 1", n)
	}
}

func TestOpenHTTPExhaustsRetries(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	f := testFetcher(t)

	_, err := f.Open(context.Background(), srv.URL)
	if !errors.IsType(err, errors.ErrorTypeFetch) {
		t.Errorf("Open error = %v, expected fetch error", err)
	}
	// Initial attempt plus three retries.
	if n := atomic.LoadInt32(&attempts); n != 4 {
		t.Errorf("attempts = %d, expected 4", n)
	}
}

func TestOpenerReopens(t *testing.T) {
	content := "a,b,c\n1,2,3\n"
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	f := testFetcher(t)

	open := f.Opener(path)
	for pass := 0; pass < 2; pass++ {
		rc, err := open(context.Background())
		if err != nil {
			t.Fatalf("pass %d: open failed: %v", pass, err)
		}
		if got := readAndClose(t, rc); string(got) != content {
			t.Errorf("pass %d: read %q, expected %q", pass, got, content)
		}
	}
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.FetchConfig{
		Timeout:         5 * time.Second,
		ConnectTimeout:  time.Second,
		RetryAttempts:   5,
		RetryDelay:      200 * time.Millisecond,
		RetryMultiplier: 2,
	}
	f := New(cfg, Options{}, zaptest.NewLogger(t))
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Open(ctx, srv.URL)
	if err == nil {
		t.Fatal("Open succeeded, expected an error")
	}
}
