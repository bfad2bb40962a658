// Package fetch opens raw input files by URL. Bare paths and file://
// URLs read the local filesystem, memory-mapped past a size threshold;
// http:// and https:// fetch through a pooled HTTP/2 client; s3:// and
// gs:// read from object storage, with large S3 objects downloaded in
// concurrent ranged parts. Remote opens retry with exponential backoff.
package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/caar/pkg/config"
	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/logger"
	"github.com/ajitpratap0/caar/pkg/mmap"
	stringpool "github.com/ajitpratap0/caar/pkg/strings"
)

// Files at or above this size are memory-mapped instead of read through
// buffered syscalls.
const mmapThreshold = 4 << 20

const maxRedirects = 10

// Options carries the optional cloud settings a deployment may need.
// Zero values defer to each SDK's ambient environment.
type Options struct {
	// S3Region overrides the region resolved from the AWS environment.
	S3Region string `json:"s3_region" yaml:"s3_region"`
	// S3Endpoint points at an S3-compatible service when non-empty.
	S3Endpoint string `json:"s3_endpoint" yaml:"s3_endpoint"`
	// GCSCredentialsFile points at a service account key file.
	GCSCredentialsFile string `json:"gcs_credentials_file" yaml:"gcs_credentials_file"`
	// GCSAccessToken authenticates with a static bearer token instead.
	GCSAccessToken string `json:"gcs_access_token" yaml:"gcs_access_token"`
}

// Opener re-opens one input. Raw files are read twice, once to sniff the
// dialect and once to parse, so every input must come back fresh.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Fetcher opens inputs by URL. Cloud clients are created on first use
// and shared for the fetcher's lifetime.
type Fetcher struct {
	cfg        config.FetchConfig
	opts       Options
	logger     *zap.Logger
	httpClient *http.Client

	mu        sync.Mutex
	s3Client  *s3.Client
	gcsClient *storage.Client
}

// New creates a fetcher. Zero-valued option fields fall back to the
// corresponding fetch configuration fields; a nil log falls back to the
// package logger.
func New(cfg config.FetchConfig, opts Options, log *zap.Logger) *Fetcher {
	if log == nil {
		log = logger.Get()
	}
	if opts.S3Region == "" {
		opts.S3Region = cfg.S3Region
	}
	if opts.S3Endpoint == "" {
		opts.S3Endpoint = cfg.S3Endpoint
	}
	if opts.GCSCredentialsFile == "" {
		opts.GCSCredentialsFile = cfg.GCSCredentialsFile
	}
	f := &Fetcher{
		cfg:    cfg,
		opts:   opts,
		logger: log.With(zap.String("component", "fetch")),
	}
	f.httpClient = f.newHTTPClient()
	return f
}

func (f *Fetcher) newHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   f.cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		f.logger.Warn("failed to configure HTTP/2", zap.Error(err))
	}
	return &http.Client{
		Transport: transport,
		Timeout:   f.cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New(errors.ErrorTypeFetch, "too many redirects")
			}
			return nil
		},
	}
}

// Open opens the named input, routed by URL scheme.
func (f *Fetcher) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	scheme, rest := splitScheme(url)
	switch scheme {
	case "", "file":
		return f.openFile(rest)
	case "http", "https":
		return f.openHTTP(ctx, url)
	case "s3":
		return f.openS3(ctx, rest)
	case "gs":
		return f.openGCS(ctx, rest)
	default:
		return nil, errors.New(errors.ErrorTypeConfig,
			stringpool.Sprintf("unsupported URL scheme %q", scheme))
	}
}

// Opener returns a factory that re-opens the same input.
func (f *Fetcher) Opener(url string) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return f.Open(ctx, url)
	}
}

// Close releases pooled connections and cloud clients.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if transport, ok := f.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	if f.gcsClient != nil {
		if err := f.gcsClient.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to close GCS client")
		}
		f.gcsClient = nil
	}
	return nil
}

func splitScheme(raw string) (string, string) {
	i := strings.Index(raw, "://")
	if i < 0 {
		return "", raw
	}
	return strings.ToLower(raw[:i]), raw[i+len("://"):]
}

// splitBucket divides "bucket/key" at the first slash.
func splitBucket(rest string) (bucket, key string, ok bool) {
	i := strings.IndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// mappedFile serves a memory-mapped region and unmaps it on Close.
type mappedFile struct {
	*bytes.Reader
	m *mmap.Reader
}

func (mf *mappedFile) Close() error { return mf.m.Close() }

func (f *Fetcher) openFile(path string) (io.ReadCloser, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile,
			stringpool.Sprintf("failed to open %s", path))
	}
	if info.Size() >= mmapThreshold {
		m, err := mmap.NewReader(path)
		if err == nil {
			f.logger.Debug("input memory-mapped",
				zap.String("path", path),
				zap.Int64("bytes", m.Size()))
			return &mappedFile{Reader: bytes.NewReader(m.ReadAll()), m: m}, nil
		}
		f.logger.Warn("mmap failed, falling back to buffered reads",
			zap.String("path", path), zap.Error(err))
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile,
			stringpool.Sprintf("failed to open %s", path))
	}
	return file, nil
}

func (f *Fetcher) openHTTP(ctx context.Context, url string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := f.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig,
				stringpool.Sprintf("invalid URL %s", url))
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFetch,
				stringpool.Sprintf("failed to fetch %s", url))
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
				return errors.New(errors.ErrorTypeNotFound,
					stringpool.Sprintf("%s returned status %d", url, resp.StatusCode))
			}
			return errors.New(errors.ErrorTypeFetch,
				stringpool.Sprintf("%s returned status %d", url, resp.StatusCode))
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) openS3(ctx context.Context, rest string) (io.ReadCloser, error) {
	bucket, key, ok := splitBucket(rest)
	if !ok {
		return nil, errors.New(errors.ErrorTypeConfig,
			stringpool.Sprintf("s3 URL %q needs a bucket and a key", "s3://"+rest))
	}
	client, err := f.s3(ctx)
	if err != nil {
		return nil, err
	}
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil && aws.ToInt64(head.ContentLength) >= mmapThreshold {
		return f.downloadS3(ctx, client, bucket, key)
	}
	var body io.ReadCloser
	err = f.retry(ctx, func() error {
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFetch,
				stringpool.Sprintf("failed to fetch s3://%s/%s", bucket, key))
		}
		body = out.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// downloadS3 pulls a large object in concurrent ranged parts. The
// download manager needs an io.WriterAt, so the parts land in a temp
// file that is removed when the caller closes the reader.
func (f *Fetcher) downloadS3(ctx context.Context, client *s3.Client, bucket, key string) (io.ReadCloser, error) {
	tmp, err := os.CreateTemp("", "caar-s3-*")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create spool file")
	}
	downloader := manager.NewDownloader(client)
	err = f.retry(ctx, func() error {
		n, err := downloader.Download(ctx, tmp, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFetch,
				stringpool.Sprintf("failed to download s3://%s/%s", bucket, key))
		}
		f.logger.Debug("s3 object spooled",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Int64("bytes", n))
		return nil
	})
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to rewind spool file")
	}
	return &spoolFile{File: tmp}, nil
}

// spoolFile removes the backing temp file on close.
type spoolFile struct {
	*os.File
}

func (s *spoolFile) Close() error {
	err := s.File.Close()
	if rmErr := os.Remove(s.Name()); err == nil {
		err = rmErr
	}
	return err
}

func (f *Fetcher) s3(ctx context.Context) (*s3.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.s3Client != nil {
		return f.s3Client, nil
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if f.opts.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(f.opts.S3Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}
	f.s3Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if f.opts.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(f.opts.S3Endpoint)
			// MinIO and similar stores do not serve virtual-hosted buckets.
			o.UsePathStyle = true
		}
	})
	return f.s3Client, nil
}

func (f *Fetcher) openGCS(ctx context.Context, rest string) (io.ReadCloser, error) {
	bucket, object, ok := splitBucket(rest)
	if !ok {
		return nil, errors.New(errors.ErrorTypeConfig,
			stringpool.Sprintf("gs URL %q needs a bucket and an object", "gs://"+rest))
	}
	client, err := f.gcs(ctx)
	if err != nil {
		return nil, err
	}
	var body io.ReadCloser
	err = f.retry(ctx, func() error {
		r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFetch,
				stringpool.Sprintf("failed to fetch gs://%s/%s", bucket, object))
		}
		body = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) gcs(ctx context.Context) (*storage.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gcsClient != nil {
		return f.gcsClient, nil
	}
	var opts []option.ClientOption
	if f.opts.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(f.opts.GCSCredentialsFile))
	}
	if f.opts.GCSAccessToken != "" {
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: f.opts.GCSAccessToken})))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}
	f.gcsClient = client
	return f.gcsClient, nil
}

// retry runs fn under the configured backoff policy, stopping early on
// success, a non-retryable error, or context cancellation.
func (f *Fetcher) retry(ctx context.Context, fn func() error) error {
	delay := f.cfg.RetryDelay
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.IsRetryable(err) || attempt >= f.cfg.RetryAttempts {
			return err
		}
		f.logger.Debug("retrying fetch",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "fetch canceled")
		}
		delay = time.Duration(float64(delay) * f.cfg.RetryMultiplier)
		if f.cfg.MaxRetryDelay > 0 && delay > f.cfg.MaxRetryDelay {
			delay = f.cfg.MaxRetryDelay
		}
	}
}
