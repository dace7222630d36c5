package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// flushAttempts bounds the object PUT retries on close.
const flushAttempts = 10

// S3Config describes an S3 bucket context. Zero fields are filled from the
// ROK4_S3_* environment variables.
type S3Config struct {
	URL       string
	Key       string
	SecretKey string
	Bucket    string

	// Attempts is the total number of tries for a read hitting a
	// transient error. Defaults to 3.
	Attempts int
}

func (cfg *S3Config) fillDefaults() {
	if cfg.URL == "" {
		cfg.URL = getenv(EnvS3URL, "http://localhost:8080")
	}
	if cfg.Key == "" {
		cfg.Key = getenv(EnvS3Key, "KEY")
	}
	if cfg.SecretKey == "" {
		cfg.SecretKey = getenv(EnvS3SecretKey, "SECRETKEY")
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
}

// Host returns the URL without protocol and port.
func (cfg S3Config) Host() string {
	h := cfg.URL
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.Index(h, ":"); i >= 0 {
		h = h[:i]
	}
	return h
}

// s3API is the subset of the minio client used by S3Context. Tests provide
// a fake implementation to simulate transient failures.
type s3API interface {
	GetObject(ctx context.Context, bucket, object string, offset, size int64) (io.ReadCloser, error)
	PutObject(ctx context.Context, bucket, object string, body io.Reader, size int64) error
	StatObject(ctx context.Context, bucket, object string) error
}

// minioAPI adapts *minio.Client to s3API.
type minioAPI struct {
	c *minio.Client
}

func (m minioAPI) GetObject(ctx context.Context, bucket, object string, offset, size int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+size-1); err != nil {
		return nil, err
	}
	return m.c.GetObject(ctx, bucket, object, opts)
}

func (m minioAPI) PutObject(ctx context.Context, bucket, object string, body io.Reader, size int64) error {
	_, err := m.c.PutObject(ctx, bucket, object, body, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (m minioAPI) StatObject(ctx context.Context, bucket, object string) error {
	_, err := m.c.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
	return err
}

// S3Context stores slabs as objects of one bucket. Requests are signed with
// AWS signature v2, which is what the object back-ends deployed with
// pyramids accept.
type S3Context struct {
	cfg       S3Config
	api       s3API
	connected bool

	mu       sync.Mutex
	staged   map[string]*stagingBuffer
}

func NewS3Context(cfg S3Config) *S3Context {
	cfg.fillDefaults()
	return &S3Context{cfg: cfg, staged: make(map[string]*stagingBuffer)}
}

// newS3ContextWithAPI wires a fake API in tests.
func newS3ContextWithAPI(cfg S3Config, api s3API) *S3Context {
	cfg.fillDefaults()
	return &S3Context{cfg: cfg, api: api, staged: make(map[string]*stagingBuffer)}
}

func (c *S3Context) Connect() error {
	if c.connected {
		return nil
	}
	if c.api == nil {
		endpoint := c.cfg.URL
		secure := strings.HasPrefix(endpoint, "https://")
		endpoint = strings.TrimPrefix(endpoint, "https://")
		endpoint = strings.TrimPrefix(endpoint, "http://")

		var transport http.RoundTripper
		if secure && sslNoVerify() {
			transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
		}

		client, err := minio.New(endpoint, &minio.Options{
			Creds:     credentials.NewStaticV2(c.cfg.Key, c.cfg.SecretKey, ""),
			Secure:    secure,
			Transport: transport,
		})
		if err != nil {
			return fmt.Errorf("creating S3 client for %s: %w", c.cfg.URL, err)
		}
		c.api = minioAPI{c: client}
	}
	c.connected = true
	return nil
}

func (c *S3Context) Connected() bool { return c.connected }

func (c *S3Context) Type() ContextType { return TypeS3 }

func (c *S3Context) Tray() string { return c.cfg.Bucket }

// classifyS3Error maps a backend error onto the retry policy: ErrNotFound
// is permanent, ErrTimeout transient, anything else surfaces as-is.
func classifyS3Error(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func (c *S3Context) Read(offset, size int, name string) ([]byte, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}
	readsTotal.WithLabelValues("s3").Inc()

	var lastErr error
	for attempt := 0; attempt < c.cfg.Attempts; attempt++ {
		if attempt > 0 {
			readRetriesTotal.WithLabelValues("s3").Inc()
			slog.Warn("retrying S3 read", "object", name, "attempt", attempt+1)
		}
		data, err := c.readOnce(offset, size, name)
		if err == nil {
			return data, nil
		}
		err = classifyS3Error(err)
		if !errors.Is(err, ErrTimeout) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("reading %s after %d attempts: %w", name, c.cfg.Attempts, lastErr)
}

func (c *S3Context) readOnce(offset, size int, name string) ([]byte, error) {
	obj, err := c.api.GetObject(context.Background(), c.cfg.Bucket, name, int64(offset), int64(size))
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	// A range running past the end of the object yields the shorter
	// slice: that is how symbolic slabs are detected upstream.
	data, err := io.ReadAll(io.LimitReader(obj, int64(size)))
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *S3Context) Exists(name string) bool {
	if !c.connected {
		return false
	}
	return c.api.StatObject(context.Background(), c.cfg.Bucket, name) == nil
}

func (c *S3Context) OpenToWrite(name string) error {
	if !c.connected {
		return ErrNotConnected
	}
	c.mu.Lock()
	c.staged[name] = &stagingBuffer{}
	c.mu.Unlock()
	return nil
}

func (c *S3Context) staging(name string) *stagingBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.staged[name]
}

func (c *S3Context) Write(data []byte, offset int, name string) error {
	buf := c.staging(name)
	if buf == nil {
		return fmt.Errorf("writing object %s: not open", name)
	}
	buf.writeAt(data, offset)
	return nil
}

func (c *S3Context) WriteFull(data []byte, name string) error {
	buf := c.staging(name)
	if buf == nil {
		return fmt.Errorf("writing object %s: not open", name)
	}
	buf.append(data)
	return nil
}

func (c *S3Context) CloseToWrite(name string) error {
	c.mu.Lock()
	buf := c.staged[name]
	delete(c.staged, name)
	c.mu.Unlock()

	if buf == nil {
		return fmt.Errorf("closing object %s: not open", name)
	}

	data := buf.bytes()
	var lastErr error
	for attempt := 0; attempt < flushAttempts; attempt++ {
		if attempt > 0 {
			writeRetriesTotal.WithLabelValues("s3").Inc()
			time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
		}
		writesTotal.WithLabelValues("s3").Inc()
		err := c.api.PutObject(context.Background(), c.cfg.Bucket, name, bytes.NewReader(data), int64(len(data)))
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Warn("S3 object flush failed", "object", name, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("flushing object %s after %d attempts: %w", name, flushAttempts, lastErr)
}
