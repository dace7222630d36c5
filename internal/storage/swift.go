package storage

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SwiftConfig describes a Swift container context. Two authentication modes
// are supported: the legacy TempAuth handshake, which returns both the
// storage URL and a token, and a Keystone v3 password grant, where the
// storage URL is provided by configuration.
type SwiftConfig struct {
	AuthURL   string
	Account   string
	User      string
	Password  string
	Container string

	Keystone  bool
	DomainID  string
	ProjectID string
	PublicURL string

	Attempts int
}

func (cfg *SwiftConfig) fillDefaults() {
	if cfg.AuthURL == "" {
		cfg.AuthURL = getenv(EnvSwiftAuthURL, "http://localhost:8080/auth/v1.0")
	}
	if cfg.Account == "" {
		cfg.Account = getenv(EnvSwiftAccount, "")
	}
	if cfg.User == "" {
		cfg.User = getenv(EnvSwiftUser, "tester")
	}
	if cfg.Password == "" {
		cfg.Password = getenv(EnvSwiftPasswd, "password")
	}
	if cfg.DomainID == "" {
		cfg.DomainID = getenv(EnvKeystoneDomain, "")
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = getenv(EnvKeystoneProject, "")
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = getenv(EnvSwiftPublicURL, "")
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
}

// SwiftContext stores slabs as objects of one Swift container.
type SwiftContext struct {
	cfg       SwiftConfig
	client    *http.Client
	connected bool

	token      string
	storageURL string

	mu     sync.Mutex
	staged map[string]*stagingBuffer
}

func NewSwiftContext(cfg SwiftConfig) *SwiftContext {
	cfg.fillDefaults()

	client := &http.Client{Timeout: 60 * time.Second}
	if sslNoVerify() {
		client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	return &SwiftContext{cfg: cfg, client: client, staged: make(map[string]*stagingBuffer)}
}

func (c *SwiftContext) Connect() error {
	if c.connected {
		return nil
	}
	var err error
	if c.cfg.Keystone {
		err = c.keystoneAuth()
	} else {
		err = c.tempAuth()
	}
	if err != nil {
		return err
	}
	c.connected = true
	return nil
}

// tempAuth performs the legacy handshake: credentials go in headers, the
// storage URL and token come back in headers.
func (c *SwiftContext) tempAuth() error {
	req, err := http.NewRequest(http.MethodGet, c.cfg.AuthURL, nil)
	if err != nil {
		return err
	}
	user := c.cfg.User
	if c.cfg.Account != "" {
		user = c.cfg.Account + ":" + c.cfg.User
	}
	req.Header.Set("X-Storage-User", user)
	req.Header.Set("X-Storage-Pass", c.cfg.Password)
	req.Header.Set("X-Auth-User", user)
	req.Header.Set("X-Auth-Key", c.cfg.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("swift authentication on %s: %w", c.cfg.AuthURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("swift authentication on %s: status %d", c.cfg.AuthURL, resp.StatusCode)
	}

	c.token = resp.Header.Get("X-Auth-Token")
	c.storageURL = resp.Header.Get("X-Storage-Url")
	if c.token == "" || c.storageURL == "" {
		return fmt.Errorf("swift authentication on %s: missing token or storage URL in response", c.cfg.AuthURL)
	}
	return nil
}

// keystoneAuth performs a Keystone v3 password grant. The storage endpoint
// is not discovered from the catalog: it must be configured (PublicURL).
func (c *SwiftContext) keystoneAuth() error {
	if c.cfg.DomainID == "" {
		return errors.New("keystone authentication needs a domain id (" + EnvKeystoneDomain + ")")
	}
	if c.cfg.ProjectID == "" {
		return errors.New("keystone authentication needs a project id (" + EnvKeystoneProject + ")")
	}
	if c.cfg.PublicURL == "" {
		return errors.New("keystone authentication needs a public url (" + EnvSwiftPublicURL + ")")
	}

	body := map[string]any{
		"auth": map[string]any{
			"scope": map[string]any{
				"project": map[string]any{"id": c.cfg.ProjectID},
			},
			"identity": map[string]any{
				"methods": []string{"password"},
				"password": map[string]any{
					"user": map[string]any{
						"domain":   map[string]any{"id": c.cfg.DomainID},
						"name":     c.cfg.User,
						"password": c.cfg.Password,
					},
				},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.AuthURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("keystone authentication on %s: %w", c.cfg.AuthURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("keystone authentication on %s: status %d", c.cfg.AuthURL, resp.StatusCode)
	}

	c.token = resp.Header.Get("X-Subject-Token")
	if c.token == "" {
		return fmt.Errorf("keystone authentication on %s: no token in response", c.cfg.AuthURL)
	}
	c.storageURL = strings.TrimRight(c.cfg.PublicURL, "/")
	return nil
}

func (c *SwiftContext) Connected() bool { return c.connected }

func (c *SwiftContext) Type() ContextType { return TypeSwift }

func (c *SwiftContext) Tray() string { return c.cfg.Container }

func (c *SwiftContext) objectURL(name string) string {
	return strings.TrimRight(c.storageURL, "/") + "/" + c.cfg.Container + "/" + name
}

func classifySwiftError(status int, err error) error {
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return err
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status 404", ErrNotFound)
	case status < 200 || status > 299:
		return fmt.Errorf("swift request failed: status %d", status)
	}
	return nil
}

func (c *SwiftContext) Read(offset, size int, name string) ([]byte, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}
	readsTotal.WithLabelValues("swift").Inc()

	var lastErr error
	for attempt := 0; attempt < c.cfg.Attempts; attempt++ {
		if attempt > 0 {
			readRetriesTotal.WithLabelValues("swift").Inc()
			slog.Warn("retrying Swift read", "object", name, "attempt", attempt+1)
		}
		data, err := c.readOnce(offset, size, name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrTimeout) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("reading %s after %d attempts: %w", name, c.cfg.Attempts, lastErr)
}

func (c *SwiftContext) readOnce(offset, size int, name string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.objectURL(name), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Auth-Token", c.token)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+size-1))

	resp, err := c.client.Do(req)
	if cerr := classifySwiftError(0, err); cerr != nil {
		return nil, cerr
	}
	defer resp.Body.Close()

	if cerr := classifySwiftError(resp.StatusCode, nil); cerr != nil {
		return nil, cerr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(size)))
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *SwiftContext) Exists(name string) bool {
	if !c.connected {
		return false
	}
	req, err := http.NewRequest(http.MethodHead, c.objectURL(name), nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-Auth-Token", c.token)
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

func (c *SwiftContext) OpenToWrite(name string) error {
	if !c.connected {
		return ErrNotConnected
	}
	c.mu.Lock()
	c.staged[name] = &stagingBuffer{}
	c.mu.Unlock()
	return nil
}

func (c *SwiftContext) staging(name string) *stagingBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.staged[name]
}

func (c *SwiftContext) Write(data []byte, offset int, name string) error {
	buf := c.staging(name)
	if buf == nil {
		return fmt.Errorf("writing object %s: not open", name)
	}
	buf.writeAt(data, offset)
	return nil
}

func (c *SwiftContext) WriteFull(data []byte, name string) error {
	buf := c.staging(name)
	if buf == nil {
		return fmt.Errorf("writing object %s: not open", name)
	}
	buf.append(data)
	return nil
}

func (c *SwiftContext) CloseToWrite(name string) error {
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
			writeRetriesTotal.WithLabelValues("swift").Inc()
			time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
		}
		writesTotal.WithLabelValues("swift").Inc()

		err := c.putOnce(name, data)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Warn("Swift object flush failed", "object", name, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("flushing object %s after %d attempts: %w", name, flushAttempts, lastErr)
}

func (c *SwiftContext) putOnce(name string, data []byte) error {
	req, err := http.NewRequest(http.MethodPut, c.objectURL(name), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", c.token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(data))

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("swift PUT %s: status %d", name, resp.StatusCode)
	}
	return nil
}
