//go:build cephrados

package storage

import (
	"fmt"
	"sync"

	"github.com/ceph/go-ceph/rados"
)

// CephContext stores slabs as objects of one rados pool. Only built when
// the cephrados tag is set, since it links against librados.
type CephContext struct {
	cfg       CephConfig
	conn      *rados.Conn
	connected bool

	mu     sync.Mutex
	staged map[string]*stagingBuffer
}

func NewCephContext(cfg CephConfig) Context {
	cfg.fillDefaults()
	return &CephContext{cfg: cfg, staged: make(map[string]*stagingBuffer)}
}

func (c *CephContext) Connect() error {
	if c.connected {
		return nil
	}

	conn, err := rados.NewConnWithClusterAndUser(c.cfg.Cluster, c.cfg.User)
	if err != nil {
		return fmt.Errorf("creating rados connection: %w", err)
	}
	if err := conn.ReadConfigFile(c.cfg.ConfFile); err != nil {
		return fmt.Errorf("reading ceph configuration %s: %w", c.cfg.ConfFile, err)
	}
	for _, opt := range [][2]string{
		{"client_mount_timeout", c.cfg.timeoutSeconds()},
		{"rados_mon_op_timeout", c.cfg.timeoutSeconds()},
		{"rados_osd_op_timeout", c.cfg.timeoutSeconds()},
	} {
		if err := conn.SetConfigOption(opt[0], opt[1]); err != nil {
			return fmt.Errorf("setting %s: %w", opt[0], err)
		}
	}
	if err := conn.Connect(); err != nil {
		return fmt.Errorf("connecting to ceph cluster %s: %w", c.cfg.Cluster, err)
	}

	c.conn = conn
	c.connected = true
	return nil
}

func (c *CephContext) Connected() bool { return c.connected }

func (c *CephContext) Type() ContextType { return TypeCeph }

func (c *CephContext) Tray() string { return c.cfg.Pool }

func (c *CephContext) ioctx() (*rados.IOContext, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}
	ioctx, err := c.conn.OpenIOContext(c.cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("opening pool %s: %w", c.cfg.Pool, err)
	}
	return ioctx, nil
}

func (c *CephContext) Read(offset, size int, name string) ([]byte, error) {
	readsTotal.WithLabelValues("ceph").Inc()

	ioctx, err := c.ioctx()
	if err != nil {
		return nil, err
	}
	defer ioctx.Destroy()

	buf := make([]byte, size)
	n, err := ioctx.Read(name, buf, uint64(offset))
	if err != nil {
		if err == rados.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading object %s: %w", name, err)
	}
	return buf[:n], nil
}

func (c *CephContext) Exists(name string) bool {
	ioctx, err := c.ioctx()
	if err != nil {
		return false
	}
	defer ioctx.Destroy()
	_, err = ioctx.Stat(name)
	return err == nil
}

func (c *CephContext) OpenToWrite(name string) error {
	if !c.connected {
		return ErrNotConnected
	}
	c.mu.Lock()
	c.staged[name] = &stagingBuffer{}
	c.mu.Unlock()
	return nil
}

func (c *CephContext) staging(name string) *stagingBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.staged[name]
}

func (c *CephContext) Write(data []byte, offset int, name string) error {
	buf := c.staging(name)
	if buf == nil {
		return fmt.Errorf("writing object %s: not open", name)
	}
	buf.writeAt(data, offset)
	return nil
}

func (c *CephContext) WriteFull(data []byte, name string) error {
	buf := c.staging(name)
	if buf == nil {
		return fmt.Errorf("writing object %s: not open", name)
	}
	buf.append(data)
	return nil
}

func (c *CephContext) CloseToWrite(name string) error {
	c.mu.Lock()
	buf := c.staged[name]
	delete(c.staged, name)
	c.mu.Unlock()

	if buf == nil {
		return fmt.Errorf("closing object %s: not open", name)
	}

	ioctx, err := c.ioctx()
	if err != nil {
		return err
	}
	defer ioctx.Destroy()

	writesTotal.WithLabelValues("ceph").Inc()
	if err := ioctx.WriteFull(name, buf.bytes()); err != nil {
		return fmt.Errorf("flushing object %s: %w", name, err)
	}
	return nil
}
