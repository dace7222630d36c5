//go:build !cephrados

package storage

import "errors"

var errNoRados = errors.New("storage: built without rados support (cephrados build tag)")

// cephStub stands in when the binary is built without librados. Every
// operation fails with an explicit error rather than at link time.
type cephStub struct {
	cfg CephConfig
}

func NewCephContext(cfg CephConfig) Context {
	cfg.fillDefaults()
	return &cephStub{cfg: cfg}
}

func (c *cephStub) Connect() error                               { return errNoRados }
func (c *cephStub) Connected() bool                              { return false }
func (c *cephStub) Type() ContextType                            { return TypeCeph }
func (c *cephStub) Tray() string                                 { return c.cfg.Pool }
func (c *cephStub) Read(int, int, string) ([]byte, error)        { return nil, errNoRados }
func (c *cephStub) Write([]byte, int, string) error              { return errNoRados }
func (c *cephStub) WriteFull([]byte, string) error               { return errNoRados }
func (c *cephStub) OpenToWrite(string) error                     { return errNoRados }
func (c *cephStub) CloseToWrite(string) error                    { return errNoRados }
func (c *cephStub) Exists(string) bool                           { return false }
