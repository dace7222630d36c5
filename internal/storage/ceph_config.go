package storage

import "strconv"

// CephConfig describes a rados pool context. Zero fields are filled from
// the ROK4_CEPH_* environment variables.
type CephConfig struct {
	Cluster  string
	User     string
	ConfFile string
	Pool     string

	// TimeoutSec applies to mount, mon and osd operations.
	TimeoutSec int
}

func (cfg *CephConfig) fillDefaults() {
	if cfg.Cluster == "" {
		cfg.Cluster = getenv(EnvCephCluster, "ceph")
	}
	if cfg.User == "" {
		cfg.User = getenv(EnvCephUser, "client.admin")
	}
	if cfg.ConfFile == "" {
		cfg.ConfFile = getenv(EnvCephConf, "/etc/ceph/ceph.conf")
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 60
	}
}

func (cfg CephConfig) timeoutSeconds() string {
	return strconv.Itoa(cfg.TimeoutSec)
}
