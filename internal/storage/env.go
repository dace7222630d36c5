package storage

import "os"

// Environment variables honoured by the default context constructors.
const (
	EnvCephCluster  = "ROK4_CEPH_CLUSTERNAME"
	EnvCephUser     = "ROK4_CEPH_USERNAME"
	EnvCephConf     = "ROK4_CEPH_CONFFILE"
	EnvS3URL        = "ROK4_S3_URL"
	EnvS3Key        = "ROK4_S3_KEY"
	EnvS3SecretKey  = "ROK4_S3_SECRETKEY"
	EnvSwiftAuthURL = "ROK4_SWIFT_AUTHURL"
	EnvSwiftUser    = "ROK4_SWIFT_USER"
	EnvSwiftPasswd  = "ROK4_SWIFT_PASSWD"
	EnvSwiftAccount = "ROK4_SWIFT_ACCOUNT"
	EnvKeystoneDomain  = "ROK4_KEYSTONE_DOMAINID"
	EnvKeystoneProject = "ROK4_KEYSTONE_PROJECTID"
	EnvSwiftPublicURL  = "ROK4_SWIFT_PUBLICURL"
	EnvSSLNoVerify     = "ROK4_SSL_NO_VERIFY"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func sslNoVerify() bool {
	return os.Getenv(EnvSSLNoVerify) != ""
}
