// Package cli carries the plumbing the writer tools share: backend
// selection flags and the storage contexts they resolve to.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rok4/pyramid/internal/storage"
)

// ErrUsage marks argument errors, which exit with a distinct code.
var ErrUsage = errors.New("usage error")

// BackendFlags registers the storage selection flags shared by every
// writer tool: at most one of pool, bucket or container, the default
// being the local filesystem.
func BackendFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String("pool", "", "write to this Ceph pool instead of the filesystem")
	pf.String("bucket", "", "write to this S3 bucket instead of the filesystem")
	pf.String("container", "", "write to this Swift container instead of the filesystem")
	pf.Bool("ks", false, "authenticate against Swift through Keystone")
}

// ResolveContext builds and connects the storage context selected by the
// backend flags.
func ResolveContext(cmd *cobra.Command) (storage.Context, error) {
	pool, _ := cmd.Flags().GetString("pool")
	bucket, _ := cmd.Flags().GetString("bucket")
	container, _ := cmd.Flags().GetString("container")
	keystone, _ := cmd.Flags().GetBool("ks")

	selected := 0
	for _, v := range []string{pool, bucket, container} {
		if v != "" {
			selected++
		}
	}
	if selected > 1 {
		return nil, fmt.Errorf("%w: at most one of -pool, -bucket, -container", ErrUsage)
	}

	var ctx storage.Context
	switch {
	case pool != "":
		ctx = storage.NewCephContext(storage.CephConfig{Pool: pool})
	case bucket != "":
		ctx = storage.NewS3Context(storage.S3Config{Bucket: bucket})
	case container != "":
		ctx = storage.NewSwiftContext(storage.SwiftConfig{Container: container, Keystone: keystone})
	default:
		ctx = storage.NewFileContext("")
	}

	if err := ctx.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to %s storage: %w", ctx.Type(), err)
	}
	return ctx, nil
}

// Exit translates an error into the tool's exit code: 255 for usage
// errors (the traditional -1), 1 for anything else, 0 on success.
func Exit(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 255
	default:
		return 1
	}
}
