package vault_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"nimbus/internal/auth"
	"nimbus/internal/bridge"
	"nimbus/internal/nimbuserr"
	"nimbus/pkg/vault"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsMutuallyExclusiveSigners(t *testing.T) {
	kp, err := auth.NewKeypair()
	require.NoError(t, err)

	_, err = vault.New(
		vault.WithBlacklistFolder(t.TempDir()),
		vault.WithKeypair(kp),
		vault.WithBasicAuth(&auth.BasicAuth{Email: "e", Password: "p"}),
	)
	require.Error(t, err)
	var cfgErr *nimbuserr.ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestNewDefaultsAreUsable(t *testing.T) {
	c, err := vault.New(vault.WithBlacklistFolder(t.TempDir()))
	require.NoError(t, err)
	defer c.Close()
}

func TestStoreFileInBucketRejectsEmptyFile(t *testing.T) {
	c, err := vault.New(vault.WithBlacklistFolder(t.TempDir()))
	require.NoError(t, err)
	defer c.Close()

	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	var gotErr error
	c.StoreFileInBucket(context.Background(), "aaaaaaaaaaaaaaaaaaaaaaaa", "push-token", path, func(entry *bridge.FileEntry, err error) {
		gotErr = err
	})

	require.Error(t, gotErr)
	var ioErr *nimbuserr.IOError
	require.True(t, errors.As(gotErr, &ioErr))
	require.Equal(t, "0 bytes is not a supported file size.", errors.Unwrap(ioErr).Error())
}
