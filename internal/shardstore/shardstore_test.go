package shardstore_test

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"testing"

	"nimbus/internal/shardstore"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ripemd160"
)

func TestStageWritesAndHashes(t *testing.T) {
	dir := t.TempDir()
	payload := "shard payload bytes"

	staged, err := shardstore.Stage(dir, strings.NewReader(payload))
	require.NoError(t, err)
	defer staged.Cleanup()

	require.Equal(t, int64(len(payload)), staged.Size)

	sha := sha256.Sum256([]byte(payload))
	ripe := ripemd160.New()
	ripe.Write(sha[:])
	want, err := hex.DecodeString(staged.Hash)
	require.NoError(t, err)
	require.Equal(t, ripe.Sum(nil), want)

	f, err := staged.Open()
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, payload, string(data))
}

func TestCleanupRemovesFile(t *testing.T) {
	dir := t.TempDir()
	staged, err := shardstore.Stage(dir, strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, staged.Cleanup())
	_, err = os.Stat(staged.Path)
	require.True(t, os.IsNotExist(err))

	// Idempotent.
	require.NoError(t, staged.Cleanup())
}
