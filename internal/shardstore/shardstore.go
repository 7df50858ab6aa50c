// Package shardstore stages demultiplexed shard bytes to temporary files
// while streaming both a SHA-256 and a RIPEMD-160(SHA-256) digest.
package shardstore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ripemd160"
)

// Staged is a shard that has been written to a temp file and fully hashed.
type Staged struct {
	Path string
	Size int64
	Hash string // hex RIPEMD-160(SHA-256(bytes))
}

// Stage copies shard into a freshly created temp file under dir (the OS
// temp dir if empty) named with a 12-hex-char suffix, computing its hash
// as it writes.
func Stage(dir string, shard io.Reader) (*Staged, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "shard-"+randomHex(12))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create shard temp file: %w", err)
	}
	defer f.Close()

	sha := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, sha), shard)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write shard to temp file: %w", err)
	}

	ripe := ripemd160.New()
	ripe.Write(sha.Sum(nil))

	return &Staged{
		Path: path,
		Size: size,
		Hash: hex.EncodeToString(ripe.Sum(nil)),
	}, nil
}

// Cleanup removes the staged temp file. Safe to call more than once.
func (s *Staged) Cleanup() error {
	if s == nil {
		return nil
	}
	err := os.Remove(s.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Open returns a reader over the staged file for transfer.
func (s *Staged) Open() (*os.File, error) {
	return os.Open(s.Path)
}

func randomHex(n int) string {
	buf := make([]byte, n/2+1)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)[:n]
}
