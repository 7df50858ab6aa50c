// Package datachannel implements a bidirectional byte channel to a single
// farmer, identified by a bridge.Contact, exposing CreateReadStream/
// CreateWriteStream semantics. Each farmer is modeled as an S3-compatible
// endpoint reached through github.com/minio/minio-go/v7: the pointer's
// token is the bucket, the shard hash is the object key.
package datachannel

import (
	"context"
	"fmt"
	"io"

	"nimbus/internal/bridge"
	"nimbus/internal/obslog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client opens streams to a single farmer.
type Client struct {
	contact bridge.Contact
	minio   *minio.Client
	logger  obslog.Logger
}

// New dials contact, logging an open event on success or an error event
// before returning the failure. Credentials are derived from the contact's
// node id and public key.
func New(contact bridge.Contact, secure bool, logger obslog.Logger) (*Client, error) {
	if logger == nil {
		logger = obslog.Noop()
	}
	endpoint := fmt.Sprintf("%s:%d", contact.Address, contact.Port)
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(contact.NodeID, contact.PublicKey, ""),
		Secure: secure,
	})
	if err != nil {
		logger.Error("data channel open failed", "nodeId", contact.NodeID, "error", err)
		return nil, fmt.Errorf("open data channel to %s: %w", contact.NodeID, err)
	}
	logger.Debug("data channel open", "nodeId", contact.NodeID, "endpoint", endpoint)
	return &Client{contact: contact, minio: mc, logger: logger}, nil
}

// Contact returns the farmer this client is connected to.
func (c *Client) Contact() bridge.Contact { return c.contact }

// Close tears down the channel. The underlying minio.Client holds no
// connection handle of its own to release; Close exists so callers can
// track and destroy data channels uniformly.
func (c *Client) Close() error {
	c.logger.Debug("data channel closed", "nodeId", c.contact.NodeID)
	return nil
}

// CreateWriteStream returns a writable shard stream parameterized by
// (token, hash): bytes written to it are streamed to the farmer as object
// hash in bucket token, creating the bucket on first use.
func (c *Client) CreateWriteStream(ctx context.Context, token, hash string) (io.WriteCloser, error) {
	exists, err := c.minio.BucketExists(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("check token bucket %s on %s: %w", token, c.contact.NodeID, err)
	}
	if !exists {
		if err := c.minio.MakeBucket(ctx, token, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create token bucket %s on %s: %w", token, c.contact.NodeID, err)
		}
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := c.minio.PutObject(ctx, token, hash, pr, -1, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		pr.CloseWithError(err)
		done <- err
	}()
	return &writeStream{pw: pw, done: done}, nil
}

type writeStream struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *writeStream) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *writeStream) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

// CreateReadStream returns a readable shard stream for object hash in
// bucket token. It stats the object before returning so unreachable
// farmers or missing shards surface immediately as an "error", rather than
// on first Read.
func (c *Client) CreateReadStream(ctx context.Context, token, hash string) (io.ReadCloser, error) {
	if _, err := c.minio.StatObject(ctx, token, hash, minio.StatObjectOptions{}); err != nil {
		return nil, fmt.Errorf("stat shard %s on %s: %w", hash, c.contact.NodeID, err)
	}
	obj, err := c.minio.GetObject(ctx, token, hash, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("read shard %s from %s: %w", hash, c.contact.NodeID, err)
	}
	return obj, nil
}
