package vault

import (
	"context"
	"fmt"
	"io"

	"nimbus/internal/bridge"
)

// ResolveFileFromBucket performs a single fixed-window fetch: it looks up
// file's Frame to learn its shard count, fetches every pointer in one
// window, and assembles them via the Muxer. Use CreateFileStream instead
// when the file may still be growing via concurrent writes, since that
// path re-polls for further shards.
func (c *Client) ResolveFileFromBucket(ctx context.Context, bucketID, file string) (io.Reader, error) {
	normalizedBucket := bridge.NormalizeBucketID(bucketID, c.cfg.accountEmail, c.cfg.accountName)

	files, err := c.bridge.ListFiles(ctx, normalizedBucket)
	if err != nil {
		return nil, err
	}
	var entry *bridge.FileEntry
	for i := range files {
		if files[i].ID == file {
			entry = &files[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("file %s not found in bucket %s", file, normalizedBucket)
	}

	frame, err := c.bridge.GetFrame(ctx, entry.Frame)
	if err != nil {
		return nil, err
	}

	token, err := c.bridge.CreateToken(ctx, normalizedBucket, bridge.ChannelPull)
	if err != nil {
		return nil, err
	}
	pointers, err := c.bridge.GetFilePointers(ctx, normalizedBucket, token, file, 0, len(frame.Shards), nil)
	if err != nil {
		return nil, err
	}

	return c.downloader.ResolveFileFromPointers(ctx, pointers)
}

// CreateFileStream returns a sliding-window stream that keeps fetching
// further pointer windows until one comes back empty.
func (c *Client) CreateFileStream(ctx context.Context, bucketID, file string) (io.Reader, error) {
	normalizedBucket := bridge.NormalizeBucketID(bucketID, c.cfg.accountEmail, c.cfg.accountName)
	return c.downloader.CreateFileStream(ctx, normalizedBucket, file)
}

// CreateFileSliceStream returns a byte-range [start, end) read over file,
// trimmed to exactly end-start bytes.
func (c *Client) CreateFileSliceStream(ctx context.Context, bucketID, file string, start, end int64) (io.Reader, error) {
	normalizedBucket := bridge.NormalizeBucketID(bucketID, c.cfg.accountEmail, c.cfg.accountName)
	return c.downloader.CreateFileSliceStream(ctx, normalizedBucket, file, start, end)
}
