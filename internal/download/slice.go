package download

import (
	"context"
	"fmt"
	"io"

	"nimbus/internal/bridge"
)

// sliceWindow computes the pointer window and byte trim needed to serve
// exactly [start, end) of a file, given its frame's shards in index order.
func sliceWindow(shards []bridge.FrameShard, start, end int64) (skip, limit int, trimFront, trimBack int64, err error) {
	if start < 0 || end <= start {
		return 0, 0, 0, 0, fmt.Errorf("invalid range [%d, %d)", start, end)
	}

	var running int64
	started := false
	var startBoundary, endBoundary int64

	for i, sh := range shards {
		running += sh.Size
		if !started && start < running {
			started = true
			startBoundary = running
			skip = i
		}
		if started {
			limit++
			if end <= running {
				endBoundary = running
				trimFront = start - (startBoundary - shards[skip].Size)
				trimBack = endBoundary - end
				return skip, limit, trimFront, trimBack, nil
			}
		}
	}

	return 0, 0, 0, 0, fmt.Errorf("range [%d, %d) exceeds file size %d", start, end, running)
}

// trimmedReader discards the first skip bytes of src, then yields exactly
// length bytes before reporting io.EOF.
type trimmedReader struct {
	src       io.Reader
	skip      int64
	remaining int64
}

func newTrimmedReader(src io.Reader, skip, length int64) *trimmedReader {
	return &trimmedReader{src: src, skip: skip, remaining: length}
}

func (t *trimmedReader) Read(p []byte) (int, error) {
	for t.skip > 0 {
		discard := p
		if int64(len(discard)) > t.skip {
			discard = discard[:t.skip]
		}
		n, err := t.src.Read(discard)
		t.skip -= int64(n)
		if err != nil {
			return 0, err
		}
	}

	if t.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > t.remaining {
		p = p[:t.remaining]
	}
	n, err := t.src.Read(p)
	t.remaining -= int64(n)
	return n, err
}

// CreateFileSliceStream resolves file's Frame, computes the minimal
// pointer window covering [start, end), fetches it, and pipes it through a
// trimmer yielding exactly end-start bytes.
func (r *Resolver) CreateFileSliceStream(ctx context.Context, bucketID, file string, start, end int64) (io.Reader, error) {
	files, err := r.bridge.ListFiles(ctx, bucketID)
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
		return nil, fmt.Errorf("file %s not found in bucket %s", file, bucketID)
	}

	frame, err := r.bridge.GetFrame(ctx, entry.Frame)
	if err != nil {
		return nil, err
	}

	skip, limit, trimFront, trimBack, err := sliceWindow(frame.Shards, start, end)
	if err != nil {
		return nil, err
	}
	_ = trimBack // exact length below already excludes trailing trim bytes

	token, err := r.bridge.CreateToken(ctx, bucketID, bridge.ChannelPull)
	if err != nil {
		return nil, err
	}
	pointers, err := r.bridge.GetFilePointers(ctx, bucketID, token, file, skip, limit, nil)
	if err != nil {
		return nil, err
	}

	m, err := r.ResolveFileFromPointers(ctx, pointers)
	if err != nil {
		return nil, err
	}

	return newTrimmedReader(m, trimFront, end-start), nil
}
