// Package demux splits a file into a finite, ordered sequence of shard
// byte-streams of a chosen size. Each shard is exposed as an
// io.SectionReader with an independent read offset, so shards can be
// handed to concurrent workers with no pause/resume bookkeeping: multiple
// io.SectionReaders are safe to read concurrently over one shared *os.File.
package demux

import (
	"fmt"
	"io"
	"os"
)

// Shard is one demultiplexed slice of the source file.
type Shard struct {
	Index  int
	Size   int64
	file   *os.File
	offset int64
}

// Open returns an io.SectionReader scoped to this shard's byte range, safe
// to read concurrently with any other Shard's reader over the same
// *os.File.
func (s Shard) Open() *io.SectionReader {
	return io.NewSectionReader(s.file, s.offset, s.Size)
}

// Demuxer produces the ordered shard sequence for a single file.
type Demuxer struct {
	file      *os.File
	fileSize  int64
	shardSize int64
	numShards int
}

// New creates a Demuxer over file, already stat'd to fileSize, splitting it
// into ⌈fileSize / shardSize⌉ shards; the last may be shorter.
func New(file *os.File, fileSize, shardSize int64) (*Demuxer, error) {
	if shardSize <= 0 {
		return nil, fmt.Errorf("shardSize must be positive")
	}
	if fileSize <= 0 {
		return nil, fmt.Errorf("fileSize must be positive")
	}
	numShards := int((fileSize + shardSize - 1) / shardSize)
	return &Demuxer{file: file, fileSize: fileSize, shardSize: shardSize, numShards: numShards}, nil
}

// NumShards returns ⌈fileSize / shardSize⌉.
func (d *Demuxer) NumShards() int { return d.numShards }

// Shard returns the descriptor for the shard at index (0-based).
func (d *Demuxer) Shard(index int) (Shard, error) {
	if index < 0 || index >= d.numShards {
		return Shard{}, fmt.Errorf("shard index %d out of range [0,%d)", index, d.numShards)
	}
	offset := int64(index) * d.shardSize
	size := d.shardSize
	if remaining := d.fileSize - offset; remaining < size {
		size = remaining
	}
	return Shard{Index: index, Size: size, file: d.file, offset: offset}, nil
}

// All returns every shard descriptor in index order.
func (d *Demuxer) All() []Shard {
	shards := make([]Shard, d.numShards)
	for i := range shards {
		shards[i], _ = d.Shard(i)
	}
	return shards
}

// ShardConcurrencyHint bundles the inputs GetOptimalShardSize considers.
type ShardConcurrencyHint struct {
	FileSize         int64
	ShardConcurrency int
}

// Shard-size tiers, smallest file size each threshold applies to. The
// tiers grow geometrically so that very large files do not explode the
// shard count, while small files are not split into impractically tiny
// pieces.
var shardSizeTiers = []struct {
	minFileSize int64
	shardSize   int64
}{
	{0, 1 << 20},        // < 32 MiB total: 1 MiB shards
	{32 << 20, 2 << 20}, // < 256 MiB: 2 MiB shards
	{256 << 20, 8 << 20},
	{1 << 30, 32 << 20},
	{8 << 30, 64 << 20},
	{32 << 30, 128 << 20},
}

// GetOptimalShardSize returns a deterministic shard size policy for the
// given file size and desired shard concurrency. It never returns a shard
// size larger than the file itself.
func GetOptimalShardSize(hint ShardConcurrencyHint) int64 {
	shardSize := shardSizeTiers[0].shardSize
	for _, tier := range shardSizeTiers {
		if hint.FileSize >= tier.minFileSize {
			shardSize = tier.shardSize
		}
	}

	if hint.ShardConcurrency > 0 {
		// Never produce fewer shards than the worker pool can run at once;
		// halve the tier's shard size until there is at least one shard per
		// worker slot, down to a 64 KiB floor.
		const floor = 64 << 10
		for shardSize > floor && hint.FileSize/shardSize < int64(hint.ShardConcurrency) {
			shardSize /= 2
		}
	}

	if shardSize > hint.FileSize {
		shardSize = hint.FileSize
	}
	if shardSize <= 0 {
		shardSize = hint.FileSize
	}
	return shardSize
}
