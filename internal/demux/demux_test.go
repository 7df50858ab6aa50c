package demux_test

import (
	"io"
	"os"
	"testing"

	"nimbus/internal/demux"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, size int) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "demux-*")
	require.NoError(t, err)
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	_, err = f.Write(buf)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestNumShardsCeilsDivision(t *testing.T) {
	f := writeTempFile(t, 2500)
	d, err := demux.New(f, 2500, 1000)
	require.NoError(t, err)
	require.Equal(t, 3, d.NumShards())
}

func TestShardOrderAndSizes(t *testing.T) {
	f := writeTempFile(t, 2500)
	d, err := demux.New(f, 2500, 1000)
	require.NoError(t, err)

	shards := d.All()
	require.Len(t, shards, 3)
	require.Equal(t, int64(1000), shards[0].Size)
	require.Equal(t, int64(1000), shards[1].Size)
	require.Equal(t, int64(500), shards[2].Size)
	for i, s := range shards {
		require.Equal(t, i, s.Index)
	}
}

func TestShardReadsExpectedBytes(t *testing.T) {
	f := writeTempFile(t, 2500)
	d, err := demux.New(f, 2500, 1000)
	require.NoError(t, err)

	s, err := d.Shard(1)
	require.NoError(t, err)
	data, err := io.ReadAll(s.Open())
	require.NoError(t, err)
	require.Len(t, data, 1000)
	require.Equal(t, byte(1000%251), data[0])
}

func TestShardOutOfRange(t *testing.T) {
	f := writeTempFile(t, 10)
	d, err := demux.New(f, 10, 4)
	require.NoError(t, err)
	_, err = d.Shard(d.NumShards())
	require.Error(t, err)
}

func TestGetOptimalShardSizeNeverExceedsFileSize(t *testing.T) {
	size := demux.GetOptimalShardSize(demux.ShardConcurrencyHint{FileSize: 100, ShardConcurrency: 4})
	require.LessOrEqual(t, size, int64(100))
	require.Greater(t, size, int64(0))
}

func TestGetOptimalShardSizeGrowsWithFileSize(t *testing.T) {
	small := demux.GetOptimalShardSize(demux.ShardConcurrencyHint{FileSize: 1 << 20, ShardConcurrency: 1})
	large := demux.GetOptimalShardSize(demux.ShardConcurrencyHint{FileSize: 16 << 30, ShardConcurrency: 1})
	require.Greater(t, large, small)
}

func TestGetOptimalShardSizeRespectsConcurrency(t *testing.T) {
	size := demux.GetOptimalShardSize(demux.ShardConcurrencyHint{FileSize: 4 << 20, ShardConcurrency: 64})
	require.GreaterOrEqual(t, int64(4<<20)/size, int64(64))
}
