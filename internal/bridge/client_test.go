package bridge_test

import (
	"context"
	"testing"

	"nimbus/internal/bridge"
	"nimbus/internal/bridge/bridgetest"
	"nimbus/internal/obslog"

	"github.com/stretchr/testify/require"
)

func TestCreateFrameAndAddShard(t *testing.T) {
	fixture := bridgetest.New()
	srv := fixture.Start()
	defer srv.Close()

	c := bridge.New(srv.URL, nil, obslog.Noop())
	ctx := context.Background()

	frame, err := c.CreateFrame(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, frame.ID)

	pointer, err := c.AddShardToFrame(ctx, frame.ID, bridge.AddShardParams{
		Hash:  "deadbeef",
		Size:  1024,
		Index: 0,
	}, 3)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", pointer.Hash)
	require.NotEmpty(t, pointer.Farmer.NodeID)
}

func TestAddShardToFrameExcludesBlacklistedFarmer(t *testing.T) {
	fixture := bridgetest.New()
	srv := fixture.Start()
	defer srv.Close()

	c := bridge.New(srv.URL, nil, obslog.Noop())
	ctx := context.Background()

	frame, err := c.CreateFrame(ctx)
	require.NoError(t, err)

	p1, err := c.AddShardToFrame(ctx, frame.ID, bridge.AddShardParams{Hash: "h0", Size: 10, Index: 0}, 3)
	require.NoError(t, err)

	p2, err := c.AddShardToFrame(ctx, frame.ID, bridge.AddShardParams{
		Hash: "h1", Size: 10, Index: 1, Exclude: []string{p1.Farmer.NodeID},
	}, 3)
	require.NoError(t, err)
	require.NotEqual(t, p1.Farmer.NodeID, p2.Farmer.NodeID)
}

func TestBridgeErrorOnMissingFrame(t *testing.T) {
	fixture := bridgetest.New()
	srv := fixture.Start()
	defer srv.Close()

	c := bridge.New(srv.URL, nil, obslog.Noop())
	_, err := c.AddShardToFrame(context.Background(), "no-such-frame", bridge.AddShardParams{
		Hash: "h", Size: 1, Index: 0,
	}, 2)
	require.Error(t, err)
}

func TestFinalizeFileAndListFiles(t *testing.T) {
	fixture := bridgetest.New()
	srv := fixture.Start()
	defer srv.Close()

	c := bridge.New(srv.URL, nil, obslog.Noop())
	ctx := context.Background()

	frame, err := c.CreateFrame(ctx)
	require.NoError(t, err)

	entry, err := c.FinalizeFile(ctx, "bucket1", bridge.FinalizeFileParams{
		Frame: frame.ID, Mimetype: "text/plain", Filename: "hello.txt",
	})
	require.NoError(t, err)
	require.Equal(t, "hello.txt", entry.Filename)

	files, err := c.ListFiles(ctx, "bucket1")
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestNormalizeBucketID(t *testing.T) {
	hexID := "aaaaaaaaaaaaaaaaaaaaaaaa"
	require.Equal(t, hexID, bridge.NormalizeBucketID(hexID, "a@b.com", "bucket"))

	derived := bridge.NormalizeBucketID("my-bucket", "a@b.com", "bucket")
	require.Len(t, derived, 24)
	require.NotEqual(t, "my-bucket", derived)

	// Deterministic: same (email, name) -> same derived id.
	require.Equal(t, derived, bridge.NormalizeBucketID("my-bucket", "a@b.com", "bucket"))
}
