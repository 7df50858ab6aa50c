package audit_test

import (
	"bytes"
	"testing"

	"nimbus/internal/audit"

	"github.com/stretchr/testify/require"
)

func TestGenerateDefaultChallengeCount(t *testing.T) {
	pub, priv, err := audit.Generate(bytes.NewReader([]byte("shard payload")), 0)
	require.NoError(t, err)
	require.Len(t, priv.Challenges, audit.DefaultChallengeCount)
	require.Len(t, pub.Leaves, audit.DefaultChallengeCount)
	require.NotEmpty(t, audit.Root(pub.Tree))
}

func TestGenerateIsNonDeterministicAcrossCalls(t *testing.T) {
	data := []byte("identical shard bytes")
	pub1, _, err := audit.Generate(bytes.NewReader(data), 3)
	require.NoError(t, err)
	pub2, _, err := audit.Generate(bytes.NewReader(data), 3)
	require.NoError(t, err)

	// Challenges are random, so leaves (and therefore the root) differ
	// between independent calls over the same shard bytes.
	require.NotEqual(t, pub1.Leaves, pub2.Leaves)
}

func TestBuildMerkleTreeSingleLeaf(t *testing.T) {
	pub, _, err := audit.Generate(bytes.NewReader([]byte("x")), 1)
	require.NoError(t, err)
	require.Len(t, pub.Leaves, 1)
	require.Equal(t, pub.Leaves[0], audit.Root(pub.Tree))
}

func TestBuildMerkleTreeOddLeafCount(t *testing.T) {
	pub, _, err := audit.Generate(bytes.NewReader([]byte("y")), 3)
	require.NoError(t, err)
	// 3 leaves -> padded to 4, producing 2 parents, then 1 root: total len
	// = 3 (leaves) + 2 (level 2, one of which is from the pad duplicate
	// collapsing to 2 nodes) + 1 (root) depending on padding; assert only
	// that a root exists and is reachable.
	require.NotEmpty(t, audit.Root(pub.Tree))
	require.True(t, len(pub.Tree) > len(pub.Leaves))
}
