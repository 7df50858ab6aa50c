// Package audit consumes a shard's bytes and produces a public Merkle
// record and a private record of challenge pre-images. Both are sent with
// the shard-add request; the bridge stores the challenges and the client
// keeps no copy afterwards.
package audit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// DefaultChallengeCount is the number of challenge pre-images generated per
// shard when the caller does not override it.
const DefaultChallengeCount = 3

// PublicRecord is the Merkle tree of leaves attached to a shard-add request.
// Tree holds every node from the leaves up to the single root, in
// level order (leaves first); Leaves is the bottom level alone, kept
// separately because callers frequently only need it.
type PublicRecord struct {
	Leaves []string
	Tree   []string
}

// PrivateRecord holds the challenge pre-images. The bridge stores these;
// the client discards them once the shard-add request succeeds.
type PrivateRecord struct {
	Challenges []string
}

// Generate reads shard in full, computing challengeCount leaf hashes (one
// per challenge) and the Merkle tree over them. If challengeCount <= 0,
// DefaultChallengeCount is used.
func Generate(shard io.Reader, challengeCount int) (*PublicRecord, *PrivateRecord, error) {
	if challengeCount <= 0 {
		challengeCount = DefaultChallengeCount
	}

	h := sha256.New()
	if _, err := io.Copy(h, shard); err != nil {
		return nil, nil, fmt.Errorf("hash shard for audit: %w", err)
	}
	shardHash := hex.EncodeToString(h.Sum(nil))

	challenges := make([]string, challengeCount)
	leaves := make([]string, challengeCount)
	for i := range challenges {
		c, err := randomChallenge()
		if err != nil {
			return nil, nil, fmt.Errorf("generate challenge: %w", err)
		}
		challenges[i] = c
		leaves[i] = leafHash(c, shardHash)
	}

	tree := buildMerkleTree(leaves)

	return &PublicRecord{Leaves: leaves, Tree: tree}, &PrivateRecord{Challenges: challenges}, nil
}

func randomChallenge() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func leafHash(challenge, shardHash string) string {
	sum := sha256.Sum256([]byte(challenge + shardHash))
	return hex.EncodeToString(sum[:])
}

// buildMerkleTree returns every node from the given leaves up to the root,
// in level order. An odd level is completed by duplicating its last node,
// the usual convention for binary Merkle trees.
func buildMerkleTree(leaves []string) []string {
	if len(leaves) == 0 {
		return nil
	}

	tree := append([]string{}, leaves...)
	level := leaves
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			sum := sha256.Sum256([]byte(level[i] + level[i+1]))
			next = append(next, hex.EncodeToString(sum[:]))
		}
		tree = append(tree, next...)
		level = next
	}
	return tree
}

// Root returns the final element of tree, the Merkle root, or "" if tree is
// empty.
func Root(tree []string) string {
	if len(tree) == 0 {
		return ""
	}
	return tree[len(tree)-1]
}
