package auth_test

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"testing"

	"nimbus/internal/auth"

	"github.com/stretchr/testify/require"
)

func TestKeypairHeadersVerify(t *testing.T) {
	kp, err := auth.NewKeypair()
	require.NoError(t, err)

	headers, err := kp.Headers("PUT", "/frames/abc", `{"hash":"x"}`)
	require.NoError(t, err)
	require.Contains(t, headers, "x-pubkey")
	require.Contains(t, headers, "x-signature")
	require.Equal(t, kp.PublicKeyHex(), headers["x-pubkey"])

	sigBytes, err := hex.DecodeString(headers["x-signature"])
	require.NoError(t, err)
	require.Len(t, sigBytes, 64)

	digest := sha256.Sum256([]byte("PUT" + "\n" + "/frames/abc" + "\n" + `{"hash":"x"}`))
	r := new(big.Int).SetBytes(sigBytes[:32])
	s := new(big.Int).SetBytes(sigBytes[32:])
	require.True(t, ecdsa.Verify(&kp.Private.PublicKey, digest[:], r, s))
}

func TestKeypairHeadersDifferByPath(t *testing.T) {
	kp, err := auth.NewKeypair()
	require.NoError(t, err)

	h1, err := kp.Headers("GET", "/frames/a", "")
	require.NoError(t, err)
	h2, err := kp.Headers("GET", "/frames/b", "")
	require.NoError(t, err)

	require.NotEqual(t, h1["x-signature"], h2["x-signature"])
}

func TestBasicAuthHashesPassword(t *testing.T) {
	b := &auth.BasicAuth{Email: "user@example.com", Password: "hunter2"}
	headers, err := b.Headers("GET", "/users", "")
	require.NoError(t, err)
	require.Contains(t, headers["Authorization"], "Basic ")
}

func TestPrecedenceMutualExclusion(t *testing.T) {
	kp, _ := auth.NewKeypair()
	b := &auth.BasicAuth{Email: "e", Password: "p"}

	_, err := auth.Precedence(kp, b)
	require.Error(t, err)

	s, err := auth.Precedence(kp, nil)
	require.NoError(t, err)
	require.Equal(t, kp, s)

	s, err = auth.Precedence(nil, b)
	require.NoError(t, err)
	require.Equal(t, b, s)

	s, err = auth.Precedence(nil, nil)
	require.NoError(t, err)
	require.Nil(t, s)
}
