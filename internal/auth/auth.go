// Package auth signs outgoing bridge requests. Each supported scheme is its
// own Signer; Precedence picks the one active signer from whatever the
// caller has configured.
package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Signer attaches authentication to an outgoing bridge request. Exactly one
// concrete Signer is active per bridge client: a keypair signer or basic
// auth, never both (Precedence rejects configuring the two together).
type Signer interface {
	// Headers returns the headers to attach to a request whose method and
	// path are given, and whose payload is either the URL-encoded query
	// string (GET/DELETE) or the JSON body (otherwise).
	Headers(method, path, payload string) (map[string]string, error)
}

// Keypair holds an ECDSA P-256 key pair used to sign bridge requests. The
// public key is sent hex-encoded in x-pubkey and the signature in
// x-signature.
type Keypair struct {
	Private *ecdsa.PrivateKey
}

// NewKeypair generates a fresh signing key pair.
func NewKeypair() (*Keypair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{Private: priv}, nil
}

// KeypairFromHex reconstructs a Keypair from a hex-encoded scalar, the form
// a caller would load from a credentials file.
func KeypairFromHex(hexPriv string) (*Keypair, error) {
	b, err := hex.DecodeString(hexPriv)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	curve := elliptic.P256()
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = curve
	priv.D = new(big.Int).SetBytes(b)
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(b)
	return &Keypair{Private: priv}, nil
}

// PublicKeyHex returns the hex-encoded uncompressed public key point (X||Y).
func (k *Keypair) PublicKeyHex() string {
	size := (k.Private.PublicKey.Curve.Params().BitSize + 7) / 8
	buf := make([]byte, 2*size)
	k.Private.PublicKey.X.FillBytes(buf[:size])
	k.Private.PublicKey.Y.FillBytes(buf[size:])
	return hex.EncodeToString(buf)
}

// sigPayload builds the signature payload:
// method + "\n" + path + "\n" + payload.
func sigPayload(method, path, payload string) []byte {
	return []byte(method + "\n" + path + "\n" + payload)
}

// Headers implements Signer for a Keypair.
func (k *Keypair) Headers(method, path, payload string) (map[string]string, error) {
	digest := sha256.Sum256(sigPayload(method, path, payload))
	r, s, err := ecdsa.Sign(rand.Reader, k.Private, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	size := (k.Private.PublicKey.Curve.Params().BitSize + 7) / 8
	sigBytes := make([]byte, 2*size)
	r.FillBytes(sigBytes[:size])
	s.FillBytes(sigBytes[size:])

	return map[string]string{
		"x-pubkey":    k.PublicKeyHex(),
		"x-signature": hex.EncodeToString(sigBytes),
	}, nil
}

// BasicAuth signs requests with HTTP Basic Auth where the password is
// SHA-256-hashed client-side before transmission.
type BasicAuth struct {
	Email    string
	Password string
}

// Headers implements Signer for BasicAuth. It does not use method/path/
// payload; the credential pair is carried in the Authorization header.
func (b *BasicAuth) Headers(_, _, _ string) (map[string]string, error) {
	sum := sha256.Sum256([]byte(b.Password))
	passHex := hex.EncodeToString(sum[:])
	creds := base64.StdEncoding.EncodeToString([]byte(b.Email + ":" + passHex))
	return map[string]string{
		"Authorization": "Basic " + creds,
	}, nil
}

// Precedence selects the active Signer: keypair, if present, otherwise
// basic auth. The two schemes are mutually exclusive, so this is a
// selection, not a composition.
func Precedence(keypair *Keypair, basic *BasicAuth) (Signer, error) {
	switch {
	case keypair != nil && basic != nil:
		return nil, fmt.Errorf("keypair and basicauth are mutually exclusive")
	case keypair != nil:
		return keypair, nil
	case basic != nil:
		return basic, nil
	default:
		return nil, nil
	}
}
