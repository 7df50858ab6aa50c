// Package vault is the public entry point to the engine: it composes the
// bridge transport, blacklist, demuxer, audit generator, data channel, and
// the upload/download orchestrators behind a small set of operations,
// configured through functional options.
package vault

import (
	"fmt"
	"os"

	"nimbus/internal/auth"
	"nimbus/internal/bridge"
	"nimbus/internal/nimbuserr"
	"nimbus/internal/obslog"
)

// envBridgeURL is read exactly once at construction time.
const envBridgeURL = "NIMBUS_BRIDGE_URL"

// Config holds every construction-time option.
type Config struct {
	baseURI         string
	logger          obslog.Logger
	concurrency     int
	transferRetries int
	contractRetries int
	challengeCount  int
	blacklistFolder string
	keypair         *auth.Keypair
	basicAuth       *auth.BasicAuth
	secureChannel   bool
	accountEmail    string
	accountName     string
}

// ConfigOption configures a Client at construction.
type ConfigOption func(*Config)

// WithBaseURI overrides the bridge base URI. If unset, NIMBUS_BRIDGE_URL is
// used when set, falling back to bridge.DefaultBaseURI.
func WithBaseURI(uri string) ConfigOption {
	return func(c *Config) { c.baseURI = uri }
}

// WithLogger installs a caller-supplied logger. It must satisfy
// obslog.Logger, which the parameter type enforces at compile time; no
// further check is made at construction.
func WithLogger(l obslog.Logger) ConfigOption {
	return func(c *Config) { c.logger = l }
}

// WithConcurrency overrides the shard worker pool size (default
// upload.DefaultConcurrency).
func WithConcurrency(n int) ConfigOption {
	return func(c *Config) { c.concurrency = n }
}

// WithTransferRetries overrides the per-pointer transfer attempt budget
// (default upload.DefaultTransferRetries).
func WithTransferRetries(n int) ConfigOption {
	return func(c *Config) { c.transferRetries = n }
}

// WithContractRetries overrides the addShardToFrame retry budget (default
// bridge.DefaultContractRetries).
func WithContractRetries(n int) ConfigOption {
	return func(c *Config) { c.contractRetries = n }
}

// WithChallengeCount overrides the audit challenge count per shard
// (default audit.DefaultChallengeCount).
func WithChallengeCount(n int) ConfigOption {
	return func(c *Config) { c.challengeCount = n }
}

// WithBlacklistFolder overrides where the blacklist's SQLite database is
// kept (default OS temp dir).
func WithBlacklistFolder(dir string) ConfigOption {
	return func(c *Config) { c.blacklistFolder = dir }
}

// WithKeypair selects ECDSA keypair signing for bridge requests. Mutually
// exclusive with WithBasicAuth.
func WithKeypair(kp *auth.Keypair) ConfigOption {
	return func(c *Config) { c.keypair = kp }
}

// WithBasicAuth selects HTTP Basic Auth signing for bridge requests.
// Mutually exclusive with WithKeypair.
func WithBasicAuth(b *auth.BasicAuth) ConfigOption {
	return func(c *Config) { c.basicAuth = b }
}

// WithSecureDataChannel toggles TLS when dialing a farmer's data channel.
// Defaults to false.
func WithSecureDataChannel(secure bool) ConfigOption {
	return func(c *Config) { c.secureChannel = secure }
}

// WithAccount supplies the (email, name) pair bridge.NormalizeBucketID
// derives a bucket id from when a caller passes something other than a
// 24-hex-character id to StoreFileInBucket/ResolveFileFromBucket.
func WithAccount(email, name string) ConfigOption {
	return func(c *Config) { c.accountEmail = email; c.accountName = name }
}

func resolveConfig(opts []ConfigOption) (Config, error) {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.baseURI == "" {
		cfg.baseURI = os.Getenv(envBridgeURL)
	}
	if cfg.baseURI == "" {
		cfg.baseURI = bridge.DefaultBaseURI
	}

	// A caller-supplied logger is validated against obslog.Logger at compile
	// time through WithLogger's parameter type, rather than probed here.
	if cfg.logger == nil {
		cfg.logger = obslog.NewDefault()
	}

	if cfg.keypair != nil && cfg.basicAuth != nil {
		return Config{}, &nimbuserr.ConfigError{Option: "keypair/basicauth", Reason: "mutually exclusive"}
	}

	return cfg, nil
}

func (c Config) signer() (auth.Signer, error) {
	s, err := auth.Precedence(c.keypair, c.basicAuth)
	if err != nil {
		return nil, fmt.Errorf("resolve signer: %w", err)
	}
	return s, nil
}
