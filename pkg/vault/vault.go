package vault

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"nimbus/internal/blacklist"
	"nimbus/internal/bridge"
	"nimbus/internal/demux"
	"nimbus/internal/download"
	"nimbus/internal/nimbuserr"
	"nimbus/internal/obslog"
	"nimbus/internal/upload"
)

// Client is the engine's single entry point: it owns the bridge transport,
// the blacklist, and the upload/download orchestrators built over them.
type Client struct {
	bridge     *bridge.Client
	blacklist  *blacklist.List
	logger     obslog.Logger
	orch       *upload.Orchestrator
	downloader *download.Resolver
	cfg        Config
}

// New constructs a Client from the given options, applying defaults for
// anything left unset.
func New(opts ...ConfigOption) (*Client, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	signer, err := cfg.signer()
	if err != nil {
		return nil, err
	}

	bridgeClient := bridge.New(cfg.baseURI, signer, cfg.logger)

	bl, err := blacklist.Open(cfg.blacklistFolder)
	if err != nil {
		return nil, &nimbuserr.IOError{Op: "open blacklist", Path: cfg.blacklistFolder, Err: err}
	}

	dialer := newLiveDialer(cfg.secureChannel, cfg.logger)

	orch, err := upload.New(upload.Config{
		Bridge:          bridgeClient,
		Blacklist:       bl,
		Dialer:          uploadDialer{dialer},
		Logger:          cfg.logger,
		ShardDir:        "",
		Concurrency:     cfg.concurrency,
		TransferRetries: cfg.transferRetries,
		ContractRetries: cfg.contractRetries,
		ChallengeCount:  cfg.challengeCount,
	})
	if err != nil {
		_ = bl.Close()
		return nil, err
	}

	resolver := download.New(bridgeClient, downloadDialer{dialer}, cfg.logger)

	return &Client{
		bridge:     bridgeClient,
		blacklist:  bl,
		logger:     cfg.logger,
		orch:       orch,
		downloader: resolver,
		cfg:        cfg,
	}, nil
}

// Close releases the blacklist's database handle.
func (c *Client) Close() error {
	return c.blacklist.Close()
}

// StoreFileInBucket stages, streams, and finalizes filePath's shards into
// bucketID, delivering the finalized bridge.FileEntry (or the first
// unrecoverable error) to cb.
//
// token is the caller-acquired PUSH-channel session token
// (bridge.CreateToken with bridge.ChannelPush). It is accepted for parity
// with the bridge's session model but is not used: addShardToFrame is
// authenticated by the client's configured Signer rather than by a session
// token.
func (c *Client) StoreFileInBucket(ctx context.Context, bucketID, token, filePath string, cb func(*bridge.FileEntry, error)) {
	entry, err := c.storeFileInBucket(ctx, bucketID, token, filePath)
	cb(entry, err)
}

func (c *Client) storeFileInBucket(ctx context.Context, bucketID, token, filePath string) (*bridge.FileEntry, error) {
	_ = token

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, &nimbuserr.IOError{Op: "stat", Path: filePath, Err: err}
	}
	if info.Size() <= 0 {
		return nil, &nimbuserr.IOError{Op: "stat", Path: filePath, Err: fmt.Errorf("0 bytes is not a supported file size.")}
	}

	normalizedBucket := bridge.NormalizeBucketID(bucketID, c.cfg.accountEmail, c.cfg.accountName)

	shardSize := demux.GetOptimalShardSize(demux.ShardConcurrencyHint{
		FileSize:         info.Size(),
		ShardConcurrency: c.cfg.concurrency,
	})

	frame, err := c.bridge.CreateFrame(ctx)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, &nimbuserr.IOError{Op: "open", Path: filePath, Err: err}
	}
	defer f.Close()

	dm, err := demux.New(f, info.Size(), shardSize)
	if err != nil {
		return nil, &nimbuserr.IOError{Op: "open demuxer", Path: filePath, Err: err}
	}

	st, runErr := c.orch.Run(ctx, normalizedBucket, frame.ID, dm)
	if runErr != nil {
		return nil, runErr
	}

	filename, mimetype := finalizeName(filePath)
	entry, err := c.bridge.FinalizeFile(ctx, normalizedBucket, bridge.FinalizeFileParams{
		Frame:    frame.ID,
		Mimetype: mimetype,
		Filename: filename,
	})
	if err != nil {
		return nil, &nimbuserr.UploadFailed{BucketID: normalizedBucket, Err: err}
	}
	st.MarkDone()
	return entry, nil
}

// finalizeName derives the finalized filename and mimetype: strip a
// trailing ".crypt" suffix, then derive the mimetype from the stripped
// name's extension.
func finalizeName(filePath string) (filename, mimetype string) {
	filename = filepath.Base(filePath)
	filename = strings.TrimSuffix(filename, ".crypt")

	mimetype = mime.TypeByExtension(filepath.Ext(filename))
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	return filename, mimetype
}

// Blacklist exposes the configured Blacklist, for callers that want to
// inspect or seed it directly.
func (c *Client) Blacklist() *blacklist.List { return c.blacklist }
