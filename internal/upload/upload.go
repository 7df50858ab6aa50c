// Package upload implements the upload state machine and the retryable
// shard-transfer worker: a bounded worker pool drives each shard from
// staged temp file through audit generation, contract acquisition, and
// data-channel transfer, with farmer-rotation-on-exhaustion recovery.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"nimbus/internal/audit"
	"nimbus/internal/bridge"
	"nimbus/internal/demux"
	"nimbus/internal/nimbuserr"
	"nimbus/internal/obslog"
	"nimbus/internal/shardstore"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the default shard worker pool size.
const DefaultConcurrency = 6

// DefaultTransferRetries is the default per-pointer transfer attempt
// budget before a farmer is blacklisted.
const DefaultTransferRetries = 3

// DataChannel is the subset of a data-channel client a shard transfer
// needs: a writable stream to push shard bytes to the farmer, and a way to
// tear the channel down on kill.
type DataChannel interface {
	CreateWriteStream(ctx context.Context, token, hash string) (io.WriteCloser, error)
	Close() error
}

// Dialer opens a DataChannel to a farmer contact.
type Dialer interface {
	Dial(contact bridge.Contact) (DataChannel, error)
}

// Blacklist is the subset of internal/blacklist.List the worker pool needs.
type Blacklist interface {
	Add(nodeID string) error
	Snapshot() ([]string, error)
}

// Config configures an Orchestrator. Zero-valued fields fall back to
// package defaults.
type Config struct {
	Bridge          *bridge.Client
	Blacklist       Blacklist
	Dialer          Dialer
	Logger          obslog.Logger
	ShardDir        string
	Concurrency     int
	TransferRetries int
	ContractRetries int
	ChallengeCount  int
}

// Orchestrator drives the bounded worker pool that transfers a file's
// shards once a Frame exists and a Demuxer has been opened over it.
type Orchestrator struct {
	bridge          *bridge.Client
	blacklist       Blacklist
	dialer          Dialer
	logger          obslog.Logger
	shardDir        string
	concurrency     int
	transferRetries int
	contractRetries int
	challengeCount  int
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Bridge == nil {
		return nil, &nimbuserr.ConfigError{Option: "bridge", Reason: "must not be nil"}
	}
	if cfg.Blacklist == nil {
		return nil, &nimbuserr.ConfigError{Option: "blacklist", Reason: "must not be nil"}
	}
	if cfg.Dialer == nil {
		return nil, &nimbuserr.ConfigError{Option: "dialer", Reason: "must not be nil"}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = obslog.Noop()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	transferRetries := cfg.TransferRetries
	if transferRetries <= 0 {
		transferRetries = DefaultTransferRetries
	}
	contractRetries := cfg.ContractRetries
	if contractRetries <= 0 {
		contractRetries = bridge.DefaultContractRetries
	}
	challengeCount := cfg.ChallengeCount
	if challengeCount <= 0 {
		challengeCount = audit.DefaultChallengeCount
	}
	return &Orchestrator{
		bridge:          cfg.Bridge,
		blacklist:       cfg.Blacklist,
		dialer:          cfg.Dialer,
		logger:          logger,
		shardDir:        cfg.ShardDir,
		concurrency:     concurrency,
		transferRetries: transferRetries,
		contractRetries: contractRetries,
		challengeCount:  challengeCount,
	}, nil
}

// Start dispatches every shard of dm through staging, audit, contract
// acquisition, and transfer, bounded to the configured worker pool size:
// dispatch of shard i+1 blocks until a pool slot frees. It returns
// immediately with the State handle, so the caller may call State.Kill
// concurrently, and a channel that receives exactly one error (nil on
// success) once every shard has settled.
func (o *Orchestrator) Start(ctx context.Context, bucketID, frameID string, dm *demux.Demuxer) (*State, <-chan error) {
	runCtx, cancel := context.WithCancel(ctx)
	st := newState(bucketID, frameID, dm.NumShards(), cancel)
	done := make(chan error, 1)

	go func() {
		defer cancel()

		sem := semaphore.NewWeighted(int64(o.concurrency))
		g, gctx := errgroup.WithContext(runCtx)

		for i := 0; i < dm.NumShards(); i++ {
			shard, err := dm.Shard(i)
			if err != nil {
				st.fail()
				done <- err
				return
			}
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			st.setStatus(StatusTransferring)

			g.Go(func() error {
				defer sem.Release(1)
				if err := o.processShard(gctx, st, shard); err != nil {
					st.fail()
					return err
				}
				completed := st.incrementCompleted()
				if completed == st.NumShards {
					st.SetFinalizing()
				}
				o.logger.Debug("shard transferred", "index", shard.Index, "completed", completed, "numShards", st.NumShards)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			if st.Status() == StatusKilled {
				done <- &nimbuserr.Cancelled{Reason: "upload killed"}
				return
			}
			done <- &nimbuserr.UploadFailed{BucketID: bucketID, Err: err}
			return
		}
		done <- nil
	}()

	return st, done
}

// Run is Start followed by a blocking wait for the single result, for
// callers that have no use for concurrent kill.
func (o *Orchestrator) Run(ctx context.Context, bucketID, frameID string, dm *demux.Demuxer) (*State, error) {
	st, done := o.Start(ctx, bucketID, frameID, dm)
	return st, <-done
}

// processShard stages a shard, generates its audit, acquires a contract,
// transfers it, and on repeated transfer failure blacklists the farmer and
// re-acquires a contract excluding it.
func (o *Orchestrator) processShard(ctx context.Context, st *State, shard demux.Shard) error {
	staged, err := shardstore.Stage(o.shardDir, shard.Open())
	if err != nil {
		return &nimbuserr.IOError{Op: "stage shard", Err: err}
	}
	st.trackCleanup(staged.Path)

	auditSrc, err := staged.Open()
	if err != nil {
		return &nimbuserr.IOError{Op: "open staged shard", Path: staged.Path, Err: err}
	}
	pub, priv, err := audit.Generate(auditSrc, o.challengeCount)
	auditSrc.Close()
	if err != nil {
		return fmt.Errorf("generate audit for shard %d: %w", shard.Index, err)
	}

	for {
		if st.isTerminal() {
			return &nimbuserr.Cancelled{Reason: "upload killed"}
		}

		exclude, err := o.blacklist.Snapshot()
		if err != nil {
			return err
		}

		pointer, err := o.bridge.AddShardToFrame(ctx, st.FrameID, bridge.AddShardParams{
			Hash:       staged.Hash,
			Size:       staged.Size,
			Index:      shard.Index,
			Challenges: priv.Challenges,
			Tree:       pub.Tree,
			Exclude:    exclude,
		}, o.contractRetries)
		if err != nil {
			return err
		}

		transferErr := o.transferWithRetry(ctx, st, *pointer, staged)
		if transferErr == nil {
			break
		}

		var exhausted *nimbuserr.ShardTransferError
		if !errors.As(transferErr, &exhausted) {
			return transferErr
		}
		if err := o.blacklist.Add(exhausted.NodeID); err != nil {
			return err
		}
		o.logger.Warn("farmer blacklisted after transfer exhaustion",
			"nodeId", exhausted.NodeID, "shard", shard.Index, "attempts", exhausted.Attempts)
		// Loop re-enters contract acquisition excluding the blacklisted farmer.
	}

	st.untrackCleanup(staged.Path)
	return staged.Cleanup()
}

// transferWithRetry attempts up to the configured transfer budget against
// the same pointer before giving up.
func (o *Orchestrator) transferWithRetry(ctx context.Context, st *State, pointer bridge.Pointer, staged *shardstore.Staged) error {
	var lastErr error
	for attempt := 0; attempt < o.transferRetries; attempt++ {
		if st.isTerminal() {
			return &nimbuserr.Cancelled{Reason: "upload killed"}
		}
		if err := o.transferOnce(ctx, st, pointer, staged); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return &nimbuserr.ShardTransferError{
		ShardIndex: pointer.Index,
		NodeID:     pointer.Farmer.NodeID,
		Attempts:   o.transferRetries,
		Err:        lastErr,
	}
}

func (o *Orchestrator) transferOnce(ctx context.Context, st *State, pointer bridge.Pointer, staged *shardstore.Staged) error {
	dc, err := o.dialer.Dial(pointer.Farmer)
	if err != nil {
		return err
	}
	release := st.trackChannel(dc)
	defer release()

	writer, err := dc.CreateWriteStream(ctx, pointer.Token, pointer.Hash)
	if err != nil {
		_ = dc.Close()
		return err
	}

	src, err := staged.Open()
	if err != nil {
		_ = writer.Close()
		_ = dc.Close()
		return &nimbuserr.IOError{Op: "reopen staged shard", Path: staged.Path, Err: err}
	}

	_, copyErr := io.Copy(writer, src)
	src.Close()
	if copyErr != nil {
		_ = writer.Close()
		_ = dc.Close()
		return copyErr
	}

	if err := writer.Close(); err != nil {
		_ = dc.Close()
		return err
	}
	return dc.Close()
}
