// Package download implements the download pointer-resolution and
// stream-reassembly pipeline: acquiring pointer windows from the bridge,
// opening one data-channel reader per pointer in strict attach order
// against a Muxer, the sliding-window fetch that keeps extending it, and
// the byte-range trimmer used by the slice path.
package download

import (
	"context"
	"fmt"
	"io"

	"nimbus/internal/bridge"
	"nimbus/internal/mux"
	"nimbus/internal/obslog"
)

// WindowSize is the sliding-window pointer-fetch size.
const WindowSize = 6

// DataChannel is the subset of a data-channel client a download needs: a
// readable stream for a given pointer, and a way to tear the channel down.
type DataChannel interface {
	CreateReadStream(ctx context.Context, token, hash string) (io.ReadCloser, error)
	Close() error
}

// Dialer opens a DataChannel to a farmer contact.
type Dialer interface {
	Dial(contact bridge.Contact) (DataChannel, error)
}

// Resolver drives pointer acquisition and Muxer assembly.
type Resolver struct {
	bridge *bridge.Client
	dialer Dialer
	logger obslog.Logger
}

// New returns a Resolver. bridgeClient and dialer must not be nil.
func New(bridgeClient *bridge.Client, dialer Dialer, logger obslog.Logger) *Resolver {
	if logger == nil {
		logger = obslog.Noop()
	}
	return &Resolver{bridge: bridgeClient, dialer: dialer, logger: logger}
}

// ResolveFileFromPointers assembles a fixed, already-known pointer window
// into a single ordered byte stream. The first pointer is attached before
// returning, so a farmer unreachable before the caller ever sees the
// stream surfaces as a plain returned error; every pointer after that
// attaches on a dedicated background worker (concurrency 1, strict
// pointer order) and a failure there is delivered as a Muxer error on the
// next Read.
func (r *Resolver) ResolveFileFromPointers(ctx context.Context, pointers []bridge.Pointer) (*mux.Muxer, error) {
	var length int64
	for _, p := range pointers {
		length += p.Size
	}
	m := mux.New(len(pointers), length)
	if len(pointers) == 0 {
		return m, nil
	}

	if err := r.attachPointer(ctx, m, pointers[0]); err != nil {
		return nil, fmt.Errorf("attach shard %d: %w", pointers[0].Index, err)
	}

	if len(pointers) > 1 {
		go r.attachSerially(ctx, m, pointers[1:])
	}
	return m, nil
}

func (r *Resolver) attachSerially(ctx context.Context, m *mux.Muxer, pointers []bridge.Pointer) {
	for _, p := range pointers {
		if err := r.attachPointer(ctx, m, p); err != nil {
			m.Fail(fmt.Errorf("attach shard %d from farmer %s: %w", p.Index, p.Farmer.NodeID, err))
			return
		}
	}
}

func (r *Resolver) attachPointer(ctx context.Context, m *mux.Muxer, p bridge.Pointer) error {
	dc, err := r.dialer.Dial(p.Farmer)
	if err != nil {
		return fmt.Errorf("dial farmer %s: %w", p.Farmer.NodeID, err)
	}
	stream, err := dc.CreateReadStream(ctx, p.Token, p.Hash)
	if err != nil {
		_ = dc.Close()
		return fmt.Errorf("open read stream for shard %d: %w", p.Index, err)
	}
	return m.AddInputSource(&attachedStream{ReadCloser: stream, dc: dc})
}

// attachedStream closes both the shard stream and its owning data channel
// once fully drained, so the Muxer's drain-on-EOF contract also retires
// the channel.
type attachedStream struct {
	io.ReadCloser
	dc DataChannel
}

func (a *attachedStream) Read(p []byte) (int, error) {
	n, err := a.ReadCloser.Read(p)
	if err == io.EOF {
		_ = a.ReadCloser.Close()
		_ = a.dc.Close()
	}
	return n, err
}

// CreateFileStream fetches the first pointer window, returns a stream
// backed by a Muxer, and in the background keeps fetching and attaching
// further windows until one comes back empty.
func (r *Resolver) CreateFileStream(ctx context.Context, bucketID, file string) (io.Reader, error) {
	token, err := r.bridge.CreateToken(ctx, bucketID, bridge.ChannelPull)
	if err != nil {
		return nil, err
	}
	first, err := r.bridge.GetFilePointers(ctx, bucketID, token, file, 0, WindowSize, nil)
	if err != nil {
		return nil, err
	}

	var length int64
	for _, p := range first {
		length += p.Size
	}
	if len(first) == 0 {
		return mux.New(0, 0), nil
	}
	// One input slot beyond the pointers is held for an empty end-of-stream
	// source, attached only after a window comes back empty, so the Muxer
	// cannot report EOF while further windows are still being fetched.
	m := mux.New(len(first)+1, length)

	if err := r.attachPointer(ctx, m, first[0]); err != nil {
		return nil, fmt.Errorf("attach shard %d: %w", first[0].Index, err)
	}

	queue := make(chan bridge.Pointer, WindowSize*4)
	for _, p := range first[1:] {
		queue <- p
	}

	go func() {
		for p := range queue {
			if err := r.attachPointer(ctx, m, p); err != nil {
				m.Fail(fmt.Errorf("attach shard %d from farmer %s: %w", p.Index, p.Farmer.NodeID, err))
				return
			}
		}
		_ = m.AddInputSource(io.MultiReader())
	}()

	go r.slideWindow(ctx, m, bucketID, file, queue, len(first))

	return m, nil
}

func (r *Resolver) slideWindow(ctx context.Context, m *mux.Muxer, bucketID, file string, queue chan bridge.Pointer, skip int) {
	defer close(queue)
	for {
		token, err := r.bridge.CreateToken(ctx, bucketID, bridge.ChannelPull)
		if err != nil {
			m.Fail(fmt.Errorf("create pull token at skip %d: %w", skip, err))
			return
		}
		next, err := r.bridge.GetFilePointers(ctx, bucketID, token, file, skip, WindowSize, nil)
		if err != nil {
			m.Fail(fmt.Errorf("fetch pointer window at skip %d: %w", skip, err))
			return
		}
		if len(next) == 0 {
			return
		}

		var extra int64
		for _, p := range next {
			extra += p.Size
		}
		m.Extend(extra, len(next))

		for _, p := range next {
			select {
			case queue <- p:
			case <-ctx.Done():
				return
			}
		}
		skip += len(next)
	}
}
