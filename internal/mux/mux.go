// Package mux concatenates N ordered byte-streams into one. Input sources
// can be attached after the Muxer is already being read, so a consumer can
// start draining before every source is known. A Muxer is exposed as a
// plain io.Reader; an optional drain callback fires each time the current
// tail source finishes, as a cue to attach more input.
package mux

import (
	"errors"
	"io"
	"sync"
)

// ErrClosedForInput is returned by AddInputSource once the Muxer has
// already received its full expected input count.
var ErrClosedForInput = errors.New("mux: muxer is not accepting more input sources")

// Muxer concatenates its attached input sources, in attachment order, into
// a single byte stream read through Read. A source attached at position k
// is not consumed until sources 0..k-1 have fully drained.
type Muxer struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue    []io.Reader
	attached int
	shards   int
	length   int64

	err     error
	onDrain func()
}

// Option configures a Muxer at construction.
type Option func(*Muxer)

// WithDrainHandler registers fn to be called, synchronously from within
// Read, whenever the current tail source finishes draining.
func WithDrainHandler(fn func()) Option {
	return func(m *Muxer) { m.onDrain = fn }
}

// New creates a Muxer expecting shards input sources totalling length
// bytes. Both counters may only grow afterwards, via Extend.
func New(shards int, length int64, opts ...Option) *Muxer {
	m := &Muxer{shards: shards, length: length}
	m.cond = sync.NewCond(&m.mu)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Extend grows the Muxer's expected totals, used when the caller attaches
// more input sources than were known at construction time. Callers must go
// through Extend rather than mutate its counters directly.
func (m *Muxer) Extend(byBytes int64, byShards int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.length += byBytes
	m.shards += byShards
	m.cond.Broadcast()
}

// ExpectedShards returns the current expected input count.
func (m *Muxer) ExpectedShards() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shards
}

// ExpectedLength returns the current expected total byte length.
func (m *Muxer) ExpectedLength() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.length
}

// AddInputSource attaches r as the next input source, after every
// previously attached source in read order. It fails once every expected
// source has already been attached, unless a concurrent Extend has raised
// the expected count.
func (m *Muxer) AddInputSource(r io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attached >= m.shards {
		return ErrClosedForInput
	}
	m.queue = append(m.queue, r)
	m.attached++
	m.cond.Broadcast()
	return nil
}

// Fail records a fatal error to be returned from every subsequent Read
// call. Every Muxer error is sticky and fatal: once set, Read never again
// returns data.
func (m *Muxer) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err == nil {
		m.err = err
	}
	m.cond.Broadcast()
}

// Read implements io.Reader, blocking until either more bytes are
// available from the current input source, a pending source is attached,
// or the Muxer is known complete (attached == shards, both no longer
// shrinking).
func (m *Muxer) Read(p []byte) (int, error) {
	for {
		m.mu.Lock()
		if m.err != nil {
			err := m.err
			m.mu.Unlock()
			return 0, err
		}
		if len(m.queue) == 0 {
			if m.attached >= m.shards {
				m.mu.Unlock()
				return 0, io.EOF
			}
			m.cond.Wait()
			m.mu.Unlock()
			continue
		}
		head := m.queue[0]
		m.mu.Unlock()

		n, err := head.Read(p)
		if n > 0 {
			return n, nil
		}
		if err == io.EOF {
			m.mu.Lock()
			m.queue = m.queue[1:]
			isTail := len(m.queue) == 0
			m.mu.Unlock()
			if isTail && m.onDrain != nil {
				m.onDrain()
			}
			continue
		}
		if err != nil {
			m.Fail(err)
			return 0, err
		}
	}
}
