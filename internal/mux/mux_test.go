package mux_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"nimbus/internal/mux"

	"github.com/stretchr/testify/require"
)

func TestConcatenatesInAttachOrder(t *testing.T) {
	m := mux.New(3, 18)
	require.NoError(t, m.AddInputSource(strings.NewReader("first-")))
	require.NoError(t, m.AddInputSource(strings.NewReader("second-")))
	require.NoError(t, m.AddInputSource(strings.NewReader("third")))

	out, err := io.ReadAll(m)
	require.NoError(t, err)
	require.Equal(t, "first-second-third", string(out))
}

func TestLateAttachmentBlocksUntilAvailable(t *testing.T) {
	m := mux.New(2, 11)
	require.NoError(t, m.AddInputSource(strings.NewReader("hello-")))

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(&out, m)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.AddInputSource(strings.NewReader("world")))

	require.NoError(t, <-done)
	require.Equal(t, "hello-world", out.String())
}

func TestExtendGrowsExpectedCounts(t *testing.T) {
	m := mux.New(1, 5)
	require.NoError(t, m.AddInputSource(strings.NewReader("abcde")))

	m.Extend(5, 1)
	require.Equal(t, 2, m.ExpectedShards())
	require.Equal(t, int64(10), m.ExpectedLength())

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(&out, m)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.AddInputSource(strings.NewReader("fghij")))
	require.NoError(t, <-done)
	require.Equal(t, "abcdefghij", out.String())
}

func TestAddInputSourceRejectedOnceClosed(t *testing.T) {
	m := mux.New(1, 3)
	require.NoError(t, m.AddInputSource(strings.NewReader("abc")))
	err := m.AddInputSource(strings.NewReader("xyz"))
	require.ErrorIs(t, err, mux.ErrClosedForInput)
}

func TestDrainHandlerFiresOnTailCompletion(t *testing.T) {
	var drains int
	var mu sync.Mutex
	m := mux.New(2, 6, mux.WithDrainHandler(func() {
		mu.Lock()
		drains++
		mu.Unlock()
	}))
	require.NoError(t, m.AddInputSource(strings.NewReader("abc")))
	require.NoError(t, m.AddInputSource(strings.NewReader("def")))

	_, err := io.ReadAll(m)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, drains, 1)
}

func TestZeroShardMuxerReturnsImmediateEOF(t *testing.T) {
	m := mux.New(0, 0)

	done := make(chan struct{})
	var n int
	var err error
	go func() {
		n, err = m.Read(make([]byte, 16))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Read on a zero-shard Muxer blocked instead of returning EOF")
	}

	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestFailPropagatesAsReadError(t *testing.T) {
	m := mux.New(1, 3)
	boom := errors.New("boom")
	m.Fail(boom)

	_, err := m.Read(make([]byte, 1))
	require.ErrorIs(t, err, boom)
}
