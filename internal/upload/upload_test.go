package upload_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"nimbus/internal/blacklist"
	"nimbus/internal/bridge"
	"nimbus/internal/bridge/bridgetest"
	"nimbus/internal/demux"
	"nimbus/internal/nimbuserr"
	"nimbus/internal/upload"

	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	mu       sync.Mutex
	failures map[string]int
	writes   map[string][]byte
	dialed   []string
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{failures: map[string]int{}, writes: map[string][]byte{}}
}

func (d *fakeDialer) Dial(contact bridge.Contact) (upload.DataChannel, error) {
	d.mu.Lock()
	d.dialed = append(d.dialed, contact.NodeID)
	d.mu.Unlock()
	return &fakeChannel{dialer: d, nodeID: contact.NodeID}, nil
}

type fakeChannel struct {
	dialer *fakeDialer
	nodeID string
}

func (c *fakeChannel) Close() error { return nil }

func (c *fakeChannel) CreateWriteStream(ctx context.Context, token, hash string) (io.WriteCloser, error) {
	d := c.dialer
	d.mu.Lock()
	remaining := d.failures[c.nodeID]
	if remaining > 0 {
		d.failures[c.nodeID]--
	}
	d.mu.Unlock()

	if remaining > 0 {
		return &failingWriter{}, nil
	}
	return &captureWriter{dialer: d, key: token + "/" + hash}, nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("induced farmer failure") }
func (failingWriter) Close() error              { return nil }

type captureWriter struct {
	dialer *fakeDialer
	key    string
	buf    bytes.Buffer
}

func (w *captureWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *captureWriter) Close() error {
	w.dialer.mu.Lock()
	w.dialer.writes[w.key] = append([]byte{}, w.buf.Bytes()...)
	w.dialer.mu.Unlock()
	return nil
}

func writeTempFile(t *testing.T, data []byte) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "upload-*")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func newBlacklist(t *testing.T) *blacklist.List {
	t.Helper()
	list, err := blacklist.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { list.Close() })
	return list
}

func TestRunTransfersAllShardsSuccessfully(t *testing.T) {
	server := bridgetest.New()
	ts := server.Start()
	defer ts.Close()

	client := bridge.New(ts.URL, nil, nil)
	frame, err := client.CreateFrame(context.Background())
	require.NoError(t, err)

	data := make([]byte, 25)
	for i := range data {
		data[i] = byte(i)
	}
	f := writeTempFile(t, data)
	dm, err := demux.New(f, int64(len(data)), 10)
	require.NoError(t, err)

	dialer := newFakeDialer()
	orch, err := upload.New(upload.Config{
		Bridge:    client,
		Blacklist: newBlacklist(t),
		Dialer:    dialer,
	})
	require.NoError(t, err)

	st, err := orch.Run(context.Background(), "bucket-1", frame.ID, dm)
	require.NoError(t, err)
	require.Equal(t, dm.NumShards(), st.Completed())

	var total int
	dialer.mu.Lock()
	for _, w := range dialer.writes {
		total += len(w)
	}
	dialer.mu.Unlock()
	require.Equal(t, len(data), total)
}

func TestRunBlacklistsFarmerAfterTransferExhaustion(t *testing.T) {
	server := bridgetest.New()
	ts := server.Start()
	defer ts.Close()

	client := bridge.New(ts.URL, nil, nil)
	frame, err := client.CreateFrame(context.Background())
	require.NoError(t, err)

	data := bytes.Repeat([]byte("y"), 10)
	f := writeTempFile(t, data)
	dm, err := demux.New(f, int64(len(data)), 10)
	require.NoError(t, err)

	dialer := newFakeDialer()
	dialer.failures["farmer-0001"] = 99 // always fails this farmer's writes

	bl := newBlacklist(t)
	orch, err := upload.New(upload.Config{
		Bridge:          client,
		Blacklist:       bl,
		Dialer:          dialer,
		TransferRetries: 2,
	})
	require.NoError(t, err)

	st, err := orch.Run(context.Background(), "bucket-1", frame.ID, dm)
	require.NoError(t, err)
	require.Equal(t, 1, st.Completed())

	blacklisted, err := bl.Contains("farmer-0001")
	require.NoError(t, err)
	require.True(t, blacklisted)

	require.Contains(t, dialer.dialed, "farmer-0002")
}

type blockingChannel struct {
	started chan struct{}
	once    sync.Once
}

func (c *blockingChannel) Close() error { return nil }

func (c *blockingChannel) CreateWriteStream(ctx context.Context, token, hash string) (io.WriteCloser, error) {
	c.once.Do(func() { close(c.started) })
	return &blockingWriter{ctx: ctx}, nil
}

type blockingWriter struct{ ctx context.Context }

func (w *blockingWriter) Write([]byte) (int, error) {
	<-w.ctx.Done()
	return 0, w.ctx.Err()
}

func (w *blockingWriter) Close() error { return nil }

type blockingDialer struct{ ch *blockingChannel }

func (d *blockingDialer) Dial(bridge.Contact) (upload.DataChannel, error) { return d.ch, nil }

func TestKillMidFlightYieldsCancelledAndIsIdempotent(t *testing.T) {
	server := bridgetest.New()
	ts := server.Start()
	defer ts.Close()

	client := bridge.New(ts.URL, nil, nil)
	frame, err := client.CreateFrame(context.Background())
	require.NoError(t, err)

	data := bytes.Repeat([]byte("k"), 10)
	f := writeTempFile(t, data)
	dm, err := demux.New(f, int64(len(data)), 10)
	require.NoError(t, err)

	ch := &blockingChannel{started: make(chan struct{})}
	orch, err := upload.New(upload.Config{
		Bridge:    client,
		Blacklist: newBlacklist(t),
		Dialer:    &blockingDialer{ch: ch},
	})
	require.NoError(t, err)

	st, done := orch.Start(context.Background(), "bucket-1", frame.ID, dm)
	<-ch.started
	st.Kill()
	st.Kill() // idempotent

	runErr := <-done
	require.Error(t, runErr)
	var cancelled *nimbuserr.Cancelled
	require.True(t, errors.As(runErr, &cancelled))
	require.Equal(t, upload.StatusKilled, st.Status())
}
