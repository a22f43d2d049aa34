package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/g1ctl/internal/dispatch"
	"github.com/srg/g1ctl/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter is a scripted LinkWriter.
type fakeWriter struct {
	mu         sync.Mutex
	side       transport.Side
	writeErrs  []error
	writes     [][]byte
	writeTimes []time.Time
	connected  bool
	heartbeats []time.Time
}

func newFakeWriter(side transport.Side) *fakeWriter {
	return &fakeWriter{side: side, connected: true}
}

func (w *fakeWriter) Side() transport.Side { return w.side }

func (w *fakeWriter) Write(data []byte, withResponse bool, timeout time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writeTimes = append(w.writeTimes, time.Now())
	if len(w.writeErrs) > 0 {
		err := w.writeErrs[0]
		w.writeErrs = w.writeErrs[1:]
		if err != nil {
			return err
		}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	w.writes = append(w.writes, cp)
	return nil
}

func (w *fakeWriter) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *fakeWriter) MarkHeartbeat(at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.heartbeats = append(w.heartbeats, at)
}

func (w *fakeWriter) sentPayloads() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]byte, len(w.writes))
	copy(out, w.writes)
	return out
}

func (w *fakeWriter) attemptCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writeTimes)
}

func (w *fakeWriter) heartbeatCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.heartbeats)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newDispatcher(t *testing.T, opts dispatch.Options, writers ...*fakeWriter) *dispatch.Dispatcher {
	t.Helper()
	lw := make([]dispatch.LinkWriter, len(writers))
	for i, w := range writers {
		lw[i] = w
	}
	d := dispatch.NewDispatcher(lw, opts, quietLogger())
	d.Start()
	t.Cleanup(d.Stop)
	return d
}

func TestSendWritesInFIFOOrder(t *testing.T) {
	left := newFakeWriter(transport.Left)
	d := newDispatcher(t, dispatch.Options{WriteThrottle: time.Millisecond}, left)

	for i := byte(0); i < 5; i++ {
		_, err := d.Send(context.Background(), transport.Left, dispatch.Command{Payload: []byte{0x4E, i}})
		require.NoError(t, err)
	}

	sent := left.sentPayloads()
	require.Len(t, sent, 5)
	for i := byte(0); i < 5; i++ {
		assert.Equal(t, []byte{0x4E, i}, sent[i])
	}
}

func TestWriteRetriesThenSucceeds(t *testing.T) {
	left := newFakeWriter(transport.Left)
	left.writeErrs = []error{errors.New("flaky"), errors.New("flaky")}

	d := newDispatcher(t, dispatch.Options{Retries: 3, RetryDelay: 5 * time.Millisecond, WriteThrottle: time.Millisecond}, left)

	_, err := d.Send(context.Background(), transport.Left, dispatch.Command{Payload: []byte{0x22, 0x01}})
	require.NoError(t, err)
	assert.Len(t, left.sentPayloads(), 1)
}

func TestWriteFailsAfterAllRetries(t *testing.T) {
	boom := errors.New("radio gone")
	left := newFakeWriter(transport.Left)
	left.writeErrs = []error{boom, boom, boom}

	d := newDispatcher(t, dispatch.Options{Retries: 3, RetryDelay: time.Millisecond, WriteThrottle: time.Millisecond}, left)

	_, err := d.Send(context.Background(), transport.Left, dispatch.Command{Payload: []byte{0x22, 0x01}})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, left.sentPayloads())
}

func TestWriteGivesUpOnDeadLink(t *testing.T) {
	left := newFakeWriter(transport.Left)
	down := &transport.TransportError{Op: "write", Side: transport.Left, Err: transport.ErrNotConnected}
	left.writeErrs = []error{down, down, down}

	d := newDispatcher(t, dispatch.Options{Retries: 3, RetryDelay: 250 * time.Millisecond, WriteThrottle: time.Millisecond}, left)

	start := time.Now()
	_, err := d.Send(context.Background(), transport.Left, dispatch.Command{Payload: []byte{0x25}})

	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.Equal(t, 1, left.attemptCount(), "a not-connected link fails fast; only the supervisor can bring it back")
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestResponseCorrelation(t *testing.T) {
	left := newFakeWriter(transport.Left)
	d := newDispatcher(t, dispatch.Options{WriteThrottle: time.Millisecond}, left)

	done := make(chan *dispatch.Response, 1)
	go func() {
		resp, err := d.Send(context.Background(), transport.Left, dispatch.Command{
			Payload:        []byte{0x22, 0x01},
			ExpectResponse: true,
			Timeout:        time.Second,
		})
		require.NoError(t, err)
		done <- resp
	}()

	// Wait for the write before answering.
	require.Eventually(t, func() bool { return len(left.sentPayloads()) == 1 }, time.Second, time.Millisecond)
	d.HandleFrame(transport.Left, []byte{0x22, 0xC9})

	select {
	case resp := <-done:
		assert.True(t, resp.Received)
		assert.Equal(t, []byte{0x22, 0xC9}, resp.Data)
	case <-time.After(time.Second):
		t.Fatal("Send did not complete")
	}
}

func TestResponseFromOtherSideDoesNotResolve(t *testing.T) {
	left := newFakeWriter(transport.Left)
	right := newFakeWriter(transport.Right)
	d := newDispatcher(t, dispatch.Options{WriteThrottle: time.Millisecond}, left, right)

	done := make(chan *dispatch.Response, 1)
	go func() {
		resp, err := d.Send(context.Background(), transport.Left, dispatch.Command{
			Payload:        []byte{0x22, 0x01},
			ExpectResponse: true,
			Timeout:        100 * time.Millisecond,
		})
		require.NoError(t, err)
		done <- resp
	}()

	require.Eventually(t, func() bool { return len(left.sentPayloads()) == 1 }, time.Second, time.Millisecond)
	d.HandleFrame(transport.Right, []byte{0x22, 0xC9}) // wrong link

	resp := <-done
	assert.False(t, resp.Received, "a frame from the other link must not resolve the waiter")
}

func TestNoResponseIsNotAnError(t *testing.T) {
	left := newFakeWriter(transport.Left)
	d := newDispatcher(t, dispatch.Options{WriteThrottle: time.Millisecond}, left)

	timeout := 50 * time.Millisecond
	start := time.Now()
	resp, err := d.Send(context.Background(), transport.Left, dispatch.Command{
		Payload:        []byte{0x22, 0x00},
		ExpectResponse: true,
		Timeout:        timeout,
	})
	elapsed := time.Since(start)

	require.NoError(t, err, "a response-wait timeout is no-response, not failure")
	assert.False(t, resp.Received)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond, "must not block past the deadline")
}

func TestLateResponseAfterTimeoutIsDiscarded(t *testing.T) {
	left := newFakeWriter(transport.Left)
	d := newDispatcher(t, dispatch.Options{WriteThrottle: time.Millisecond}, left)

	resp, err := d.Send(context.Background(), transport.Left, dispatch.Command{
		Payload:        []byte{0x22, 0x00},
		ExpectResponse: true,
		Timeout:        20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.False(t, resp.Received)

	// The waiter is gone; a late frame must not panic or leak.
	d.HandleFrame(transport.Left, []byte{0x22, 0xC9})
}

func TestSendToUnknownSideFails(t *testing.T) {
	left := newFakeWriter(transport.Left)
	d := newDispatcher(t, dispatch.Options{}, left)

	_, err := d.Send(context.Background(), transport.Right, dispatch.Command{Payload: []byte{0x25}})
	assert.Error(t, err)
}

func TestSendBeforeStartFails(t *testing.T) {
	left := newFakeWriter(transport.Left)
	d := dispatch.NewDispatcher([]dispatch.LinkWriter{left}, dispatch.Options{}, quietLogger())

	_, err := d.Send(context.Background(), transport.Left, dispatch.Command{Payload: []byte{0x25}})
	assert.Error(t, err)
}

func TestHeartbeatAdvancesTimestampOnlyOnSuccess(t *testing.T) {
	left := newFakeWriter(transport.Left)
	right := newFakeWriter(transport.Right)
	right.writeErrs = []error{
		errors.New("down"), errors.New("down"), errors.New("down"),
		errors.New("down"), errors.New("down"), errors.New("down"),
	}

	d := newDispatcher(t, dispatch.Options{Retries: 3, RetryDelay: time.Millisecond, WriteThrottle: time.Millisecond}, left, right)

	keeper := dispatch.NewHeartbeatKeeper(d, 20*time.Millisecond, quietLogger())
	keeper.Start()
	defer keeper.Stop()

	assert.Eventually(t, func() bool { return left.heartbeatCount() >= 2 }, 2*time.Second, 5*time.Millisecond,
		"heartbeat loop must keep running across cycles")
	assert.Zero(t, right.heartbeatCount(), "failed writes must not advance the heartbeat timestamp")

	// The failing side never stops the loop for the healthy one.
	sent := left.sentPayloads()
	require.NotEmpty(t, sent)
	assert.Equal(t, byte(0x25), sent[0][0])
	assert.Equal(t, sent[0][3], sent[0][5], "sequence byte appears twice in the keep-alive frame")
}

func TestHeartbeatSkipsDisconnectedSides(t *testing.T) {
	left := newFakeWriter(transport.Left)
	left.connected = false
	right := newFakeWriter(transport.Right)

	d := newDispatcher(t, dispatch.Options{WriteThrottle: time.Millisecond}, left, right)
	keeper := dispatch.NewHeartbeatKeeper(d, 10*time.Millisecond, quietLogger())
	keeper.Start()
	defer keeper.Stop()

	assert.Eventually(t, func() bool { return right.heartbeatCount() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, left.sentPayloads())
}
