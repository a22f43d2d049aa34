// Package testutils provides fakes and assertion helpers shared by the
// driver's tests: a scripted in-memory transport link and a JSON snapshot
// asserter.
package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/g1ctl/internal/transport"
)

// FakeLink is an in-memory transport.Link with scripted behavior. Tests
// drive inbound traffic with Notify and simulate peripheral drops with
// Drop.
type FakeLink struct {
	mu sync.Mutex

	Side transport.Side

	// ConnectErrs scripts the outcome of successive Connect calls; once the
	// script is exhausted, Connect succeeds. A nil entry is a success.
	ConnectErrs []error

	// SubscribeErr, if set, fails Subscribe once and is then cleared.
	SubscribeErr error

	// WriteErrs scripts the outcome of successive Write calls, like
	// ConnectErrs.
	WriteErrs []error

	// WriteDelay, if set, makes Write block that long (throttle testing).
	WriteDelay time.Duration

	// Rssi is returned from RSSI while connected.
	Rssi int

	connected    bool
	connectCalls int
	connectTimes []time.Time
	writes       [][]byte
	handler      func([]byte)
	disconnected chan struct{}
	dropOnce     sync.Once
}

// NewFakeLink creates a disconnected fake for the given side.
func NewFakeLink(side transport.Side) *FakeLink {
	return &FakeLink{
		Side:         side,
		disconnected: make(chan struct{}),
	}
}

// Factory returns a transport.LinkFactory that always hands out this fake.
func (f *FakeLink) Factory() transport.LinkFactory {
	return func(transport.Side) (transport.Link, error) {
		return f, nil
	}
}

func (f *FakeLink) Connect(ctx context.Context, opts *transport.ConnectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connectCalls++
	f.connectTimes = append(f.connectTimes, time.Now())

	if len(f.ConnectErrs) > 0 {
		err := f.ConnectErrs[0]
		f.ConnectErrs = f.ConnectErrs[1:]
		if err != nil {
			return err
		}
	}

	f.connected = true
	f.disconnected = make(chan struct{})
	f.dropOnce = sync.Once{}
	return nil
}

func (f *FakeLink) Subscribe(handler func(data []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubscribeErr != nil {
		err := f.SubscribeErr
		f.SubscribeErr = nil
		return err
	}
	f.handler = handler
	return nil
}

func (f *FakeLink) Write(data []byte, withResponse bool, timeout time.Duration) error {
	if f.WriteDelay > 0 {
		time.Sleep(f.WriteDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return &transport.TransportError{Op: "write", Side: f.Side, Err: transport.ErrNotConnected}
	}
	if len(f.WriteErrs) > 0 {
		err := f.WriteErrs[0]
		f.WriteErrs = f.WriteErrs[1:]
		if err != nil {
			return err
		}
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *FakeLink) Disconnected() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

func (f *FakeLink) RSSI() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return 0
	}
	return f.Rssi
}

func (f *FakeLink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeLink) Disconnect() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.dropOnce.Do(func() { close(f.disconnected) })
	return nil
}

// Notify delivers an inbound frame through the subscribed handler, as the
// BLE stack would.
func (f *FakeLink) Notify(data []byte) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(data)
	}
}

// Drop simulates a peripheral-initiated disconnect.
func (f *FakeLink) Drop() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.dropOnce.Do(func() { close(f.disconnected) })
}

// ConnectCalls reports how many times Connect was invoked.
func (f *FakeLink) ConnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

// ConnectTimes returns the timestamps of every Connect call.
func (f *FakeLink) ConnectTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.connectTimes))
	copy(out, f.connectTimes)
	return out
}

// Writes returns copies of every payload written so far.
func (f *FakeLink) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// Subscribed reports whether a notification handler is installed.
func (f *FakeLink) Subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}
