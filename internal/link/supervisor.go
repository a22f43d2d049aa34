// Package link drives one side's physical connection through
// scan→pair→connect→connected and supervises bounded reconnection when the
// peripheral drops the link.
package link

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/g1ctl/internal/groutine"
	"github.com/srg/g1ctl/internal/transport"
)

// State is the per-link connection state.
type State int

const (
	StateDisconnected State = iota
	StateScanning
	StatePairing
	StateConnecting
	StateConnected
	StatePairingFailed
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "Scanning"
	case StatePairing:
		return "Pairing"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StatePairingFailed:
		return "PairingFailed"
	default:
		return "Disconnected"
	}
}

// DefaultMonitorInterval spaces link-quality checks.
const DefaultMonitorInterval = 10 * time.Second

// Options bound a connection attempt.
type Options struct {
	ConnectTimeout  time.Duration
	MaxAttempts     int
	RetryDelay      time.Duration
	MonitorInterval time.Duration
}

// Status is a read-only snapshot of the link handle.
type Status struct {
	Side          transport.Side
	Address       string
	Name          string
	Paired        bool
	State         State
	RSSI          int
	ErrorCount    int
	LastHeartbeat time.Time
}

// FrameHandler receives every inbound notification frame from a link. It is
// invoked on the BLE callback path and must not block.
type FrameHandler func(side transport.Side, data []byte)

// Supervisor owns one side's link handle: the transport connection, the
// bound address, and the connection state machine.
type Supervisor struct {
	side    transport.Side
	logger  *logrus.Logger
	newLink transport.LinkFactory
	opts    Options
	onFrame FrameHandler

	mu            sync.RWMutex
	link          transport.Link
	address       string
	name          string
	paired        bool
	state         State
	rssi          int
	errorCount    int
	lastHeartbeat time.Time

	connecting   atomic.Bool
	shuttingDown atomic.Bool
	group        *groutine.Group
}

// NewSupervisor creates a supervisor for one side. onFrame receives every
// inbound frame once the link is up.
func NewSupervisor(side transport.Side, factory transport.LinkFactory, opts Options, onFrame FrameHandler, logger *logrus.Logger) *Supervisor {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = DefaultMonitorInterval
	}
	return &Supervisor{
		side:    side,
		logger:  logger,
		newLink: factory,
		opts:    opts,
		onFrame: onFrame,
		state:   StateDisconnected,
	}
}

// Side returns which earpiece this supervisor drives.
func (s *Supervisor) Side() transport.Side { return s.side }

// Bind records the address and display name this side connects to.
func (s *Supervisor) Bind(address, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = address
	s.name = name
}

// SetStage records a pre-connection lifecycle stage: Scanning while discovery
// looks for this side, Pairing while verification runs, or Disconnected when
// an abandoned stage is rolled back. Stages never override a live connection.
func (s *Supervisor) SetStage(stage State) {
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.mu.Unlock()
		return
	}
	old := s.state
	s.state = stage
	s.mu.Unlock()

	if old != stage {
		s.logger.WithFields(logrus.Fields{
			"side": s.side,
			"from": old.String(),
			"to":   stage.String(),
		}).Info("Link state changed")
	}
}

// SetPaired records the outcome of pairing verification. A failed
// verification parks a link that is not up in PairingFailed; a successful one
// ends the Pairing stage so the next Connect starts clean.
func (s *Supervisor) SetPaired(paired bool) {
	s.mu.Lock()
	s.paired = paired
	old := s.state
	switch {
	case !paired && old != StateConnected && old != StateConnecting:
		s.state = StatePairingFailed
	case paired && (old == StatePairing || old == StatePairingFailed):
		s.state = StateDisconnected
	}
	changed := s.state != old
	now := s.state
	s.mu.Unlock()

	if changed {
		s.logger.WithFields(logrus.Fields{
			"side": s.side,
			"from": old.String(),
			"to":   now.String(),
		}).Info("Link state changed")
	}
}

// Status returns a consistent copy of the link handle.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Side:          s.side,
		Address:       s.address,
		Name:          s.name,
		Paired:        s.paired,
		State:         s.state,
		RSSI:          s.rssi,
		ErrorCount:    s.errorCount,
		LastHeartbeat: s.lastHeartbeat,
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsConnected reports whether the link is currently up.
func (s *Supervisor) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateConnected && s.link != nil && s.link.IsConnected()
}

// MarkHeartbeat records a confirmed keep-alive write. Only called on write
// success, so the timestamp is a genuine liveness signal.
func (s *Supervisor) MarkHeartbeat(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = at
}

// Write forwards one frame to the underlying link.
func (s *Supervisor) Write(data []byte, withResponse bool, timeout time.Duration) error {
	s.mu.RLock()
	link := s.link
	s.mu.RUnlock()

	if link == nil {
		return &transport.TransportError{Op: "write", Side: s.side, Err: transport.ErrNotConnected}
	}
	err := link.Write(data, withResponse, timeout)
	if err != nil {
		s.countError()
	}
	return err
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	old := s.state
	s.state = state
	s.mu.Unlock()

	if old != state {
		s.logger.WithFields(logrus.Fields{
			"side": s.side,
			"from": old.String(),
			"to":   state.String(),
		}).Info("Link state changed")
	}
}

func (s *Supervisor) countError() {
	s.mu.Lock()
	s.errorCount++
	s.mu.Unlock()
}

// Connect establishes the link, retrying up to MaxAttempts with RetryDelay
// between attempts. It is not reentrant for the same side: a second call
// while one is in flight is rejected with ErrConnectInProgress. The
// notification subscription is established before success is signalled, so
// no frame between transport-connect and subscription is lost.
func (s *Supervisor) Connect(ctx context.Context) error {
	if !s.connecting.CompareAndSwap(false, true) {
		return transport.ErrConnectInProgress
	}
	defer s.connecting.Store(false)

	s.mu.RLock()
	address := s.address
	s.mu.RUnlock()
	if address == "" {
		return &transport.TransportError{Op: "connect", Side: s.side, Err: transport.ErrNotInitialized}
	}

	s.shuttingDown.Store(false)
	s.setState(StateConnecting)

	link, err := s.attemptLoop(ctx, address)
	if err != nil {
		s.setState(StateDisconnected)
		return err
	}

	group := groutine.NewGroup(context.Background())
	s.mu.Lock()
	s.link = link
	s.group = group
	s.mu.Unlock()

	group.Go("link-watch-"+s.side.String(), func(ctx context.Context) {
		s.watch(ctx, link)
	})
	group.Go("link-monitor-"+s.side.String(), func(ctx context.Context) {
		s.monitor(ctx)
	})

	s.setState(StateConnected)
	return nil
}

// attemptLoop runs the bounded connect-and-subscribe sequence.
func (s *Supervisor) attemptLoop(ctx context.Context, address string) (transport.Link, error) {
	var lastErr error

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		s.logger.WithFields(logrus.Fields{
			"side":    s.side,
			"address": address,
			"attempt": attempt,
			"max":     s.opts.MaxAttempts,
		}).Info("Attempting link connection")

		link, err := s.connectOnce(ctx, address)
		if err == nil {
			return link, nil
		}
		lastErr = err
		s.countError()
		s.logger.WithFields(logrus.Fields{
			"side":    s.side,
			"attempt": attempt,
			"error":   err,
		}).Warn("Link connection attempt failed")

		if attempt < s.opts.MaxAttempts {
			select {
			case <-time.After(s.opts.RetryDelay):
			case <-ctx.Done():
				return nil, &transport.TransportError{Op: "connect", Side: s.side, Err: ctx.Err()}
			}
		}
	}
	return nil, lastErr
}

func (s *Supervisor) connectOnce(ctx context.Context, address string) (transport.Link, error) {
	link, err := s.newLink(s.side)
	if err != nil {
		return nil, &transport.TransportError{Op: "connect", Side: s.side, Err: err}
	}

	if err := link.Connect(ctx, &transport.ConnectOptions{
		Address:        address,
		ConnectTimeout: s.opts.ConnectTimeout,
	}); err != nil {
		return nil, err
	}

	// Subscribe before reporting the link as up.
	if err := link.Subscribe(func(data []byte) {
		if s.onFrame != nil {
			s.onFrame(s.side, data)
		}
	}); err != nil {
		_ = link.Disconnect()
		return nil, err
	}
	return link, nil
}

// watch waits for a peripheral-initiated disconnect and runs the bounded
// reconnection sub-flow. It lives inside the supervisor's group, so a
// deliberate Disconnect cancels and awaits it instead of racing it.
func (s *Supervisor) watch(ctx context.Context, link transport.Link) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-link.Disconnected():
		}

		if s.shuttingDown.Load() || ctx.Err() != nil {
			return
		}

		s.logger.WithField("side", s.side).Warn("Link dropped by peripheral, reconnecting")
		s.countError()
		s.setState(StateConnecting)

		s.mu.RLock()
		address := s.address
		s.mu.RUnlock()

		next, err := s.attemptLoop(ctx, address)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WithFields(logrus.Fields{
					"side":  s.side,
					"error": err,
				}).Error("Reconnection failed, giving up")
				s.setState(StateDisconnected)
			}
			return
		}

		s.mu.Lock()
		s.link = next
		s.mu.Unlock()
		s.setState(StateConnected)
		link = next
	}
}

// monitor tracks link quality: RSSI while up, error counts when the link is
// unexpectedly down.
func (s *Supervisor) monitor(ctx context.Context) {
	ticker := time.NewTicker(s.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.RLock()
		link := s.link
		state := s.state
		s.mu.RUnlock()

		if link == nil {
			continue
		}
		if link.IsConnected() {
			rssi := link.RSSI()
			s.mu.Lock()
			s.rssi = rssi
			s.mu.Unlock()
		} else if state == StateConnected {
			s.logger.WithField("side", s.side).Warn("Link reported down during quality check")
			s.countError()
		}
	}
}

// Disconnect deliberately tears the link down, cancelling and awaiting the
// watcher, monitor, and any in-flight reconnection. Calling it twice, or
// before any successful Connect, is a no-op.
func (s *Supervisor) Disconnect() error {
	s.shuttingDown.Store(true)

	// Take ownership of the group under the lock, stop it outside: Stop waits
	// for members that themselves take the lock.
	s.mu.Lock()
	group := s.group
	s.group = nil
	s.mu.Unlock()
	if group != nil {
		group.Stop()
	}

	s.mu.Lock()
	link := s.link
	s.link = nil
	s.mu.Unlock()

	var err error
	if link != nil {
		err = link.Disconnect()
	}
	s.setState(StateDisconnected)
	return err
}
