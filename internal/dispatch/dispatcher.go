// Package dispatch serializes outbound command traffic per link and retrofits
// request/response correlation onto the device's one-way notify channel. One
// ordered worker per side pulls a FIFO queue, writes with bounded retry, and
// optionally waits for the first inbound frame whose leading byte matches the
// expected response.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/g1ctl/internal/groutine"
	"github.com/srg/g1ctl/internal/transport"
)

// Defaults mirror the behavior of the vendor's own application.
const (
	DefaultRetries         = 3
	DefaultRetryDelay      = 500 * time.Millisecond
	DefaultWriteThrottle   = 100 * time.Millisecond
	DefaultWriteTimeout    = 2 * time.Second
	DefaultResponseTimeout = 3 * time.Second
	DefaultQueueSize       = 32
)

// LinkWriter is the slice of the link supervisor the dispatcher needs.
type LinkWriter interface {
	Side() transport.Side
	Write(data []byte, withResponse bool, timeout time.Duration) error
	IsConnected() bool
	MarkHeartbeat(at time.Time)
}

// Command is one outbound write, optionally expecting a correlated response.
type Command struct {
	Payload []byte

	// ExpectResponse arms a one-shot waiter for the first inbound frame
	// whose leading byte equals ResponseKey (or Payload[0] when zero).
	ExpectResponse bool
	ResponseKey    byte

	// Timeout bounds the response wait, not the write. Zero selects
	// DefaultResponseTimeout.
	Timeout time.Duration
}

// Response is the outcome of a command that expected a reply. Received is
// false when the wait timed out: that is "no response", not an error. The
// caller decides whether to escalate.
type Response struct {
	Data     []byte
	Received bool
}

// Options tune the dispatcher.
type Options struct {
	Retries       int
	RetryDelay    time.Duration
	WriteThrottle time.Duration
	WriteTimeout  time.Duration
	QueueSize     int
}

type outcome struct {
	resp *Response
	err  error
}

type envelope struct {
	cmd  Command
	done chan outcome
}

type waiterKey struct {
	side transport.Side
	lead byte
}

// Dispatcher owns one FIFO queue and worker per link. Single-flight per link
// is what makes leading-byte correlation safe: with at most one expectant
// command in flight on a link, the first matching frame can only belong to it.
type Dispatcher struct {
	logger  *logrus.Logger
	opts    Options
	writers map[transport.Side]LinkWriter
	queues  map[transport.Side]chan *envelope

	waiterMu sync.Mutex
	waiters  map[waiterKey]chan []byte

	group   *groutine.Group
	started atomic.Bool
}

// NewDispatcher creates a dispatcher over the given link writers.
func NewDispatcher(writers []LinkWriter, opts Options, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.WriteThrottle <= 0 {
		opts.WriteThrottle = DefaultWriteThrottle
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	d := &Dispatcher{
		logger:  logger,
		opts:    opts,
		writers: make(map[transport.Side]LinkWriter, len(writers)),
		queues:  make(map[transport.Side]chan *envelope, len(writers)),
		waiters: make(map[waiterKey]chan []byte),
	}
	for _, w := range writers {
		d.writers[w.Side()] = w
		d.queues[w.Side()] = make(chan *envelope, opts.QueueSize)
	}
	return d
}

// Start launches one ordered worker per link.
func (d *Dispatcher) Start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	d.group = groutine.NewGroup(context.Background())
	for side := range d.writers {
		side := side
		d.group.Go("dispatch-"+side.String(), func(ctx context.Context) {
			d.worker(ctx, side)
		})
	}
	d.logger.WithField("links", len(d.writers)).Debug("Command dispatcher started")
}

// Stop cancels and awaits the workers. Pending commands fail with
// ErrNotConnected the next time their caller is scheduled.
func (d *Dispatcher) Stop() {
	if !d.started.CompareAndSwap(true, false) {
		return
	}
	d.group.Stop()
	d.group = nil

	d.waiterMu.Lock()
	for key, ch := range d.waiters {
		close(ch)
		delete(d.waiters, key)
	}
	d.waiterMu.Unlock()
	d.logger.Debug("Command dispatcher stopped")
}

// Send enqueues a command for one side and blocks until it completes: write
// failure after all retries is an error; a response-wait timeout is a
// Response with Received=false, never an error.
func (d *Dispatcher) Send(ctx context.Context, side transport.Side, cmd Command) (*Response, error) {
	if !d.started.Load() {
		return nil, fmt.Errorf("dispatcher not started")
	}
	queue, ok := d.queues[side]
	if !ok {
		return nil, fmt.Errorf("no link for side %s", side)
	}

	env := &envelope{cmd: cmd, done: make(chan outcome, 1)}
	select {
	case queue <- env:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-env.done:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// worker drains one side's queue in order. At most one write is in flight on
// a link; a small throttle spaces successive writes.
func (d *Dispatcher) worker(ctx context.Context, side transport.Side) {
	writer := d.writers[side]
	queue := d.queues[side]

	for {
		var env *envelope
		select {
		case <-ctx.Done():
			return
		case env = <-queue:
		}

		env.done <- d.execute(ctx, side, writer, env.cmd)

		select {
		case <-time.After(d.opts.WriteThrottle):
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, side transport.Side, writer LinkWriter, cmd Command) outcome {
	var respCh chan []byte
	var key waiterKey

	if cmd.ExpectResponse {
		lead := cmd.ResponseKey
		if lead == 0 && len(cmd.Payload) > 0 {
			lead = cmd.Payload[0]
		}
		key = waiterKey{side: side, lead: lead}
		respCh = d.addWaiter(key)
	}

	if err := d.writeWithRetry(ctx, writer, cmd.Payload); err != nil {
		if respCh != nil {
			d.removeWaiter(key)
		}
		return outcome{err: err}
	}

	if respCh == nil {
		return outcome{resp: &Response{Received: false}}
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}

	select {
	case data, ok := <-respCh:
		if !ok {
			return outcome{err: transport.ErrNotConnected}
		}
		return outcome{resp: &Response{Data: data, Received: true}}
	case <-time.After(timeout):
		d.removeWaiter(key)
		d.logger.WithFields(logrus.Fields{
			"side": side,
			"lead": fmt.Sprintf("0x%02x", key.lead),
		}).Debug("No response within timeout")
		return outcome{resp: &Response{Received: false}}
	case <-ctx.Done():
		d.removeWaiter(key)
		return outcome{err: ctx.Err()}
	}
}

func (d *Dispatcher) writeWithRetry(ctx context.Context, writer LinkWriter, payload []byte) error {
	var lastErr error
	for attempt := 1; attempt <= d.opts.Retries; attempt++ {
		lastErr = writer.Write(payload, true, d.opts.WriteTimeout)
		if lastErr == nil {
			if attempt > 1 {
				d.logger.WithFields(logrus.Fields{
					"side":    writer.Side(),
					"attempt": attempt,
				}).Debug("Write succeeded after retry")
			}
			return nil
		}
		d.logger.WithFields(logrus.Fields{
			"side":    writer.Side(),
			"attempt": attempt,
			"error":   lastErr,
		}).Warn("Write attempt failed")

		// A link that reports not-connected stays down until its supervisor
		// reconnects; burning the remaining attempts on it is pointless.
		if transport.IsConnectionState(lastErr, transport.NotConnected) {
			return lastErr
		}

		if attempt < d.opts.Retries {
			select {
			case <-time.After(d.opts.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (d *Dispatcher) addWaiter(key waiterKey) chan []byte {
	d.waiterMu.Lock()
	defer d.waiterMu.Unlock()

	if old, ok := d.waiters[key]; ok {
		// Should not happen under single-flight dispatch; the old waiter can
		// no longer win, so evict it.
		d.logger.WithFields(logrus.Fields{
			"side": key.side,
			"lead": fmt.Sprintf("0x%02x", key.lead),
		}).Warn("Replacing stale response waiter")
		close(old)
	}
	ch := make(chan []byte, 1)
	d.waiters[key] = ch
	return ch
}

func (d *Dispatcher) removeWaiter(key waiterKey) {
	d.waiterMu.Lock()
	defer d.waiterMu.Unlock()
	delete(d.waiters, key)
}

// HandleFrame resolves the one-shot waiter, if any, matching this inbound
// frame's leading byte. Called on the notification decode path; it never
// blocks.
func (d *Dispatcher) HandleFrame(side transport.Side, data []byte) {
	if len(data) == 0 {
		return
	}

	key := waiterKey{side: side, lead: data[0]}
	d.waiterMu.Lock()
	ch, ok := d.waiters[key]
	if ok {
		delete(d.waiters, key)
	}
	d.waiterMu.Unlock()

	if ok {
		ch <- data
	}
}
