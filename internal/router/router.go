package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/g1ctl/internal/groutine"
	"github.com/srg/g1ctl/internal/protocol"
	"github.com/srg/g1ctl/internal/transport"
)

const (
	// DefaultQueueSize bounds the per-router pending frame queue. When the
	// decode worker falls behind, the oldest pending frame is dropped.
	DefaultQueueSize = 256

	// DefaultHistorySize bounds the recent-event ring.
	DefaultHistorySize = 128
)

// Event is a decoded, classified state-change notification.
type Event struct {
	Side       transport.Side    `json:"side"`
	Code       byte              `json:"code"`
	Category   protocol.Category `json:"category"`
	Name       string            `json:"name"`
	Label      string            `json:"label"`
	Recognized bool              `json:"recognized"`
	Raw        []byte            `json:"-"`
	At         time.Time         `json:"at"`
}

// EventHandler receives classified state-change events. Handlers run on the
// router's worker goroutine; slow handlers delay delivery to later
// subscribers but a panicking handler never takes the router down.
type EventHandler func(Event)

// RawHandler receives every inbound frame before classification, including
// frames that fail to decode. Intended for diagnostics and logging.
type RawHandler func(side transport.Side, data []byte)

// ResponseTap sees every frame ahead of subscriber dispatch so that the
// command layer can resolve pending acknowledgements.
type ResponseTap func(side transport.Side, data []byte)

type subscription struct {
	category protocol.Category
	side     *transport.Side // nil matches both sides
	handler  EventHandler
	raw      RawHandler
}

type inbound struct {
	side transport.Side
	data []byte
	at   time.Time
}

// Router fans inbound notification frames out to the command layer, the
// device snapshot, and registered subscribers. Ingestion never blocks the
// caller; decoding and dispatch happen on a dedicated worker goroutine.
type Router struct {
	logger *logrus.Logger

	queue   *ringChan[inbound]
	history mpmc.RichOverlappedRingBuffer[Event]

	mu   sync.RWMutex
	subs *orderedmap.OrderedMap[string, *subscription]
	tap  ResponseTap

	snapMu sync.RWMutex
	snap   Snapshot

	seenMu  sync.Mutex
	seenUnk map[byte]struct{}

	group   *groutine.Group
	started bool
	startMu sync.Mutex

	now func() time.Time
}

// NewRouter creates a stopped router. Call Start before feeding frames.
func NewRouter(logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Router{
		logger:  logger,
		queue:   newRingChan[inbound](DefaultQueueSize),
		history: mpmc.NewOverlappedRingBuffer[Event](DefaultHistorySize),
		subs:    orderedmap.New[string, *subscription](),
		seenUnk: make(map[byte]struct{}),
		now:     time.Now,
	}
}

// SetResponseTap installs the command-layer hook. Must be called before
// Start; a nil tap disables it.
func (r *Router) SetResponseTap(tap ResponseTap) {
	r.mu.Lock()
	r.tap = tap
	r.mu.Unlock()
}

// Start launches the decode worker. Safe to call once per router.
func (r *Router) Start() {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.group = groutine.NewGroup(nil)
	r.group.Go("router-decode", r.run)
}

// Stop halts the decode worker and waits for it to exit. Frames still in
// the queue are discarded. Idempotent.
func (r *Router) Stop() {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	if !r.started {
		return
	}
	r.started = false
	r.group.Stop()
}

// Process enqueues a raw notification frame for decoding. It never blocks:
// when the queue is full the oldest pending frame is discarded and the drop
// is logged.
func (r *Router) Process(side transport.Side, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	if r.queue.Send(inbound{side: side, data: buf, at: r.now()}) {
		r.logger.WithField("side", side.String()).
			Warn("notification queue full, dropped oldest frame")
	}
}

// Subscribe registers a handler for state-change events in one category.
// A nil side matches notifications from either earpiece. Handlers are
// invoked in registration order. The returned token unregisters via
// Unsubscribe.
func (r *Router) Subscribe(cat protocol.Category, side *transport.Side, h EventHandler) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.subs.Set(id, &subscription{category: cat, side: side, handler: h})
	r.mu.Unlock()
	return id
}

// SubscribeRaw registers a handler that receives every inbound frame,
// decoded or not.
func (r *Router) SubscribeRaw(h RawHandler) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.subs.Set(id, &subscription{raw: h})
	r.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription. Unknown tokens are ignored.
func (r *Router) Unsubscribe(id string) {
	r.mu.Lock()
	r.subs.Delete(id)
	r.mu.Unlock()
}

// Snapshot returns a deep copy of the accumulated device state.
func (r *Router) Snapshot() Snapshot {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	out := r.snap
	out.Left = r.snap.Left.clone()
	out.Right = r.snap.Right.clone()
	return out
}

// RecentEvents drains and returns buffered events in oldest-first order.
// At most DefaultHistorySize events are retained; older ones are
// overwritten as new events arrive.
func (r *Router) RecentEvents() []Event {
	var out []Event
	for !r.history.IsEmpty() {
		ev, err := r.history.Dequeue()
		if err != nil {
			break
		}
		out = append(out, ev)
	}
	return out
}

func (r *Router) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-r.queue.C():
			r.handle(in)
		}
	}
}

func (r *Router) handle(in inbound) {
	r.mu.RLock()
	tap := r.tap
	r.mu.RUnlock()
	if tap != nil {
		tap(in.side, in.data)
	}

	r.dispatchRaw(in.side, in.data)

	frame, err := protocol.DecodeFrame(in.data)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"side":  in.side.String(),
			"bytes": fmt.Sprintf("% x", in.data),
		}).Debug("undecodable frame")
		return
	}
	if frame.Kind != protocol.KindStateChange {
		return
	}

	cat, info, recognized := protocol.Classify(frame.Code)
	ev := Event{
		Side:       in.side,
		Code:       frame.Code,
		Category:   cat,
		Name:       info.Name,
		Label:      info.Label,
		Recognized: recognized,
		Raw:        in.data,
		At:         in.at,
	}
	if !recognized {
		r.noteUnrecognized(in.side, frame.Code)
	}

	r.updateSnapshot(ev)
	if _, err := r.history.EnqueueM(ev); err != nil {
		r.logger.WithError(err).Debug("event history enqueue failed")
	}
	r.dispatchEvent(ev)
}

// noteUnrecognized logs each previously unseen code once; repeats stay
// silent so a chatty firmware cannot flood the log.
func (r *Router) noteUnrecognized(side transport.Side, code byte) {
	r.seenMu.Lock()
	_, seen := r.seenUnk[code]
	if !seen {
		r.seenUnk[code] = struct{}{}
	}
	r.seenMu.Unlock()
	if seen {
		return
	}
	r.logger.WithFields(logrus.Fields{
		"side": side.String(),
		"code": fmt.Sprintf("0x%02x", code),
	}).Info("unrecognized state-change code")
}

func (r *Router) updateSnapshot(ev Event) {
	r.snapMu.Lock()
	defer r.snapMu.Unlock()

	entry := &Entry{Code: ev.Code, Name: ev.Name, Label: ev.Label, At: ev.At}
	r.snap.side(ev.Side).set(ev.Category, entry)
	r.snap.UpdatedAt = ev.At

	if ev.Category == protocol.CategoryInteraction {
		r.applyInteraction(ev)
	}
}

// applyInteraction derives mode flags from interaction codes. Silent mode
// transitions are reported by the device directly; assistant mode has no
// dedicated state-change code and is inferred from the gestures that
// trigger it. Callers hold snapMu.
func (r *Router) applyInteraction(ev Event) {
	switch ev.Code {
	case protocol.InteractionSilentModeOn:
		r.snap.SilentMode = Flag{Enabled: true, Source: FlagSourceDevice}
	case protocol.InteractionSilentModeOff:
		r.snap.SilentMode = Flag{Enabled: false, Source: FlagSourceDevice}
	case protocol.InteractionLongPress:
		if ev.Side == transport.Left {
			r.snap.AssistantMode = Flag{Enabled: true, Source: FlagSourceInferred}
		}
	case protocol.InteractionDoubleTap:
		if ev.Side == transport.Left {
			r.snap.AssistantMode = Flag{Enabled: false, Source: FlagSourceInferred}
		}
	}
}

func (r *Router) dispatchRaw(side transport.Side, data []byte) {
	for _, sub := range r.subscribers() {
		if sub.raw == nil {
			continue
		}
		r.invoke(func() { sub.raw(side, data) })
	}
}

func (r *Router) dispatchEvent(ev Event) {
	for _, sub := range r.subscribers() {
		if sub.handler == nil {
			continue
		}
		if sub.category != ev.Category {
			continue
		}
		if sub.side != nil && *sub.side != ev.Side {
			continue
		}
		r.invoke(func() { sub.handler(ev) })
	}
}

// subscribers returns the current subscriptions in registration order.
func (r *Router) subscribers() []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*subscription, 0, r.subs.Len())
	for pair := r.subs.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// invoke runs a subscriber callback, containing panics so one misbehaving
// handler cannot stop delivery to the rest.
func (r *Router) invoke(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithField("panic", rec).Error("subscriber panicked")
		}
	}()
	fn()
}
