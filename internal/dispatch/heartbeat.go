package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/g1ctl/internal/groutine"
	"github.com/srg/g1ctl/internal/protocol"
	"github.com/srg/g1ctl/internal/transport"
)

// DefaultHeartbeatInterval matches the vendor application's keep-alive rate.
const DefaultHeartbeatInterval = 8 * time.Second

// HeartbeatKeeper periodically enqueues the keep-alive command on both
// links. A failed cycle is logged and the loop continues: heartbeat failure
// is a liveness signal, never fatal. The per-link last-heartbeat timestamp
// advances only on confirmed write success.
type HeartbeatKeeper struct {
	dispatcher *Dispatcher
	interval   time.Duration
	logger     *logrus.Logger

	mu    sync.Mutex
	seq   byte
	group *groutine.Group
}

// NewHeartbeatKeeper creates a keeper over the dispatcher's links.
func NewHeartbeatKeeper(d *Dispatcher, interval time.Duration, logger *logrus.Logger) *HeartbeatKeeper {
	if logger == nil {
		logger = logrus.New()
	}
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &HeartbeatKeeper{
		dispatcher: d,
		interval:   interval,
		logger:     logger,
	}
}

// Start launches the keep-alive loop. Independently cancellable via Stop.
func (h *HeartbeatKeeper) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.group != nil {
		return
	}
	h.group = groutine.NewGroup(context.Background())
	h.group.Go("heartbeat-loop", h.run)
}

// Stop cancels and awaits the loop. Safe to call when not started.
func (h *HeartbeatKeeper) Stop() {
	h.mu.Lock()
	group := h.group
	h.group = nil
	h.mu.Unlock()

	if group != nil {
		group.Stop()
	}
}

func (h *HeartbeatKeeper) run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

// beat sends one keep-alive to each connected side. Both sides share the
// sequence counter, modulo 256.
func (h *HeartbeatKeeper) beat(ctx context.Context) {
	h.mu.Lock()
	h.seq++
	payload := protocol.Heartbeat(h.seq)
	h.mu.Unlock()

	for _, side := range transport.Sides() {
		writer, ok := h.dispatcher.writers[side]
		if !ok || !writer.IsConnected() {
			continue
		}

		_, err := h.dispatcher.Send(ctx, side, Command{Payload: payload})
		if err != nil {
			h.logger.WithFields(logrus.Fields{
				"side":  side,
				"error": err,
			}).Warn("Heartbeat failed")
			continue
		}

		writer.MarkHeartbeat(time.Now())
		h.logger.WithFields(logrus.Fields{
			"side": side,
			"seq":  payload[3],
		}).Debug("Heartbeat sent")
	}
}
