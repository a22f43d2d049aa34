// Package glasses composes the per-side link supervisors, the command
// dispatcher, the heartbeat keeper, and the notification router into one
// logical device with a single connect/disconnect contract. The device is
// Connected only when both earpieces are up; no partially connected state is
// ever exposed.
package glasses

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/g1ctl/internal/dispatch"
	"github.com/srg/g1ctl/internal/link"
	"github.com/srg/g1ctl/internal/pairing"
	"github.com/srg/g1ctl/internal/protocol"
	"github.com/srg/g1ctl/internal/router"
	"github.com/srg/g1ctl/internal/transport"
	"github.com/srg/g1ctl/pkg/config"
)

// Glasses is the connection facade over one pair of earpieces.
type Glasses struct {
	cfg    *config.Config
	logger *logrus.Logger

	factory transport.LinkFactory
	scanner transport.Scanner
	pairer  pairing.Pairer

	router      *router.Router
	dispatcher  *dispatch.Dispatcher
	heartbeat   *dispatch.HeartbeatKeeper
	supervisors map[transport.Side]*link.Supervisor

	mu        sync.Mutex
	connected bool
}

// New wires a facade from its collaborators. factory and scanner are the
// transport backend; pairer is the platform pairing strategy.
func New(cfg *config.Config, factory transport.LinkFactory, scanner transport.Scanner, pairer pairing.Pairer, logger *logrus.Logger) *Glasses {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	g := &Glasses{
		cfg:     cfg,
		logger:  logger,
		factory: factory,
		scanner: scanner,
		pairer:  pairer,
		router:  router.NewRouter(logger),
	}

	g.supervisors = make(map[transport.Side]*link.Supervisor, 2)
	writers := make([]dispatch.LinkWriter, 0, 2)
	for _, side := range transport.Sides() {
		sup := link.NewSupervisor(side, factory, link.Options{
			ConnectTimeout: cfg.ConnectTimeout,
			MaxAttempts:    cfg.ReconnectAttempts,
			RetryDelay:     cfg.ReconnectDelay,
		}, g.router.Process, logger)
		g.supervisors[side] = sup
		writers = append(writers, sup)
	}

	g.dispatcher = dispatch.NewDispatcher(writers, dispatch.Options{}, logger)
	g.router.SetResponseTap(g.dispatcher.HandleFrame)
	g.heartbeat = dispatch.NewHeartbeatKeeper(g.dispatcher, cfg.HeartbeatInterval, logger)
	return g
}

// Connect brings the whole device up: discovery when no addresses are bound,
// pairing verification, Left then Right link connection, then command
// dispatch and heartbeats. Any stage failure unwinds to Disconnected; the
// device is never left partially up.
func (g *Glasses) Connect(ctx context.Context) error {
	g.mu.Lock()
	if g.connected {
		g.mu.Unlock()
		return transport.ErrAlreadyConnected
	}
	g.mu.Unlock()

	if !g.cfg.Left.Bound() || !g.cfg.Right.Bound() {
		for _, side := range transport.Sides() {
			g.supervisors[side].SetStage(link.StateScanning)
		}
		if err := g.discover(ctx); err != nil {
			for _, side := range transport.Sides() {
				g.supervisors[side].SetStage(link.StateDisconnected)
			}
			return err
		}
	}

	for _, side := range transport.Sides() {
		sc := g.sideConfig(side)
		g.supervisors[side].Bind(sc.Address, sc.Name)
		g.supervisors[side].SetStage(link.StatePairing)
	}

	coordinator := pairing.NewCoordinator(g.factory, g.pairer, g.cfg, g.logger)
	verified := coordinator.VerifyPairing(ctx)
	for _, side := range transport.Sides() {
		g.supervisors[side].SetPaired(g.sideConfig(side).Paired)
	}
	if !verified {
		return fmt.Errorf("pairing unverified, cannot connect")
	}

	g.router.Start()

	// Left first, then Right. Both are required.
	var up []transport.Side
	for _, side := range transport.Sides() {
		if err := g.supervisors[side].Connect(ctx); err != nil {
			g.logger.WithFields(logrus.Fields{
				"side":  side.String(),
				"error": err,
			}).Error("Link connection failed, unwinding")
			for _, s := range up {
				_ = g.supervisors[s].Disconnect()
			}
			g.router.Stop()
			return err
		}
		up = append(up, side)
	}

	g.dispatcher.Start()
	g.heartbeat.Start()

	g.mu.Lock()
	g.connected = true
	g.mu.Unlock()

	g.logger.Info("Both earpieces connected")
	return nil
}

// discover scans for both earpieces and persists their addresses.
func (g *Glasses) discover(ctx context.Context) error {
	if g.scanner == nil {
		return fmt.Errorf("no addresses bound and no scanner available")
	}

	d := NewDiscovery(g.scanner, g.cfg.LeftNamePattern, g.cfg.RightNamePattern, g.cfg.ScanTimeout, g.logger)
	found, err := d.Find(ctx)
	if err != nil {
		return err
	}

	for _, side := range transport.Sides() {
		adv := found[side]
		sc := g.sideConfig(side)
		sc.Address = adv.Address
		sc.Name = adv.Name
	}
	if err := g.cfg.Save(); err != nil {
		g.logger.WithError(err).Warn("could not persist discovered addresses")
	}
	return nil
}

// Disconnect tears everything down in reverse order of Connect: heartbeats,
// dispatch, links, router. It tolerates links that are already down; calling
// it twice, or before any successful Connect, is a no-op.
func (g *Glasses) Disconnect() error {
	g.mu.Lock()
	wasConnected := g.connected
	g.connected = false
	g.mu.Unlock()

	g.heartbeat.Stop()
	g.dispatcher.Stop()
	for _, side := range transport.Sides() {
		if err := g.supervisors[side].Disconnect(); err != nil {
			g.logger.WithFields(logrus.Fields{
				"side":  side.String(),
				"error": err,
			}).Warn("Link teardown reported an error")
		}
	}
	g.router.Stop()

	if wasConnected {
		g.logger.Info("Disconnected")
	}
	return nil
}

// IsConnected reports the aggregate state: true only when both links are up.
func (g *Glasses) IsConnected() bool {
	for _, side := range transport.Sides() {
		if !g.supervisors[side].IsConnected() {
			return false
		}
	}
	return true
}

// State reduces the two link states to one aggregate. Connected requires
// both sides; otherwise the more active of the two states is reported.
func (g *Glasses) State() link.State {
	left := g.supervisors[transport.Left].State()
	right := g.supervisors[transport.Right].State()
	if left == link.StateConnected && right == link.StateConnected {
		return link.StateConnected
	}
	if left == link.StateConnected {
		return right
	}
	if right == link.StateConnected {
		return left
	}
	if right > left {
		return left // report the side lagging behind
	}
	return right
}

// Status returns the per-side link handles.
func (g *Glasses) Status() map[transport.Side]link.Status {
	out := make(map[transport.Side]link.Status, 2)
	for _, side := range transport.Sides() {
		out[side] = g.supervisors[side].Status()
	}
	return out
}

// Send enqueues one command for a side. See dispatch.Command for response
// correlation semantics.
func (g *Glasses) Send(ctx context.Context, side transport.Side, cmd dispatch.Command) (*dispatch.Response, error) {
	return g.dispatcher.Send(ctx, side, cmd)
}

// SetSilentMode toggles silent mode. The command goes to the right side,
// which relays it, and expects a dashboard acknowledgement.
func (g *Glasses) SetSilentMode(ctx context.Context, enabled bool) (*dispatch.Response, error) {
	return g.dispatcher.Send(ctx, transport.Right, dispatch.Command{
		Payload:        protocol.SilentMode(enabled),
		ExpectResponse: true,
	})
}

// SendHeartbeat fires one immediate keep-alive probe at a side, outside the
// periodic loop. No response means the reply did not arrive in time, which
// for a probe is the answer itself.
func (g *Glasses) SendHeartbeat(ctx context.Context, side transport.Side, seq byte) (*dispatch.Response, error) {
	return g.dispatcher.Send(ctx, side, dispatch.Command{
		Payload:        protocol.Heartbeat(seq),
		ExpectResponse: true,
	})
}

// Subscribe registers an event handler for one category; a nil side matches
// both earpieces. Returns a token for Unsubscribe.
func (g *Glasses) Subscribe(cat protocol.Category, side *transport.Side, h router.EventHandler) string {
	return g.router.Subscribe(cat, side, h)
}

// SubscribeRaw registers a diagnostics handler for every inbound frame.
func (g *Glasses) SubscribeRaw(h router.RawHandler) string {
	return g.router.SubscribeRaw(h)
}

// Unsubscribe removes a subscription by token.
func (g *Glasses) Unsubscribe(token string) {
	g.router.Unsubscribe(token)
}

// Snapshot returns the accumulated device state.
func (g *Glasses) Snapshot() router.Snapshot {
	return g.router.Snapshot()
}

// RecentEvents drains the buffered event history, oldest first.
func (g *Glasses) RecentEvents() []router.Event {
	return g.router.RecentEvents()
}

// Unpair forgets the bound addresses and paired flags and persists the
// cleared state. The device must be disconnected first.
func (g *Glasses) Unpair() error {
	g.mu.Lock()
	connected := g.connected
	g.mu.Unlock()
	if connected {
		return fmt.Errorf("disconnect before unpairing")
	}

	g.cfg.ClearBinding()
	if err := g.cfg.Save(); err != nil {
		return fmt.Errorf("persist cleared binding: %w", err)
	}
	g.logger.Info("Unpaired, next connect will rescan")
	return nil
}

// sideConfig returns the mutable per-side config section.
func (g *Glasses) sideConfig(side transport.Side) *config.SideConfig {
	if side == transport.Right {
		return &g.cfg.Right
	}
	return &g.cfg.Left
}
