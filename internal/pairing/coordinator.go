package pairing

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/g1ctl/internal/transport"
	"github.com/srg/g1ctl/pkg/config"
)

// DefaultProbeTimeout bounds the connect half of a verification probe.
const DefaultProbeTimeout = 10 * time.Second

// Coordinator verifies that both bound earpieces are reachable and bonded,
// invoking the platform Pairer when a probe fails. Verification is advisory:
// any error yields "unverified", never a fatal failure, because a probe can
// fail for reasons pairing cannot fix (device in the case, out of range).
type Coordinator struct {
	factory      transport.LinkFactory
	pairer       Pairer
	cfg          *config.Config
	logger       *logrus.Logger
	probeTimeout time.Duration
}

// NewCoordinator wires a verification coordinator. A zero probeTimeout
// selects DefaultProbeTimeout.
func NewCoordinator(factory transport.LinkFactory, pairer Pairer, cfg *config.Config, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{
		factory:      factory,
		pairer:       pairer,
		cfg:          cfg,
		logger:       logger,
		probeTimeout: DefaultProbeTimeout,
	}
}

// VerifyPairing probes each bound side with a connect+disconnect round trip.
// A failed probe triggers the platform pairing strategy and one re-probe.
// Returns true only when every bound side verified; with no bound side it
// returns false. Persists newly confirmed paired flags.
func (c *Coordinator) VerifyPairing(ctx context.Context) bool {
	bound := false
	verified := true
	changed := false

	for _, side := range transport.Sides() {
		sc := c.sideConfig(side)
		if !sc.Bound() {
			c.logger.WithField("side", side.String()).Debug("no bound address, skipping verification")
			verified = false
			continue
		}
		bound = true

		log := c.logger.WithFields(logrus.Fields{
			"side":    side.String(),
			"address": sc.Address,
		})

		if err := c.probe(ctx, side, sc.Address); err != nil {
			log.WithError(err).Warn("verification probe failed, attempting pairing")
			if perr := c.pairer.Pair(ctx, side, sc.Address); perr != nil {
				log.WithError(perr).Warn("pairing unverified")
				verified = false
				continue
			}
			if err := c.probe(ctx, side, sc.Address); err != nil {
				log.WithError(err).Warn("probe still failing after pairing")
				verified = false
				continue
			}
		}

		log.Debug("verification probe succeeded")
		if !sc.Paired {
			sc.Paired = true
			changed = true
		}
	}

	if changed {
		if err := c.cfg.Save(); err != nil {
			c.logger.WithError(err).Warn("could not persist paired flags")
		}
	}
	return bound && verified
}

// probe performs the connect+disconnect round trip that proves the bond.
func (c *Coordinator) probe(ctx context.Context, side transport.Side, address string) error {
	link, err := c.factory(side)
	if err != nil {
		return err
	}
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	if err := link.Connect(probeCtx, &transport.ConnectOptions{
		Address:        address,
		ConnectTimeout: c.probeTimeout,
	}); err != nil {
		return err
	}
	return link.Disconnect()
}

func (c *Coordinator) sideConfig(side transport.Side) *config.SideConfig {
	if side == transport.Right {
		return &c.cfg.Right
	}
	return &c.cfg.Left
}
