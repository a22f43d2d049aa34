package pairing

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/srg/g1ctl/internal/transport"
)

// ManualPairer is the strategy for platforms where bonds are managed by the
// OS and no programmatic pairing exists. It can only report the failure and
// point the user at the system Bluetooth settings.
type ManualPairer struct {
	logger *logrus.Logger
}

// NewManualPairer creates the OS-managed pairing strategy.
func NewManualPairer(logger *logrus.Logger) *ManualPairer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ManualPairer{logger: logger}
}

func (p *ManualPairer) Pair(_ context.Context, side transport.Side, address string) error {
	p.logger.WithFields(logrus.Fields{
		"side":    side.String(),
		"address": address,
	}).Warn("programmatic pairing unavailable on this platform, pair via the OS Bluetooth settings")
	return &transport.PairingError{
		Side:   side,
		Manual: true,
		Err:    errors.New("no programmatic pairing on this platform"),
	}
}
