package goble

import (
	"context"
	"errors"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/g1ctl/internal/transport"
)

// Scanner implements transport.Scanner using the default BLE device.
type Scanner struct {
	logger *logrus.Logger
}

// NewScanner creates a scanner backed by DeviceFactory.
func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{logger: logger}
}

// Scan runs BLE discovery until ctx expires, invoking handler for every
// advertisement. Context cancellation and deadline expiry are normal
// completion, not errors.
func (s *Scanner) Scan(ctx context.Context, allowDup bool, handler func(transport.Advertisement)) error {
	dev, err := DeviceFactory()
	if err != nil {
		return err
	}
	ble.SetDefaultDevice(dev)

	err = dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(transport.Advertisement{
			Name:    adv.LocalName(),
			Address: adv.Addr().String(),
			RSSI:    adv.RSSI(),
		})
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
