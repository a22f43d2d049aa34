//go:build linux

package pairing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/srg/g1ctl/internal/transport"
)

const (
	busName      = "org.bluez"
	adapterPath  = "/org/bluez/hci0"
	deviceIface  = "org.bluez.Device1"
	propsIface   = "org.freedesktop.DBus.Properties"
	bondRecovery = 2 * time.Second
)

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(addr string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(strings.ToUpper(addr), ":", "_")
	return dbus.ObjectPath(adapterPath + "/dev_" + escaped)
}

// BlueZPairer bonds devices explicitly through the BlueZ D-Bus API.
type BlueZPairer struct {
	logger *logrus.Logger
}

// NewBlueZPairer creates the explicit-pairing strategy backed by the system
// bus. It fails if BlueZ is not present on the bus.
func NewBlueZPairer(logger *logrus.Logger) (*BlueZPairer, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%s not found on system bus, is bluetooth.service running?", busName)
	}
	return &BlueZPairer{logger: logger}, nil
}

// Pair requests a bond with the device at address. A bond request that hits
// a transient BlueZ state is recovered once: force-disconnect, wait for the
// stack to settle, and retry. Already-bonded devices succeed immediately.
func (p *BlueZPairer) Pair(ctx context.Context, side transport.Side, address string) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return &transport.PairingError{Side: side, Err: err}
	}

	path := deviceObjectPath(address)
	obj := conn.Object(busName, path)

	if paired, err := p.devicePaired(conn, path); err == nil && paired {
		p.logger.WithField("side", side.String()).Debug("device already bonded")
		return nil
	}

	log := p.logger.WithFields(logrus.Fields{
		"side":    side.String(),
		"address": address,
	})
	log.Info("requesting bond")

	if err := obj.CallWithContext(ctx, deviceIface+".Pair", 0).Err; err != nil {
		if !isRecoverablePairError(err) {
			return &transport.PairingError{Side: side, Err: err}
		}
		log.WithError(err).Debug("bond request hit transient state, recovering")
		_ = obj.CallWithContext(ctx, deviceIface+".Disconnect", 0).Err
		select {
		case <-time.After(bondRecovery):
		case <-ctx.Done():
			return &transport.PairingError{Side: side, Err: ctx.Err()}
		}
		if err := obj.CallWithContext(ctx, deviceIface+".Pair", 0).Err; err != nil {
			return &transport.PairingError{Side: side, Err: err}
		}
	}

	// Trusted devices reconnect without a user prompt. Best effort.
	if err := obj.Call(propsIface+".Set", 0, deviceIface, "Trusted", dbus.MakeVariant(true)).Err; err != nil {
		log.WithError(err).Debug("could not mark device trusted")
	}

	log.Info("bond established")
	return nil
}

func (p *BlueZPairer) devicePaired(conn *dbus.Conn, path dbus.ObjectPath) (bool, error) {
	var v dbus.Variant
	err := conn.Object(busName, path).Call(propsIface+".Get", 0, deviceIface, "Paired").Store(&v)
	if err != nil {
		return false, err
	}
	paired, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("Paired property is not bool")
	}
	return paired, nil
}

// isRecoverablePairError reports whether a Pair call failed in a way that a
// disconnect-and-retry is known to clear.
func isRecoverablePairError(err error) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		switch dbusErr.Name {
		case "org.bluez.Error.AlreadyExists":
			return false // bond exists, caller treats Paired property as truth
		case "org.bluez.Error.InProgress", "org.bluez.Error.Failed":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "in progress") || strings.Contains(msg, "authentication canceled")
}
