package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/g1ctl/internal/protocol"
	"github.com/srg/g1ctl/internal/transport"
)

const (
	// DefaultWriteChunkSize is the maximum number of bytes written in a
	// single BLE operation. BLE 4.0/4.1 defines an ATT_MTU of 23 bytes
	// (20 bytes payload after ATT header overhead); keeping chunks at 20
	// bytes works on every BLE version the glasses ship with.
	DefaultWriteChunkSize = 20

	// DefaultWriteDelay spaces consecutive chunks so the peripheral's
	// receive buffer is not overwhelmed.
	DefaultWriteDelay = 10 * time.Millisecond

	// DefaultConnectTimeout applies when ConnectOptions carries none.
	DefaultConnectTimeout = 20 * time.Second
)

// UARTLink is one side's go-ble backed connection to its earpiece.
type UARTLink struct {
	side   transport.Side
	logger *logrus.Logger

	client ble.Client
	txChar *ble.Characteristic
	rxChar *ble.Characteristic

	writeMu      sync.Mutex
	connMu       sync.RWMutex
	isConnected  bool
	disconnected chan struct{}
	closeOnce    sync.Once
}

// NewUARTLink creates an unconnected link for the given side.
func NewUARTLink(side transport.Side, logger *logrus.Logger) *UARTLink {
	if logger == nil {
		logger = logrus.New()
	}
	return &UARTLink{
		side:         side,
		logger:       logger,
		disconnected: make(chan struct{}),
	}
}

// NewLinkFactory returns a transport.LinkFactory producing UART links.
func NewLinkFactory(logger *logrus.Logger) transport.LinkFactory {
	return func(side transport.Side) (transport.Link, error) {
		return NewUARTLink(side, logger), nil
	}
}

// Connect dials the peripheral and resolves the UART characteristics.
func (l *UARTLink) Connect(ctx context.Context, opts *transport.ConnectOptions) error {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if strings.TrimSpace(opts.Address) == "" {
		return &transport.TransportError{Op: "connect", Side: l.side, Err: fmt.Errorf("device address is empty")}
	}
	if l.isConnected {
		return transport.ErrAlreadyConnected
	}

	timeout := opts.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}

	l.logger.WithFields(logrus.Fields{
		"side":    l.side,
		"address": opts.Address,
		"timeout": timeout,
	}).Info("Connecting to earpiece...")

	dev, err := DeviceFactory()
	if err != nil {
		return &transport.TransportError{Op: "connect", Side: l.side, Err: fmt.Errorf("failed to create BLE device: %w", err)}
	}
	ble.SetDefaultDevice(dev)

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := ble.Dial(connCtx, ble.NewAddr(opts.Address))
	if err != nil {
		if connCtx.Err() != nil {
			err = fmt.Errorf("%w: %v", transport.ErrTimeout, err)
		}
		return &transport.TransportError{Op: "connect", Side: l.side, Err: transport.NormalizeError(err)}
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return &transport.TransportError{Op: "connect", Side: l.side, Err: fmt.Errorf("service discovery failed: %w", transport.NormalizeError(err))}
	}

	tx, rx, err := findUARTChars(profile, opts)
	if err != nil {
		_ = client.CancelConnection()
		return &transport.TransportError{Op: "connect", Side: l.side, Err: err}
	}

	l.client = client
	l.txChar = tx
	l.rxChar = rx
	l.isConnected = true
	l.disconnected = make(chan struct{})
	l.closeOnce = sync.Once{}

	// Propagate peripheral-initiated disconnects to our own channel so the
	// supervisor has a single signal regardless of platform quirks.
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		go l.watchDisconnect(dc.Disconnected())
	} else {
		l.logger.Debug("Client does not expose a Disconnected() channel")
	}

	l.logger.WithFields(logrus.Fields{
		"side":    l.side,
		"address": opts.Address,
	}).Info("Earpiece transport connected")
	return nil
}

func (l *UARTLink) watchDisconnect(remote <-chan struct{}) {
	<-remote

	l.connMu.Lock()
	wasConnected := l.isConnected
	l.isConnected = false
	l.connMu.Unlock()

	if wasConnected {
		l.logger.WithField("side", l.side).Warn("Peripheral reported disconnection")
	}
	l.closeOnce.Do(func() { close(l.disconnected) })
}

// Subscribe starts notifications on the RX characteristic.
func (l *UARTLink) Subscribe(handler func(data []byte)) error {
	l.connMu.RLock()
	defer l.connMu.RUnlock()

	if !l.isConnected || l.client == nil {
		return &transport.TransportError{Op: "subscribe", Side: l.side, Err: transport.ErrNotConnected}
	}

	if err := l.client.Subscribe(l.rxChar, false, func(data []byte) {
		handler(data)
	}); err != nil {
		return &transport.TransportError{Op: "subscribe", Side: l.side, Err: transport.NormalizeError(err)}
	}

	l.logger.WithField("side", l.side).Debug("Subscribed to UART notifications")
	return nil
}

// Write sends one frame to the TX characteristic, chunked to the link MTU.
// Writes on a link are serialized; two goroutines can never interleave a
// frame's chunks.
func (l *UARTLink) Write(data []byte, withResponse bool, timeout time.Duration) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.connMu.RLock()
	client := l.client
	tx := l.txChar
	connected := l.isConnected
	l.connMu.RUnlock()

	if !connected || client == nil {
		return &transport.TransportError{Op: "write", Side: l.side, Err: transport.ErrNotConnected}
	}

	deadline := time.Now().Add(timeout)
	for len(data) > 0 {
		if timeout > 0 && time.Now().After(deadline) {
			return &transport.TransportError{Op: "write", Side: l.side, Err: transport.ErrTimeout}
		}

		n := len(data)
		if n > DefaultWriteChunkSize {
			n = DefaultWriteChunkSize
		}
		if err := client.WriteCharacteristic(tx, data[:n], !withResponse); err != nil {
			return &transport.TransportError{Op: "write", Side: l.side, Err: transport.NormalizeError(err)}
		}
		data = data[n:]
		if len(data) > 0 {
			time.Sleep(DefaultWriteDelay)
		}
	}
	return nil
}

// Disconnected is closed when the peripheral drops the connection.
func (l *UARTLink) Disconnected() <-chan struct{} {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	return l.disconnected
}

// RSSI returns the current signal strength as reported by the client.
func (l *UARTLink) RSSI() int {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	if !l.isConnected || l.client == nil {
		return 0
	}
	return l.client.ReadRSSI()
}

func (l *UARTLink) IsConnected() bool {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	return l.isConnected
}

// Disconnect tears down the connection. Safe to call when already down.
func (l *UARTLink) Disconnect() error {
	l.connMu.Lock()
	if l.client == nil || !l.isConnected {
		l.connMu.Unlock()
		l.logger.WithField("side", l.side).Debug("Disconnect called but already disconnected")
		return nil
	}

	client := l.client
	rx := l.rxChar
	l.client = nil
	l.txChar = nil
	l.rxChar = nil
	l.isConnected = false
	l.connMu.Unlock()

	l.closeOnce.Do(func() { close(l.disconnected) })

	if rx != nil {
		if err := transport.NormalizeError(client.Unsubscribe(rx, false)); err != nil {
			l.logger.WithFields(logrus.Fields{
				"side":  l.side,
				"error": err,
			}).Debug("Unsubscribe during disconnect failed")
		}
	}

	err := client.CancelConnection()
	if err != nil {
		l.logger.WithFields(logrus.Fields{
			"side":  l.side,
			"error": err,
		}).Warn("Earpiece disconnected with errors")
		return &transport.TransportError{Op: "disconnect", Side: l.side, Err: transport.NormalizeError(err)}
	}

	l.logger.WithField("side", l.side).Info("Earpiece transport disconnected")
	return nil
}

func findUARTChars(profile *ble.Profile, opts *transport.ConnectOptions) (tx, rx *ble.Characteristic, err error) {
	svcUUID := opts.ServiceUUID
	if svcUUID == "" {
		svcUUID = protocol.UARTServiceUUID
	}
	txUUID := opts.TxCharUUID
	if txUUID == "" {
		txUUID = protocol.UARTTxCharUUID
	}
	rxUUID := opts.RxCharUUID
	if rxUUID == "" {
		rxUUID = protocol.UARTRxCharUUID
	}

	service, err := parseUUID(svcUUID)
	if err != nil {
		return nil, nil, err
	}
	txParsed, err := parseUUID(txUUID)
	if err != nil {
		return nil, nil, err
	}
	rxParsed, err := parseUUID(rxUUID)
	if err != nil {
		return nil, nil, err
	}

	for _, svc := range profile.Services {
		if !svc.UUID.Equal(service) {
			continue
		}
		for _, char := range svc.Characteristics {
			switch {
			case char.UUID.Equal(txParsed):
				tx = char
			case char.UUID.Equal(rxParsed):
				rx = char
			}
		}
	}

	if tx == nil || rx == nil {
		return nil, nil, fmt.Errorf("UART service %q missing TX/RX characteristics", svcUUID)
	}
	return tx, rx, nil
}

func parseUUID(s string) (ble.UUID, error) {
	u, err := ble.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u, nil
}
