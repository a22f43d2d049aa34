// Package transport defines the platform-neutral BLE abstractions the rest
// of the driver is built on: one Link per earpiece side, a Scanner for
// discovery, and the shared error taxonomy. The go-ble backed implementation
// lives in the goble subpackage; tests substitute fakes.
package transport

import (
	"context"
	"time"
)

// Side identifies one earpiece of the pair.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Sides lists both sides in the order connects are attempted.
func Sides() []Side {
	return []Side{Left, Right}
}

// ConnectOptions configures a link connection attempt.
type ConnectOptions struct {
	Address        string
	ConnectTimeout time.Duration

	// UART service and characteristic UUIDs. Zero values select the G1
	// defaults from the protocol package.
	ServiceUUID string
	TxCharUUID  string
	RxCharUUID  string
}

// Link is one side's live connection to its earpiece. Implementations must
// serialize writes internally; ordering across two links is not guaranteed.
type Link interface {
	// Connect dials the peripheral and discovers the UART service. It does
	// not start notifications; call Subscribe before treating the link as up
	// so no frame between transport-connect and subscription is lost.
	Connect(ctx context.Context, opts *ConnectOptions) error

	// Subscribe starts notifications on the RX characteristic. The handler
	// runs on the BLE stack's callback path and must not block.
	Subscribe(handler func(data []byte)) error

	// Write sends one frame to the TX characteristic, chunked to the link
	// MTU. withResponse requests a link-layer write acknowledgement.
	Write(data []byte, withResponse bool, timeout time.Duration) error

	// Disconnected is closed when the peripheral drops the connection.
	Disconnected() <-chan struct{}

	// RSSI returns the last observed signal strength, 0 if unknown.
	RSSI() int

	IsConnected() bool

	// Disconnect tears the link down. Calling it on an already-down link is
	// a no-op.
	Disconnect() error
}

// LinkFactory creates a fresh Link for a connection attempt. Injected so
// tests can substitute fakes for the go-ble implementation.
type LinkFactory func(side Side) (Link, error)

// Advertisement is the subset of a BLE advertisement discovery cares about.
type Advertisement struct {
	Name    string
	Address string
	RSSI    int
}

// Scanner discovers nearby peripherals.
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}
