package transport

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// ErrTimeout marks a connect or discovery deadline. A connect timeout is an
// error; a response-wait timeout is not (the dispatcher reports those as a
// nil result instead).
var ErrTimeout = errors.New("timeout")

// ErrConnectInProgress is returned when Connect is called for a side that
// already has an attempt running.
var ErrConnectInProgress = errors.New("connect already in progress")

// TransportError wraps a retryable write/connect/notify failure on one link.
type TransportError struct {
	Op   string // "connect", "write", "subscribe"
	Side Side
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Side, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PairingError reports a pairing handshake failure. Manual is set when the
// platform offers no programmatic pairing and the user must pair through the
// OS Bluetooth settings.
type PairingError struct {
	Side   Side
	Manual bool
	Err    error
}

func (e *PairingError) Error() string {
	if e.Manual {
		return fmt.Sprintf("%s pairing: %v (pair manually in the OS Bluetooth settings)", e.Side, e.Err)
	}
	return fmt.Sprintf("%s pairing: %v", e.Side, e.Err)
}

func (e *PairingError) Unwrap() error { return e.Err }

// NormalizeError maps known go-ble error strings to structured ConnectionError types.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case strings.Contains(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case strings.Contains(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
