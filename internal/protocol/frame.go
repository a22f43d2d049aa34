package protocol

import "fmt"

// ProtocolError marks an unparseable or unexpected inbound frame. It is
// logged and skipped, never fatal: one bad frame must not halt decoding of
// the ones behind it.
//
//nolint:revive // protocol.ProtocolError reads fine at call sites as a typed error
type ProtocolError struct {
	Reason string
	Raw    []byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s (% x)", e.Reason, e.Raw)
}

// Frame is one decoded device->host notification.
type Frame struct {
	Kind FrameKind
	Raw  []byte

	// Code is the state-change code (second byte), valid for KindStateChange.
	Code byte

	// Command is the echoed command byte of an ack; AckOK reports whether the
	// device acknowledged success (0xC9) or failure (0xCA). Valid for
	// KindCommandAck.
	Command byte
	AckOK   bool
}

// DecodeFrame classifies one characteristic payload by its leading byte.
// Frames whose second byte is an ack marker are command responses regardless
// of the leading byte, since the device echoes the original command byte
// first.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, &ProtocolError{Reason: "empty frame"}
	}

	f := Frame{Raw: data}

	switch data[0] {
	case OpStateChange:
		if len(data) < 2 {
			return Frame{}, &ProtocolError{Reason: "truncated state-change frame", Raw: data}
		}
		f.Kind = KindStateChange
		f.Code = data[1]
		return f, nil
	case OpHeartbeat:
		f.Kind = KindHeartbeatAck
		return f, nil
	case OpDashboard:
		f.Kind = KindDashboard
		return f, nil
	case OpMicStream:
		f.Kind = KindMicStream
		return f, nil
	}

	if len(data) >= 2 && (data[1] == AckSuccess || data[1] == AckFailure) {
		f.Kind = KindCommandAck
		f.Command = data[0]
		f.AckOK = data[1] == AckSuccess
		return f, nil
	}

	f.Kind = KindOther
	return f, nil
}
