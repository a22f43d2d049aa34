// Package protocol implements the byte-oriented notify/command protocol
// spoken by G1 smart glasses over the Nordic UART service. It covers frame
// decoding, the state-change event taxonomy, and outbound command builders.
// It is transport-agnostic: callers hand it characteristic payloads and get
// typed frames back.
package protocol

// GATT UUIDs for the UART-style service carrying the protocol.
const (
	UARTServiceUUID = "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"
	UARTTxCharUUID  = "6E400002-B5A3-F393-E0A9-E50E24DCCA9E" // host -> device writes
	UARTRxCharUUID  = "6E400003-B5A3-F393-E0A9-E50E24DCCA9E" // device -> host notifications
)

// Leading opcode bytes observed on the wire.
const (
	OpHeartbeat   byte = 0x25
	OpDashboard   byte = 0x22
	OpTextDisplay byte = 0x4E
	OpImageData   byte = 0x15
	OpImageEnd    byte = 0x20
	OpImageCRC    byte = 0x16
	OpMicStream   byte = 0xF1
	OpStateChange byte = 0xF5

	// Ack bytes follow the echoed command byte in response frames.
	AckSuccess byte = 0xC9
	AckFailure byte = 0xCA
)

// FrameKind is the coarse category selected by a notification's first byte.
type FrameKind int

const (
	KindOther FrameKind = iota
	KindStateChange
	KindHeartbeatAck
	KindDashboard
	KindCommandAck
	KindMicStream
)

func (k FrameKind) String() string {
	switch k {
	case KindStateChange:
		return "state_change"
	case KindHeartbeatAck:
		return "heartbeat_ack"
	case KindDashboard:
		return "dashboard"
	case KindCommandAck:
		return "command_ack"
	case KindMicStream:
		return "mic_stream"
	default:
		return "other"
	}
}
