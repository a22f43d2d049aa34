package protocol_test

import (
	"testing"

	"github.com/srg/g1ctl/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	t.Run("state change", func(t *testing.T) {
		f, err := protocol.DecodeFrame([]byte{0xF5, 0x06})
		require.NoError(t, err)
		assert.Equal(t, protocol.KindStateChange, f.Kind)
		assert.Equal(t, byte(0x06), f.Code)
	})

	t.Run("heartbeat ack", func(t *testing.T) {
		f, err := protocol.DecodeFrame([]byte{0x25, 0x06, 0x00, 0x01, 0x04, 0x01})
		require.NoError(t, err)
		assert.Equal(t, protocol.KindHeartbeatAck, f.Kind)
	})

	t.Run("dashboard frame", func(t *testing.T) {
		f, err := protocol.DecodeFrame([]byte{0x22, 0x01})
		require.NoError(t, err)
		assert.Equal(t, protocol.KindDashboard, f.Kind)
	})

	t.Run("mic stream", func(t *testing.T) {
		f, err := protocol.DecodeFrame([]byte{0xF1, 0xAA, 0xBB})
		require.NoError(t, err)
		assert.Equal(t, protocol.KindMicStream, f.Kind)
	})

	t.Run("command ack success", func(t *testing.T) {
		f, err := protocol.DecodeFrame([]byte{0x4E, 0xC9})
		require.NoError(t, err)
		assert.Equal(t, protocol.KindCommandAck, f.Kind)
		assert.Equal(t, byte(0x4E), f.Command)
		assert.True(t, f.AckOK)
	})

	t.Run("command ack failure", func(t *testing.T) {
		f, err := protocol.DecodeFrame([]byte{0x4E, 0xCA})
		require.NoError(t, err)
		assert.Equal(t, protocol.KindCommandAck, f.Kind)
		assert.False(t, f.AckOK)
	})

	t.Run("unclassified frame is delivered as other", func(t *testing.T) {
		f, err := protocol.DecodeFrame([]byte{0x99, 0x01, 0x02})
		require.NoError(t, err)
		assert.Equal(t, protocol.KindOther, f.Kind)
	})

	t.Run("empty frame is a protocol error", func(t *testing.T) {
		_, err := protocol.DecodeFrame(nil)
		var perr *protocol.ProtocolError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("truncated state change is a protocol error", func(t *testing.T) {
		_, err := protocol.DecodeFrame([]byte{0xF5})
		var perr *protocol.ProtocolError
		require.ErrorAs(t, err, &perr)
	})
}

func TestClassify(t *testing.T) {
	t.Run("wearing is physical", func(t *testing.T) {
		cat, info, recognized := protocol.Classify(0x06)
		assert.Equal(t, protocol.CategoryPhysical, cat)
		assert.Equal(t, "Wearing", info.Label)
		assert.True(t, recognized)
	})

	t.Run("0x09 resolves to battery, not device", func(t *testing.T) {
		// 0x09 exists in both the battery and device tables; the fixed
		// priority order makes battery win deterministically.
		cat, info, recognized := protocol.Classify(0x09)
		assert.Equal(t, protocol.CategoryBattery, cat)
		assert.Equal(t, "BATTERY_CHARGED", info.Name)
		assert.True(t, recognized)
	})

	t.Run("device-only code resolves to device", func(t *testing.T) {
		cat, info, _ := protocol.Classify(0x11)
		assert.Equal(t, protocol.CategoryDevice, cat)
		assert.Equal(t, "CONNECTED", info.Name)
	})

	t.Run("interactions", func(t *testing.T) {
		cat, info, _ := protocol.Classify(0x17)
		assert.Equal(t, protocol.CategoryInteraction, cat)
		assert.Equal(t, "LONG_PRESS", info.Name)
	})

	t.Run("named unknown code is recognized", func(t *testing.T) {
		cat, info, recognized := protocol.Classify(0x0b)
		assert.Equal(t, protocol.CategoryUnknown, cat)
		assert.Equal(t, "UNKNOWN_0B", info.Name)
		assert.True(t, recognized)
	})

	t.Run("unrecognized code still classifies", func(t *testing.T) {
		cat, info, recognized := protocol.Classify(0xFE)
		assert.Equal(t, protocol.CategoryUnknown, cat)
		assert.Equal(t, "UNRECOGNIZED", info.Name)
		assert.Contains(t, info.Label, "0xfe")
		assert.False(t, recognized)
	})
}
