package protocol_test

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/srg/g1ctl/internal/protocol"
	"github.com/stretchr/testify/assert"
)

func TestHeartbeat(t *testing.T) {
	assert.Equal(t, []byte{0x25, 0x06, 0x00, 0x2A, 0x04, 0x2A}, protocol.Heartbeat(0x2A))
}

func TestSilentMode(t *testing.T) {
	assert.Equal(t, []byte{0x22, 0x01}, protocol.SilentMode(true))
	assert.Equal(t, []byte{0x22, 0x00}, protocol.SilentMode(false))
}

func TestPackScreenStatus(t *testing.T) {
	status := protocol.PackScreenStatus(protocol.ScreenNewContent, protocol.ScreenModeEvenAI)
	assert.Equal(t, byte(0x31), status)

	action, mode := protocol.UnpackScreenStatus(status)
	assert.Equal(t, protocol.ScreenNewContent, action)
	assert.Equal(t, protocol.ScreenModeEvenAI, mode)
}

func TestTextPacket(t *testing.T) {
	payload := []byte("hello")
	pkt := protocol.TextPacket(3, 2, 1, 0x31, 0x0102, 0, 1, payload)

	assert.Equal(t, []byte{0x4E, 3, 2, 1, 0x31, 0x01, 0x02, 0, 1}, pkt[:9])
	assert.Equal(t, payload, pkt[9:])
}

func TestImageTransfer(t *testing.T) {
	t.Run("first packet carries storage address", func(t *testing.T) {
		pkt := protocol.ImagePacket(0, true, 0x001C0000, []byte{0xAA, 0xBB})
		assert.Equal(t, []byte{0x15, 0x00, 0x00, 0x1C, 0x00, 0x00, 0xAA, 0xBB}, pkt)
	})

	t.Run("subsequent packets carry only data", func(t *testing.T) {
		pkt := protocol.ImagePacket(1, false, 0x001C0000, []byte{0xCC})
		assert.Equal(t, []byte{0x15, 0x01, 0xCC}, pkt)
	})

	t.Run("end marker", func(t *testing.T) {
		assert.Equal(t, []byte{0x20, 0x0D, 0x0E}, protocol.ImageEnd())
	})

	t.Run("crc covers address and data", func(t *testing.T) {
		data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
		pkt := protocol.ImageCRC(0x001C0000, data)

		expected := crc32.ChecksumIEEE(append([]byte{0x00, 0x1C, 0x00, 0x00}, data...))
		assert.Equal(t, byte(0x16), pkt[0])
		assert.Equal(t, expected, binary.BigEndian.Uint32(pkt[1:]))
	})
}
