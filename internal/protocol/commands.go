package protocol

import (
	"encoding/binary"
	"hash/crc32"
)

// Screen status packs a 4-bit action nibble (low) and a 4-bit mode nibble
// (high) into one byte of the text-display header.
const (
	ScreenNewContent byte = 0x01 // action nibble

	ScreenModeEvenAI     byte = 0x30
	ScreenModeAIComplete byte = 0x40
	ScreenModeManual     byte = 0x50
	ScreenModeError      byte = 0x60
)

// PackScreenStatus combines an action nibble with a mode nibble.
func PackScreenStatus(action, mode byte) byte {
	return mode&0xF0 | action&0x0F
}

// UnpackScreenStatus splits a screen status byte back into action and mode.
func UnpackScreenStatus(status byte) (action, mode byte) {
	return status & 0x0F, status & 0xF0
}

// Heartbeat builds the keep-alive command for the given sequence number.
// The device echoes a frame with the same leading byte as the ack.
func Heartbeat(seq byte) []byte {
	return []byte{OpHeartbeat, 0x06, 0x00, seq, 0x04, seq}
}

// SilentMode builds the silent-mode toggle command. The device answers with
// a command ack (0x22 followed by 0xC9 on success).
func SilentMode(enabled bool) []byte {
	if enabled {
		return []byte{OpDashboard, 0x01}
	}
	return []byte{OpDashboard, 0x00}
}

// TextPacket builds one text-display packet. The payload must already be
// chunked to fit the link MTU; pagination is the caller's concern.
// pos is the byte offset of this chunk within the whole text.
func TextPacket(seq, totalPackets, curPacket, screenStatus byte, pos uint16, curPage, maxPage byte, payload []byte) []byte {
	pkt := make([]byte, 0, 9+len(payload))
	pkt = append(pkt,
		OpTextDisplay,
		seq,
		totalPackets,
		curPacket,
		screenStatus,
		byte(pos>>8),
		byte(pos),
		curPage,
		maxPage,
	)
	return append(pkt, payload...)
}

// ImagePacket builds one image-transfer data packet. The first packet of a
// transfer carries the 4-byte storage address immediately after the sequence
// byte; subsequent packets carry only data.
func ImagePacket(seq byte, first bool, address uint32, chunk []byte) []byte {
	pkt := make([]byte, 0, 6+len(chunk))
	pkt = append(pkt, OpImageData, seq)
	if first {
		var addr [4]byte
		binary.BigEndian.PutUint32(addr[:], address)
		pkt = append(pkt, addr[:]...)
	}
	return append(pkt, chunk...)
}

// ImageEnd builds the end-of-transfer marker.
func ImageEnd() []byte {
	return []byte{OpImageEnd, 0x0D, 0x0E}
}

// ImageCRC builds the integrity check frame: CRC32 over the storage address
// concatenated with the full image data.
func ImageCRC(address uint32, data []byte) []byte {
	buf := make([]byte, 4, 4+len(data))
	binary.BigEndian.PutUint32(buf, address)
	buf = append(buf, data...)

	sum := crc32.ChecksumIEEE(buf)
	pkt := make([]byte, 5)
	pkt[0] = OpImageCRC
	binary.BigEndian.PutUint32(pkt[1:], sum)
	return pkt
}
