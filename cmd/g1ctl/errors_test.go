package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/g1ctl/internal/transport"
)

func TestFormatUserError(t *testing.T) {
	plain := errors.New("something broke")
	assert.Equal(t, "something broke", FormatUserError(plain))

	pairing := &transport.PairingError{
		Side:   transport.Left,
		Manual: true,
		Err:    errors.New("no programmatic pairing"),
	}
	assert.Contains(t, FormatUserError(pairing), "OS Bluetooth settings")

	write := &transport.TransportError{
		Op:   "write",
		Side: transport.Right,
		Err:  errors.New("gatt failure"),
	}
	assert.Contains(t, FormatUserError(write), "right write")
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
}
