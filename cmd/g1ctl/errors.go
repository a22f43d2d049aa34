package main

import (
	"errors"

	"github.com/srg/g1ctl/internal/transport"
)

// FormatUserError turns internal error chains into a message suitable for
// the terminal, surfacing the manual-pairing hint when that is the fix.
func FormatUserError(err error) string {
	var perr *transport.PairingError
	if errors.As(err, &perr) {
		return perr.Error()
	}

	var terr *transport.TransportError
	if errors.As(err, &terr) {
		return terr.Error()
	}

	return err.Error()
}
