// Package pairing verifies and establishes OS-level bonds with the two
// earpieces. Platforms differ fundamentally here: BlueZ exposes explicit
// programmatic pairing over D-Bus, while macOS manages bonds itself and
// offers no API. Both are modeled behind the Pairer capability interface,
// selected once at startup.
package pairing

import (
	"context"

	"github.com/srg/g1ctl/internal/transport"
)

// Pairer establishes an OS-level bond with one earpiece. Implementations
// that cannot pair programmatically return a *transport.PairingError with
// Manual set, instructing the user to pair through the OS settings.
type Pairer interface {
	Pair(ctx context.Context, side transport.Side, address string) error
}
