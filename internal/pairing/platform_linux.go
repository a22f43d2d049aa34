//go:build linux

package pairing

import "github.com/sirupsen/logrus"

// NewPlatformPairer selects the pairing strategy for this OS. On Linux it
// prefers explicit BlueZ pairing and falls back to the manual strategy when
// BlueZ is unreachable.
func NewPlatformPairer(logger *logrus.Logger) Pairer {
	p, err := NewBlueZPairer(logger)
	if err != nil {
		if logger != nil {
			logger.WithError(err).Warn("BlueZ unavailable, falling back to manual pairing")
		}
		return NewManualPairer(logger)
	}
	return p
}
