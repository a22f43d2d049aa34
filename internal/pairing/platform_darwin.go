//go:build darwin

package pairing

import "github.com/sirupsen/logrus"

// NewPlatformPairer selects the pairing strategy for this OS. macOS manages
// bonds itself, so only the manual strategy applies.
func NewPlatformPairer(logger *logrus.Logger) Pairer {
	return NewManualPairer(logger)
}
