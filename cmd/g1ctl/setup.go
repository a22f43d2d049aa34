package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/g1ctl/internal/glasses"
	"github.com/srg/g1ctl/internal/pairing"
	"github.com/srg/g1ctl/internal/transport/goble"
	"github.com/srg/g1ctl/pkg/config"
)

// loadConfig reads the config file selected by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newGlasses wires the facade over the real BLE transport and the platform
// pairing strategy.
func newGlasses(cfg *config.Config, logger *logrus.Logger) *glasses.Glasses {
	return glasses.New(
		cfg,
		goble.NewLinkFactory(logger),
		goble.NewScanner(logger),
		pairing.NewPlatformPairer(logger),
		logger,
	)
}
