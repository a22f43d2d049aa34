package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// silentCmd represents the silent command
var silentCmd = &cobra.Command{
	Use:       "silent (on|off)",
	Short:     "Toggle silent mode",
	Long:      `Connect and toggle silent mode. The command goes to the right earpiece, which relays it to its peer.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE:      runSilent,
}

func runSilent(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	enabled := args[0] == "on"

	g := newGlasses(cfg, logger)
	ctx := context.Background()
	if err := g.Connect(ctx); err != nil {
		return err
	}
	defer g.Disconnect()

	resp, err := g.SetSilentMode(ctx, enabled)
	if err != nil {
		return fmt.Errorf("silent mode command failed: %w", err)
	}
	if !resp.Received {
		fmt.Println("Command sent; the glasses did not acknowledge in time.")
		return nil
	}
	fmt.Printf("Silent mode %s.\n", args[0])
	return nil
}
