package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// unpairCmd represents the unpair command
var unpairCmd = &cobra.Command{
	Use:   "unpair",
	Short: "Forget bound addresses and paired flags",
	Long: `Clear the persisted per-side addresses, names, and paired flags. The
next connect performs a fresh discovery scan. OS-level bonds are not removed;
delete those from the system Bluetooth settings if needed.`,
	RunE: runUnpair,
}

func runUnpair(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	g := newGlasses(cfg, logger)
	if err := g.Unpair(); err != nil {
		return err
	}
	fmt.Println("Binding cleared; the next connect will rescan.")
	return nil
}
