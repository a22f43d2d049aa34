package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/g1ctl/internal/glasses"
	"github.com/srg/g1ctl/internal/transport"
	"github.com/srg/g1ctl/internal/transport/goble"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for the two earpieces",
	Long: `Scan for the left and right earpieces by their advertised names and
bind their addresses into the config file, so later connects skip discovery.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanNoSave   bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 15*time.Second, "Scan duration")
	scanCmd.Flags().BoolVar(&scanNoSave, "no-save", false, "Do not persist discovered addresses")
}

func runScan(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	d := glasses.NewDiscovery(goble.NewScanner(logger), cfg.LeftNamePattern, cfg.RightNamePattern, scanDuration, logger)
	found, err := d.Find(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SIDE\tNAME\tADDRESS\tRSSI")
	for _, side := range transport.Sides() {
		adv := found[side]
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", side, adv.Name, adv.Address, adv.RSSI)
	}
	w.Flush()

	if scanNoSave {
		return nil
	}
	cfg.Left.Address = found[transport.Left].Address
	cfg.Left.Name = found[transport.Left].Name
	cfg.Right.Address = found[transport.Right].Address
	cfg.Right.Name = found[transport.Right].Name
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("persist addresses: %w", err)
	}
	fmt.Println("Addresses saved; `g1ctl connect` will use them directly.")
	return nil
}
