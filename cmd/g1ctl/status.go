package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/g1ctl/internal/link"
	"github.com/srg/g1ctl/internal/transport"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Connect briefly and report per-side link state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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
	connectErr := g.Connect(context.Background())
	defer g.Disconnect()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SIDE\tNAME\tADDRESS\tPAIRED\tSTATE\tRSSI\tERRORS")
	for _, side := range transport.Sides() {
		st := g.Status()[side]
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%d\t%d\n",
			side, st.Name, st.Address, st.Paired, colorState(st.State), st.RSSI, st.ErrorCount)
	}
	w.Flush()

	if connectErr != nil {
		return connectErr
	}
	fmt.Println()
	snap := g.Snapshot()
	fmt.Printf("silent mode:    %v (%s)\n", snap.SilentMode.Enabled, orDash(snap.SilentMode.Source))
	fmt.Printf("assistant mode: %v (%s)\n", snap.AssistantMode.Enabled, orDash(snap.AssistantMode.Source))
	return nil
}

func colorState(s link.State) string {
	switch s {
	case link.StateConnected:
		return color.GreenString(s.String())
	case link.StateDisconnected, link.StatePairingFailed:
		return color.RedString(s.String())
	default:
		return color.YellowString(s.String())
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
