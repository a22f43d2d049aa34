package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/g1ctl/internal/protocol"
	"github.com/srg/g1ctl/internal/router"
	"github.com/srg/g1ctl/internal/transport"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect both earpieces and stream events",
	Long: `Connect to both earpieces (discovering them first if no addresses are
bound), keep the links alive, and print decoded state-change events until
interrupted with Ctrl+C.`,
	RunE: runConnect,
}

var connectRaw bool

func init() {
	connectCmd.Flags().BoolVar(&connectRaw, "raw", false, "Also print undecoded frames as hex")
}

func runConnect(cmd *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := g.Connect(ctx); err != nil {
		return err
	}
	defer g.Disconnect()

	green := color.New(color.FgGreen)
	green.Println("Both earpieces connected. Streaming events, Ctrl+C to stop.")

	for _, cat := range []protocol.Category{
		protocol.CategoryPhysical,
		protocol.CategoryBattery,
		protocol.CategoryDevice,
		protocol.CategoryInteraction,
		protocol.CategoryUnknown,
	} {
		g.Subscribe(cat, nil, printEvent)
	}
	if connectRaw {
		g.SubscribeRaw(func(side transport.Side, data []byte) {
			fmt.Printf("%s  %-5s raw   % x\n", time.Now().Format("15:04:05"), side, data)
		})
	}

	<-ctx.Done()
	fmt.Println()
	return nil
}

func printEvent(ev router.Event) {
	fmt.Printf("%s  %-5s %-11s 0x%02x  %s\n",
		ev.At.Format("15:04:05"), ev.Side, ev.Category, ev.Code, ev.Label)
}
