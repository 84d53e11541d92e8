package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovetools/cellkernel/cli"
	"github.com/grovetools/cellkernel/internal/daemon/protocol"
	"github.com/grovetools/cellkernel/pkg/daemon"
	"github.com/spf13/cobra"
)

// NewWatchCmd returns the command that prints live kernel events.
func NewWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print live kernel events",
		Long: `Print live kernel events until interrupted.

The first event carries the kernel's full state. With --json every event is
printed as one JSON line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := daemon.Connect(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			events, err := client.Watch(ctx)
			if err != nil {
				return err
			}

			jsonOutput := cli.GetOptions(cmd).JSONOutput
			enc := json.NewEncoder(cmd.OutOrStdout())
			for ev := range events {
				if jsonOutput {
					if err := enc.Encode(ev); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatEvent(ev, time.Now()))
			}
			return nil
		},
	}
}

// formatEvent renders one event as a single log-style line.
func formatEvent(ev protocol.Event, now time.Time) string {
	line := fmt.Sprintf("%s %-14s", now.Format("15:04:05"), ev.Type)
	switch {
	case ev.State != nil:
		line += fmt.Sprintf(" phase=%s cells=%d runs=%d", ev.State.Phase, ev.State.CellCount, ev.State.Runs)
	case ev.Phase != "":
		line += " phase=" + string(ev.Phase)
	case ev.CellCount != nil:
		line += fmt.Sprintf(" cells=%d", *ev.CellCount)
	case ev.Outcome != nil:
		line += fmt.Sprintf(" fragment=%d kind=%s exit=%d", ev.Outcome.Fragment, ev.Outcome.Kind, ev.Outcome.ExitCode)
	case ev.Session != nil:
		line += " notebook=" + ev.Session.Filename
	case ev.ConfigFile != "":
		line += " file=" + ev.ConfigFile
	}
	return line
}
