package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

var (
	monitorLog      int
	monitorInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print board output until interrupted",
	Long: `Monitor prints every line the board sends. With --log it first asks the
board to stream a channel, and with --interval it polls the status block.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().IntVarP(&monitorLog, "log", "l", -1, "Channel to stream (-1 for none)")
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 0, "Status poll interval (0 to disable)")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	link, err := connect()
	if err != nil {
		return err
	}
	defer link.Close()

	if monitorLog >= 0 {
		if err := link.Send(fmt.Sprintf("LOG p%d", monitorLog)); err != nil {
			return err
		}
	}

	var poll <-chan time.Time
	if monitorInterval > 0 {
		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	out := cmd.OutOrStdout()
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to exit")
	for {
		select {
		case line, ok := <-link.Lines():
			if !ok {
				return nil
			}
			fmt.Fprintln(out, line)
		case <-poll:
			if err := link.Send("Status"); err != nil {
				return err
			}
		case <-stop:
			return nil
		}
	}
}
