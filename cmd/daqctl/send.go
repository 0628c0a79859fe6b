package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/itohio/daqcore/pkg/transport"
)

var sendTimeout time.Duration

var sendCmd = &cobra.Command{
	Use:   "send COMMAND...",
	Short: "Send one command line and print the answer",
	Long: `Send joins its arguments into one command line, e.g.

  daqctl send Status
  daqctl send OTP w 2 1 0 1.2 20240115
  daqctl send uptime r 3

and prints the lines the board answers until it stays silent for --timeout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().DurationVarP(&sendTimeout, "timeout", "t", 500*time.Millisecond, "Silence that ends the answer")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	link, err := connect()
	if err != nil {
		return err
	}
	defer link.Close()

	if err := link.Send(strings.Join(args, " ")); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-link.Lines():
			if !ok {
				return nil
			}
			fmt.Fprintln(out, line)
			timer.Reset(sendTimeout)
		case <-timer.C:
			return nil
		}
	}
}

func connect() (*transport.Link, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	link := transport.NewLink(cfg.Serial.Port, cfg.Serial.Baud, 0, newLogger())
	if err := link.Connect(); err != nil {
		return nil, err
	}
	return link, nil
}
