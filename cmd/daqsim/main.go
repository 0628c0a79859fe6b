// Command daqsim runs a simulated data-acquisition board. The board speaks
// its control protocol on stdio or on a pseudo-terminal, samples a synthetic
// ADC and keeps its OTP, uptime ledger and crash record in a flash image.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/itohio/daqcore/pkg/acq"
	"github.com/itohio/daqcore/pkg/board"
	"github.com/itohio/daqcore/pkg/config"
	"github.com/itohio/daqcore/pkg/crash"
	"github.com/itohio/daqcore/pkg/flash"
	"github.com/itohio/daqcore/pkg/transport"
)

var (
	configFile  string
	imageFile   string
	usePTY      bool
	bootMessage string
	width       int
	seed        uint64
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "daqsim",
	Short: "Simulated data-acquisition board",
	Long: `daqsim runs the board firmware core against a synthetic ADC.

The control protocol is spoken on stdin/stdout, or with --pty on a
pseudo-terminal whose name is printed at start, so host tools can open it
like a USB serial port. With --image the flash (OTP, uptime ledger and crash
record) persists across runs.`,
	SilenceUsage: true,
	RunE:         runSim,
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "daqsim.yaml", "Configuration file")
	rootCmd.Flags().StringVarP(&imageFile, "image", "i", "", "Flash image file (overrides the configuration)")
	rootCmd.Flags().BoolVar(&usePTY, "pty", false, "Serve the protocol on a pseudo-terminal")
	rootCmd.Flags().StringVar(&bootMessage, "boot", "Power on reset", "Reset cause reported at boot")
	rootCmd.Flags().IntVar(&width, "width", 16, "ADC sample width in bits (16 or 32)")
	rootCmd.Flags().Uint64Var(&seed, "seed", 1, "Noise seed")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (overrides the configuration)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSim(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if imageFile != "" {
		cfg.Flash.Image = imageFile
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "daqsim",
		Level:           level,
	})

	mem, closeFlash, err := openFlash(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFlash()

	var in io.Reader = os.Stdin
	var out io.Writer = os.Stdout
	if usePTY {
		ptmx, pts, err := pty.Open()
		if err != nil {
			return fmt.Errorf("could not open pseudo-terminal: %w", err)
		}
		defer ptmx.Close()
		defer pts.Close()
		fmt.Fprintln(os.Stderr, pts.Name())
		in, out = ptmx, ptmx
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch width {
	case 16:
		return run[int16](ctx, cfg, mem, in, out, logger)
	case 32:
		return run[int32](ctx, cfg, mem, in, out, logger)
	default:
		return fmt.Errorf("unsupported sample width %d", width)
	}
}

func run[T acq.Sample](ctx context.Context, cfg *config.Config, mem board.Flash, in io.Reader, out io.Writer, logger *log.Logger) error {
	ep := board.NewStreamEndpoint(out)
	clock := board.Millis(time.Now())
	b, err := board.New[T](board.Options{
		Config:      cfg,
		Flash:       mem,
		Endpoint:    ep,
		Clock:       clock,
		BootMessage: bootMessage,
		Hooks: board.Hooks{
			DFU: func() { logger.Warn("bootloader requested, ignoring") },
			AllOn: func(on bool, dur int) {
				logger.Info("all ports", "on", on, "duration", dur)
			},
			PortState: func(n int, on bool, pct, dur int) {
				logger.Info("port", "n", n, "on", on, "percent", pct, "duration", dur)
			},
			CalibrationRW: func(write bool) {
				logger.Info("calibration", "write", write)
			},
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if rec, ok := b.LastCrash(); ok {
		logger.Warn("crash record present", "record", rec)
	}

	sim := board.NewSimulator[T](cfg, seed)
	if err := b.Start(sim); err != nil {
		return err
	}
	b.Port().SetLine(true)

	g, ctx := errgroup.WithContext(ctx)

	// Reads from stdin cannot be interrupted, so the pump is not waited for.
	go func() {
		if err := board.Pump(ctx, in, b.Port()); err != nil {
			logger.Warn("input closed", "err", err)
		}
	}()
	g.Go(func() error {
		return sim.Run(ctx)
	})
	g.Go(func() error {
		return ep.Run(ctx, b.Port().TxComplete)
	})
	g.Go(func() error {
		return mainLoop(ctx, b, clock, logger)
	})

	logger.Info("board running",
		"channels", cfg.Acquisition.Channels,
		"samples", cfg.Acquisition.Samples,
		"rate", cfg.Acquisition.SampleRate,
		"width", width)
	return g.Wait()
}

// mainLoop is the foreground of the board. A panic is stored as a crash
// record, the way the hard fault handler does on the target.
func mainLoop[T acq.Sample](ctx context.Context, b *board.Board[T], clock transport.Clock, logger *log.Logger) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		pc, _, _, _ := runtime.Caller(2)
		if ferr := b.RecordFault(crash.Record{PC: uint32(pc)}); ferr != nil {
			logger.Error("could not store crash record", "err", ferr)
		}
		err = fmt.Errorf("board fault: %v", r)
	}()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Step(clock())
		}
	}
}

func geometry(cfg *config.Config) flash.Geometry {
	return flash.Geometry{
		Base:       cfg.Flash.Base,
		SectorSize: cfg.Flash.SectorSize,
		Sectors:    cfg.Flash.Sectors,
	}
}
