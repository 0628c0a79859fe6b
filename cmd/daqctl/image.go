//go:build unix

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/itohio/daqcore/pkg/config"
	"github.com/itohio/daqcore/pkg/crash"
	"github.com/itohio/daqcore/pkg/flash"
	"github.com/itohio/daqcore/pkg/otp"
	"github.com/itohio/daqcore/pkg/uptime"
)

var (
	imagePath  string
	clearCrash bool
)

var crashCmd = &cobra.Command{
	Use:   "crash",
	Short: "Show the crash record of a flash image",
	RunE:  runCrash,
}

var uptimeCmd = &cobra.Command{
	Use:   "uptime",
	Short: "Show the uptime ledger of a flash image",
	RunE:  runUptime,
}

var otpCmd = &cobra.Command{
	Use:   "otp",
	Short: "Show the OTP board identity of a flash image",
	RunE:  runOTP,
}

func init() {
	for _, c := range []*cobra.Command{crashCmd, uptimeCmd, otpCmd} {
		c.Flags().StringVarP(&imagePath, "image", "i", "", "Flash image (default from the configuration)")
		rootCmd.AddCommand(c)
	}
	crashCmd.Flags().BoolVar(&clearCrash, "clear", false, "Erase the record after showing it")
}

type image struct {
	cfg   *config.Config
	file  *flash.File
	store *flash.Store
}

func openImage() (*image, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if imagePath != "" {
		cfg.Flash.Image = imagePath
	}
	if cfg.Flash.Image == "" {
		return nil, errors.New("no flash image given")
	}
	// OpenFile would create an erased image.
	if _, err := os.Stat(cfg.Flash.Image); err != nil {
		return nil, err
	}
	f, err := flash.OpenFile(cfg.Flash.Image, flash.Geometry{
		Base:       cfg.Flash.Base,
		SectorSize: cfg.Flash.SectorSize,
		Sectors:    cfg.Flash.Sectors,
	})
	if err != nil {
		return nil, err
	}
	return &image{cfg: cfg, file: f, store: flash.NewStore(f, newLogger())}, nil
}

func (im *image) base(sector int) uint32 {
	return im.file.Geometry().SectorBase(sector)
}

func (im *image) Close() error {
	if err := im.file.Sync(); err != nil {
		im.file.Close()
		return err
	}
	return im.file.Close()
}

func runCrash(cmd *cobra.Command, args []string) error {
	im, err := openImage()
	if err != nil {
		return err
	}
	defer im.Close()

	crashes := crash.New(im.store, im.base(im.cfg.Flash.CrashSector), int(im.cfg.Flash.SectorSize))
	rec, err := crashes.Load()
	switch {
	case errors.Is(err, crash.ErrNoRecord):
		fmt.Fprintln(cmd.OutOrStdout(), "no crash record")
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rec)
	if clearCrash {
		return crashes.Clear()
	}
	return nil
}

func runUptime(cmd *cobra.Command, args []string) error {
	im, err := openImage()
	if err != nil {
		return err
	}
	defer im.Close()

	ledger, err := uptime.Inspect(im.store, im.base(im.cfg.Flash.UptimeSector), im.cfg.Uptime.Channels, newLogger())
	if err != nil {
		return err
	}
	if _, err := ledger.WriteTo(cmd.OutOrStdout()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func runOTP(cmd *cobra.Command, args []string) error {
	im, err := openImage()
	if err != nil {
		return err
	}
	defer im.Close()

	info, err := otp.New(im.file, im.cfg.Flash.OTPSector, im.base(im.cfg.Flash.OTPSector), newLogger()).Read()
	switch {
	case errors.Is(err, otp.ErrEmpty):
		fmt.Fprintln(cmd.OutOrStdout(), "OTP empty")
		return nil
	case err != nil:
		return err
	}
	if _, err := info.WriteTo(cmd.OutOrStdout()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
