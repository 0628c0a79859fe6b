//go:build unix

package main

import (
	"github.com/charmbracelet/log"

	"github.com/itohio/daqcore/pkg/board"
	"github.com/itohio/daqcore/pkg/config"
	"github.com/itohio/daqcore/pkg/flash"
)

// openFlash maps the configured flash image, or keeps the flash in memory
// when there is none.
func openFlash(cfg *config.Config, logger *log.Logger) (board.Flash, func(), error) {
	if cfg.Flash.Image == "" {
		return flash.NewMemory(geometry(cfg)), func() {}, nil
	}
	f, err := flash.OpenFile(cfg.Flash.Image, geometry(cfg))
	if err != nil {
		return nil, nil, err
	}
	return f, func() {
		if err := f.Sync(); err != nil {
			logger.Error("could not sync flash image", "err", err)
		}
		if err := f.Close(); err != nil {
			logger.Error("could not close flash image", "err", err)
		}
	}, nil
}
