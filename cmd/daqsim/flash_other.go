//go:build !unix

package main

import (
	"errors"

	"github.com/charmbracelet/log"

	"github.com/itohio/daqcore/pkg/board"
	"github.com/itohio/daqcore/pkg/config"
	"github.com/itohio/daqcore/pkg/flash"
)

func openFlash(cfg *config.Config, _ *log.Logger) (board.Flash, func(), error) {
	if cfg.Flash.Image != "" {
		return nil, nil, errors.New("flash images need a unix host")
	}
	return flash.NewMemory(geometry(cfg)), func() {}, nil
}
