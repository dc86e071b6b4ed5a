//go:build debug
// +build debug

// To get FUSE debug log activated regardless of flags, build with
// `go build -tags debug`.

package main

import (
	"bazil.org/fuse"
	"github.com/rs/zerolog/log"
)

func init() {
	fuse.Debug = func(msg interface{}) {
		log.Info().Str("component", "fuse").Msgf("%v", msg)
	}
}
