package main

import (
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"bazil.org/ziprofs/internal/config"
	"bazil.org/ziprofs/internal/fusefs"
	"bazil.org/ziprofs/internal/logging"
	"bazil.org/ziprofs/internal/zipfs"
	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// daemonEnv marks the detached child so it does not detach again.
const daemonEnv = "ZIPROFS_DETACHED"

var (
	cli     config.Cli
	version = "dev"
	meta    = config.Meta{
		ID:   "ziprofs",
		Name: "ZipROFS",
		Desc: "Read-only transparent zip filesystem",
	}
)

func main() {
	meta.Version = version

	_ = kong.Parse(&cli,
		kong.Name(meta.ID),
		kong.Description(meta.Desc),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	logging.Configure(cli)

	if !cli.Foreground && os.Getenv(daemonEnv) == "" {
		if err := detach(); err != nil {
			log.Fatal().Err(err).Msg("cannot detach")
		}
		return
	}

	if err := mount(cli); err != nil {
		log.Fatal().Stack().Err(err).Send()
	}
}

// detach starts a copy of this process in a new session and leaves it
// running.
func detach() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "cannot start background process")
	}
	log.Debug().Int("pid", cmd.Process.Pid).Msg("detached")
	return cmd.Process.Release()
}

func mountOptions(cli config.Cli) []fuse.MountOption {
	options := []fuse.MountOption{
		fuse.FSName(meta.ID),
		fuse.Subtype(meta.ID),
		fuse.ReadOnly(),
	}
	if cli.AllowOther {
		options = append(options, fuse.AllowOther())
	}
	if cli.Async {
		options = append(options, fuse.AsyncRead())
	}
	return options
}

func mount(cli config.Cli) error {
	core, err := zipfs.New(cli.Root, zipfs.Config{
		CacheSize:  cli.CacheSize,
		NoZipCheck: cli.NoZipCheck,
		Rewind:     cli.Rewind,
		Logger:     log.Logger.With().Str("component", "zipfs").Logger(),
	})
	if err != nil {
		return err
	}
	defer core.Close()

	c, err := fuse.Mount(cli.Mountpoint, mountOptions(cli)...)
	if err != nil {
		return errors.Wrapf(err, "cannot mount %s", cli.Mountpoint)
	}
	defer c.Close()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Warn().Msgf("caught signal %v, unmounting", sig)
		if err := fuse.Unmount(cli.Mountpoint); err != nil {
			log.Error().Err(err).Msg("cannot unmount")
		}
	}()

	log.Info().Str("root", core.Root()).Str("mountpoint", cli.Mountpoint).Msg("serving")
	if err := fs.Serve(c, fusefs.New(core)); err != nil {
		return err
	}

	// check if the mount process has an error to report
	<-c.Ready
	if err := c.MountError; err != nil {
		return err
	}

	stats := core.Stats()
	log.Debug().
		Int64("hits", stats.Hits).
		Int64("misses", stats.Misses).
		Int64("evictions", stats.Evictions).
		Int64("invalidations", stats.Invalidations).
		Msg("archive cache")
	return nil
}
