package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"midi-router/config"
	"midi-router/debug"
	"midi-router/midi"
	"midi-router/router"
	"midi-router/theme"
	"midi-router/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := debug.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer log.Sync()

	// Load theme
	palette := theme.DefaultPalette()
	if cfg.Palette != "" {
		if palette, err = theme.LoadGPL(cfg.Palette); err != nil {
			return err
		}
	}
	th := theme.New(palette)

	driver, err := midi.NewRtmidiDriver(
		midi.WithLogger(log),
		midi.WithEnumTimeout(cfg.EnumTimeout),
		midi.WithPresenceInterval(cfg.PresenceInterval),
	)
	if err != nil {
		return fmt.Errorf("midi driver: %w", err)
	}
	defer driver.Close()

	registry := midi.NewRegistry(driver, log.Named("registry"), cfg.EnumTimeout)
	fwd := router.NewForwarder(driver,
		router.WithLogger(log.Named("forwarder")),
		router.WithPollInterval(cfg.PollInterval),
		router.WithStopTimeout(cfg.StopTimeout),
	)
	session := router.NewSession(fwd, log)
	defer func() {
		if err := session.Stop(); err != nil {
			log.Error("stop on exit", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot-plug updates for the port lists
	var devices <-chan midi.Snapshot
	if cfg.WatchInterval > 0 {
		devices = registry.Watch(ctx, cfg.WatchInterval)
	}

	log.Info("starting", zap.String("log", cfg.LogPath), zap.Duration("poll", cfg.PollInterval))

	m := tui.NewModel(registry, session, tui.NewBridge(cfg.EventBuffer), devices, th, log.Named("tui"))
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
