package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"midi-router/config"
	"midi-router/debug"
	"midi-router/midi"
	"midi-router/router"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = listPorts(os.Args[2:])
	case "poll":
		err = pollDevices(os.Args[2:])
	case "relay":
		err = relay(os.Args[2:])
	default:
		usage()
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("MIDI port tools")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list    - List all MIDI ports")
	fmt.Println("  poll    - Poll for device changes")
	fmt.Println("  relay   - Forward one input to outputs without the UI")
	fmt.Println("            relay -in NAME [-out NAME]...")
}

// outputs collects repeated -out flags
type outputs []string

func (o *outputs) String() string {
	return strings.Join(*o, ",")
}

func (o *outputs) Set(v string) error {
	*o = append(*o, v)
	return nil
}

// setup parses args into a config and opens a stderr logger and the driver.
func setup(name string, args []string, extra func(*flag.FlagSet)) (*config.Config, *zap.Logger, *midi.RtmidiDriver, error) {
	cfg := config.Default()
	cfg.LogPath = "stderr"
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfg.RegisterFlags(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	log, err := debug.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	driver, err := midi.NewRtmidiDriver(
		midi.WithLogger(log),
		midi.WithEnumTimeout(cfg.EnumTimeout),
		midi.WithPresenceInterval(cfg.PresenceInterval),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, driver, nil
}

func listPorts(args []string) error {
	cfg, log, driver, err := setup("list", args, nil)
	if err != nil {
		return err
	}
	defer driver.Close()

	fmt.Printf("=== MIDI Ports === (waiting up to %s...)\n", cfg.EnumTimeout)
	s := midi.NewRegistry(driver, log, cfg.EnumTimeout).Snapshot()
	if s.Err != nil {
		fmt.Printf("\nEnumeration failed: %v\n", s.Err)
		fmt.Println("On macOS a hung CoreMIDI can be reset with: sudo killall coreaudiod midiserver")
		return nil
	}

	fmt.Println("Inputs:")
	for i, name := range s.Inputs {
		fmt.Printf("  %d: %s\n", i, name)
	}
	fmt.Println("\nOutputs:")
	for i, name := range s.Outputs {
		fmt.Printf("  %d: %s\n", i, name)
	}
	return nil
}

func pollDevices(args []string) error {
	cfg, log, driver, err := setup("poll", args, nil)
	if err != nil {
		return err
	}
	defer driver.Close()

	interval := cfg.WatchInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	fmt.Printf("Polling for device changes every %s. Ctrl+C to exit.\n", interval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := midi.NewRegistry(driver, log, cfg.EnumTimeout)
	for s := range reg.Watch(ctx, interval) {
		fmt.Printf("\n[%s] Device change detected!\n", time.Now().Format("15:04:05"))
		fmt.Printf("  Inputs: %v\n", s.Inputs)
		fmt.Printf("  Outputs: %v\n", s.Outputs)
		if s.Err != nil {
			fmt.Printf("  (scan error: %v)\n", s.Err)
		}
	}
	return nil
}

func relay(args []string) error {
	var input string
	var outs outputs
	cfg, log, driver, err := setup("relay", args, func(fs *flag.FlagSet) {
		fs.StringVar(&input, "in", "", "input port name")
		fs.Var(&outs, "out", "output port name (repeatable)")
	})
	if err != nil {
		return err
	}
	defer driver.Close()

	if input == "" {
		return fmt.Errorf("relay needs -in")
	}

	fwd := router.NewForwarder(driver,
		router.WithLogger(log),
		router.WithPollInterval(cfg.PollInterval),
		router.WithStopTimeout(cfg.StopTimeout),
	)
	session := router.NewSession(fwd, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lost := make(chan error, 1)
	observer := func(ev router.Event) {
		switch ev.Kind {
		case router.EventMessage:
			fmt.Printf("[%s] %s\n", ev.Time.Format("15:04:05.000"), ev.Message)
		case router.EventSendFailed:
			log.Warn("send failed", zap.Error(ev.Err))
		case router.EventInputLost:
			lost <- ev.Err
		}
	}

	route := router.Route{Input: input, Outputs: outs}
	if _, err := session.Start(route, observer); err != nil {
		return err
	}
	fmt.Printf("Forwarding %s -> %v. Ctrl+C to exit.\n", input, []string(outs))

	select {
	case <-ctx.Done():
		return session.Stop()
	case err := <-lost:
		return err
	}
}
