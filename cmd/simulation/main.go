package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/sync/errgroup"

	"simmer-sim/internal/config"
	"simmer-sim/internal/observability/log"
	"simmer-sim/internal/record"
	"simmer-sim/internal/simulation"
	"simmer-sim/internal/transport"
	"simmer-sim/internal/visualization"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "simulation: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a YAML configuration file (built-in defaults when empty)")
		headless   = flag.Bool("headless", false, "run without opening a window")
		serialPort = flag.String("serial", "", "serial port to accept commands on, overrides network.serial_port")
		recordPath = flag.String("record", "", "SQLite file to record the run to, overrides recording.path")
		logLevel   = flag.String("log-level", "", "debug, info, warn or error, overrides log.level")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *serialPort != "" {
		cfg.Network.SerialPort = *serialPort
	}
	if *recordPath != "" {
		cfg.Recording.Path = *recordPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	base := log.New(level)
	defer base.Sync()
	var logger log.Log = base

	sim, err := simulation.NewFromConfig(cfg, nil)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	digest := record.NewDigest()
	recorders := record.Multi{digest}
	if cfg.Recording.Path != "" {
		store, err := record.OpenSQLite(cfg.Recording.Path, cfg.Simulation.Seed, cfg.Simulation.RandError)
		if err != nil {
			return err
		}
		defer store.Close()
		runID = store.RunID()
		recorders = append(recorders, store)
	}
	logger = logger.With(log.String("run", runID))
	logger.Info("Simulation ready",
		log.String("pose", sim.Pose().String()),
		log.Bool("rand_error", cfg.Simulation.RandError),
		log.Int64("seed", int64(cfg.Simulation.Seed)),
		log.Float64("frame_rate", cfg.Simulation.FrameRate),
	)

	engine := simulation.NewEngine(sim, cfg.Simulation.Tick(), logger, simulation.WithRecorder(recorders))

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return transport.NewTCPLink(cfg.Network, engine, logger).Serve(ctx) })
	if cfg.Network.SnapshotAddr != "" {
		snapshots := transport.NewSnapshotServer(engine, cfg.Simulation.Tick(), logger)
		g.Go(func() error { return snapshots.ListenAndServe(ctx, cfg.Network.SnapshotAddr) })
	}
	if cfg.Network.SerialPort != "" {
		port, err := transport.OpenSerial(cfg.Network.SerialPort, cfg.Network.SerialBaud)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		link := transport.NewSerialLink(port, engine, logger)
		g.Go(func() error { return link.Serve(ctx) })
	}

	if !*headless {
		renderer := visualization.NewRenderer(sim, engine, cfg.Graphics)
		ebiten.SetWindowSize(renderer.WindowSize())
		ebiten.SetWindowTitle("SimMeR")
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
		ebiten.SetTPS(int(cfg.Simulation.FrameRate))
		if err := ebiten.RunGame(&window{Renderer: renderer, ctx: ctx}); err != nil {
			logger.Error("Window closed with error", log.Error(err))
		}
		// Closing the window ends the run.
		cancel()
	}

	err = g.Wait()
	logger.Info("Simulation stopped",
		log.String("digest", digest.Hex()),
		log.Int("exchanges", digest.Count()),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

// window stops the ebiten loop once the run is cancelled from elsewhere.
type window struct {
	*visualization.Renderer
	ctx context.Context
}

func (w *window) Update() error {
	if w.ctx.Err() != nil {
		return ebiten.Termination
	}
	return w.Renderer.Update()
}
