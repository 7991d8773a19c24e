package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	_ "reflow_oven/docs"
	"reflow_oven/internal/calibration"
	"reflow_oven/internal/config"
	"reflow_oven/internal/control"
	"reflow_oven/internal/door"
	"reflow_oven/internal/events"
	"reflow_oven/internal/handlers"
	"reflow_oven/internal/housekeeping"
	"reflow_oven/internal/link"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/process"
	"reflow_oven/internal/reflow"
	"reflow_oven/internal/repository"
	"reflow_oven/internal/repository/db"
	"reflow_oven/internal/server"
	"reflow_oven/internal/service"
	"reflow_oven/internal/simulator"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the controller against the simulated plant and expose the HTTP API",
		RunE:  runServe,
	}
}

// core holds the long-running components of one oven.
type core struct {
	bus     *events.Bus
	plant   *simulator.Plant
	ctrl    *control.Controller
	door    *door.Governor
	calib   *calibration.Engine
	curves  *reflow.Library
	orch    *process.Orchestrator
	repos   *repository.Repository
	service *service.Service
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlDB, err := db.InitDB(ctx, cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to init sqlite: %w", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("sqlite_close_failed", "err", cerr)
		}
	}()

	flash, err := repository.OpenFileFlash(cfg.Flash.Path, cfg.Flash.Size, cfg.Flash.SectorSize)
	if err != nil {
		return fmt.Errorf("failed to open profile flash: %w", err)
	}
	defer func() { _ = flash.Close() }()

	c, err := buildCore(cfg, repository.NewRepository(sqlDB, flash, cfg.Flash.ProfileOffset), log)
	if err != nil {
		return err
	}

	hk, err := housekeeping.New(housekeeping.Config{
		Schedule:      cfg.Housekeeping.Schedule,
		Retention:     cfg.Housekeeping.Retention,
		MaxProfileAge: cfg.Calibration.MaxProfileAge,
	}, c.repos.Journal, c.calib, c.bus, log)
	if err != nil {
		return err
	}

	api := handlers.NewHandler(c.service, c.bus, log.Named("http"))
	srv := server.New(cfg.Port, api.InitRoutes())

	g, gctx := errgroup.WithContext(ctx)
	goRun := func(fn func(context.Context)) {
		g.Go(func() error {
			fn(gctx)
			return nil
		})
	}

	// the journal subscribes first so the boot events are kept
	goRun(service.NewJournalSink(c.bus, c.repos.Journal, log, door.EventPosition).Run)
	goRun(func(ctx context.Context) { c.plant.Run(ctx, cfg.Simulator.Tick) })
	goRun(c.door.Run)
	goRun(c.ctrl.Run)
	goRun(c.calib.Run)
	goRun(c.orch.Run)
	goRun(hk.Run)
	if cfg.Curves.Watch {
		g.Go(func() error { return c.curves.Watch(gctx) })
	}
	if cfg.Link.Enabled {
		g.Go(func() error { return runLink(gctx, cfg.Link, c, log) })
	}
	g.Go(func() error {
		log.Infow("http_listening", "addr", srv.Addr())
		return srv.Run(gctx)
	})

	c.bus.Post(events.TopicSystem, "BOOT", events.String(cfg.Curves.Active))

	err = g.Wait()
	// zero the outputs whatever brought us down
	c.ctrl.StopAll()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("shutdown_with_error", "err", err)
		return err
	}
	log.Infow("shutdown_complete")
	return nil
}

// buildCore wires the oven components around one event bus.
func buildCore(cfg *config.Config, repos *repository.Repository, log *logger.Logger) (*core, error) {
	bus := events.NewBus()
	plant := simulator.New(cfg.Simulator, cfg.Door)

	gov, err := door.New(door.Config{
		ClosedAngle:   cfg.Door.ClosedAngle,
		OpenAngle:     cfg.Door.OpenAngle,
		Inverted:      cfg.Door.Inverted,
		CommandPeriod: cfg.Door.CommandPeriod,
		SafetyPeriod:  cfg.Door.SafetyPeriod,
		SlewDegPerSec: cfg.Door.SlewDegPerSec,
	}, plant, plant, bus, log)
	if err != nil {
		return nil, fmt.Errorf("door governor: %w", err)
	}
	if err := gov.EnableServo(); err != nil {
		return nil, fmt.Errorf("door servo: %w", err)
	}

	ctrl := control.New(control.Config{
		Period:                   cfg.Control.Period,
		Strategy:                 control.NewStrategy(cfg.Control.Strategy, cfg.Control.ProportionalGain, cfg.Control.HeaterThreshold),
		MinCoolingChangeInterval: cfg.Control.MinCoolingChangeInterval,
		CoolingFullScaleC:        cfg.Control.CoolingFullScaleC,
	}, plant, plant, gov, bus, log)

	calib := calibration.New(calibration.Config{
		TempPoints:         cfg.Calibration.TempPoints,
		ToleranceC:         cfg.Calibration.ToleranceC,
		MediumPower:        cfg.Calibration.MediumPower,
		ReachTimeout:       cfg.Calibration.ReachTimeout,
		Dwell:              cfg.Calibration.Dwell,
		Settle:             cfg.Calibration.Settle,
		TestDuration:       cfg.Calibration.TestDuration,
		PollInterval:       cfg.Calibration.PollInterval,
		SensorWindow:       cfg.Calibration.SensorWindow,
		SensorSampleEvery:  cfg.Calibration.SensorSampleEvery,
		MismatchThresholdC: cfg.Calibration.MismatchThresholdC,
	}, plant, ctrl, gov, repos.Profiles, bus, log)
	// a missing or corrupt profile leaves the oven uncalibrated; already logged
	_ = calib.LoadProfile()

	curves := reflow.NewLibrary(cfg.Curves.Dir, log)
	if err := curves.Load(); err != nil {
		log.Warnw("curve_library_partial", "err", err)
	}
	curves.OnReload(func(names []string) {
		bus.Post(events.TopicSystem, "CURVES_RELOADED", events.Int(int64(len(names))))
	})

	orch := process.New(process.Config{
		TickPeriod:      cfg.Process.TickPeriod,
		PrecheckTimeout: cfg.Process.PrecheckTimeout,
	}, ctrl, gov, calib, curves, repos.Runs, reflow.NewSequencer(), bus, log)

	svc := service.NewService(service.Deps{
		Sensors:     plant,
		Control:     ctrl,
		Door:        gov,
		Process:     orch,
		Calibration: calib,
		Curves:      curves,
		CurveName:   cfg.Curves.Active,
		Repos:       repos,
		Auth:        cfg.Auth,
		Log:         log,
	})

	return &core{
		bus:     bus,
		plant:   plant,
		ctrl:    ctrl,
		door:    gov,
		calib:   calib,
		curves:  curves,
		orch:    orch,
		repos:   repos,
		service: svc,
	}, nil
}

// runLink keeps the secondary controller link up. A failed open is logged and
// the core keeps running without it.
func runLink(ctx context.Context, cfg config.LinkConfig, c *core, log *logger.Logger) error {
	port, err := link.OpenSerial(cfg.Port, cfg.BaudRate)
	if err != nil {
		log.Errorw("link_unavailable", "port", cfg.Port, "err", err)
		return nil
	}
	router := link.NewRouter()
	service.RegisterLinkCommands(router, c.service)
	if err := link.New(port, router, c.bus, log).Run(ctx); err != nil {
		log.Errorw("link_stopped", "err", err)
	}
	return nil
}
