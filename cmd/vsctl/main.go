// Command vsctl is the Virtual Slope depth controller process: it ingests
// navigation telegrams, polls the backseat server for mission/phase status,
// and drives a depth controller through each live subphase in sequence.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"vslope/internal/altitude"
	"vslope/internal/backseat"
	"vslope/internal/config"
	"vslope/internal/controller"
	"vslope/internal/logging"
	"vslope/internal/missionplan"
	"vslope/internal/navigation"
	"vslope/internal/phasemanager"
	"vslope/internal/telemetry"
	"vslope/internal/vsloop"

	"go.opentelemetry.io/otel/trace"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the process configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("vsctl - virtual slope depth controller")
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	liveCfg := &atomic.Pointer[config.Config]{}
	liveCfg.Store(cfg)

	rootLogger, logFile, err := logging.NewRootLogger(logging.Options{
		LogDirectory: cfg.LogDirectory,
		ConsoleLevel: cfg.ConsoleLogLevel,
		FileLevel:    cfg.FileLogLevel,
	})
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer logFile.Close()
	logr := logging.New(rootLogger)

	tracer := telemetry.NewTracer(cfg.TracingEnabled)
	metrics := telemetry.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logr.InfoCtx(ctx, "signal received, initiating graceful shutdown")
		cancel()
		<-sigCh
		logr.WarnCtx(ctx, "second signal received, forcing exit")
		os.Exit(1)
	}()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		go func() {
			logr.InfoCtx(ctx, "metrics listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logr.ErrorCtx(ctx, "metrics server failed", "error", err)
			}
		}()
	}

	navStore := navigation.NewStore()
	desbridgeAddr := fmt.Sprintf("%s:%d", cfg.DesbridgeHost, cfg.DesbridgePort)
	ingestor := navigation.NewIngestor(desbridgeAddr, navStore, logr, metrics)
	go func() {
		if err := ingestor.Run(ctx); err != nil {
			logr.ErrorCtx(ctx, "navigation ingestor stopped", "error", err)
		}
	}()

	backseatClient := backseat.NewClient(backseat.Config{
		BaseURL:                 fmt.Sprintf("http://%s:%d", cfg.BackseatIP, cfg.BackseatPort),
		ConnectTimeout:          cfg.BackseatConnectionTimeoutDuration(),
		ReadTimeout:             cfg.BackseatResponseTimeoutDuration(),
		OverloadCommandDuration: cfg.OverloadCommandDurationDuration(),
		MinDepth:                cfg.MinDepth,
		MaxDepth:                cfg.MaxDepth,
	}, logr, metrics)

	planStore := missionplan.NewStore(cfg.ParamsDirectory, logr)

	configWatcher, err := config.NewWatcher(configPath)
	if err != nil {
		logr.ErrorCtx(ctx, "init config watcher failed, hot-reload disabled", "error", err)
	} else {
		cfgChanges, cfgErrs := configWatcher.Watch(ctx)
		go func() {
			for {
				select {
				case change, ok := <-cfgChanges:
					if !ok {
						return
					}
					liveCfg.Store(change.Config)
					logr.InfoCtx(ctx, "config reloaded", "path", configPath)
				case watchErr, ok := <-cfgErrs:
					if !ok {
						return
					}
					logr.ErrorCtx(ctx, "config reload failed, keeping previous config", "error", watchErr)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	planInvalidated, planWatchErrs, err := planStore.WatchParamsDirectory(ctx)
	if err != nil {
		logr.ErrorCtx(ctx, "init mission plan directory watcher failed, cache will not auto-invalidate", "error", err)
	} else {
		go func() {
			for {
				select {
				case _, ok := <-planInvalidated:
					if !ok {
						return
					}
					logr.InfoCtx(ctx, "mission plan params directory changed, cache invalidated", "dir", cfg.ParamsDirectory)
				case watchErr, ok := <-planWatchErrs:
					if !ok {
						return
					}
					logr.ErrorCtx(ctx, "mission plan directory watch error", "error", watchErr)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	var altSource altitude.Source
	if cfg.TestMode {
		depthFile := cfg.LogDirectory + "/simulated_bottom_depth.txt"
		testSource, err := altitude.NewTestSource(depthFile, cfg.TestInitialBottomDepth, logr)
		if err != nil {
			log.Fatalf("init test altitude source: %v", err)
		}
		defer testSource.Cleanup()
		altSource = testSource
		logr.InfoCtx(ctx, "running in test mode with simulated altitude", "depth_file", depthFile)
	} else {
		altSource = altitude.RealSource{}
	}

	manager := phasemanager.New(backseatClient, navStore, planStore, phasemanager.Tolerances{
		LineStartLatLonMeters:     cfg.LineStartToleranceLatLonMeters,
		LineStartDepthMeters:      cfg.LineStartToleranceDepthMeters,
		LineStartHeadingDegrees:   cfg.LineStartToleranceHeadingDegrees,
		SubphaseCoordinatesMeters: cfg.SubphaseCoordinatesToleranceMeters,
	}, logr)

	runOrchestrator(ctx, liveCfg, logr, tracer, metrics, manager, navStore, altSource, backseatClient)

	<-ctx.Done()
	logr.InfoCtx(context.Background(), "vsctl shutting down")
}

// runOrchestrator drives the phase manager at its configured polling cadence,
// starting a vsloop.Loop for each subphase the manager hands back and
// cancelling the previous one first, matching the original single-controller-
// at-a-time invariant. It reads liveCfg on every tick and at every subphase
// start, so a config reload from the Watcher takes effect at the next natural
// boundary rather than requiring an in-place hot-swap of a running controller.
func runOrchestrator(
	ctx context.Context,
	liveCfg *atomic.Pointer[config.Config],
	logr logging.Logger,
	tracer trace.Tracer,
	metrics *telemetry.Metrics,
	manager *phasemanager.Manager,
	navStore *navigation.Store,
	altSource altitude.Source,
	sender controller.DepthSender,
) {
	go func() {
		var (
			loopCancel func()
			loopDone   chan struct{}
		)
		stopCurrent := func() {
			if loopCancel != nil {
				loopCancel()
				<-loopDone
				loopCancel = nil
				loopDone = nil
			}
		}
		defer stopCurrent()

		monitoringInterval := liveCfg.Load().MonitoringCheckIntervalDuration()
		ticker := time.NewTicker(monitoringInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cfg := liveCfg.Load()
				if newInterval := cfg.MonitoringCheckIntervalDuration(); newInterval != monitoringInterval {
					ticker.Reset(newInterval)
					monitoringInterval = newInterval
				}

				subphase := manager.Update(ctx)
				if !manager.ControllerLive() {
					stopCurrent()
				}
				if subphase == nil {
					continue
				}

				stopCurrent()

				spanCtx, span := telemetry.StartSpan(ctx, tracer, "vsloop.subphase")
				loopCtx, cancel := context.WithCancel(spanCtx)
				loopCancel = func() {
					cancel()
					span.End()
				}
				done := make(chan struct{})
				loopDone = done

				controllerCfg := controller.Config{
					AltitudeThresholdLevel:  cfg.AltitudeThresholdLevel,
					AltitudeThresholdAscend: cfg.AltitudeThresholdAscend,
					WaitTime:                cfg.WaitTimeDuration(),
					MinDepth:                cfg.MinDepth,
					MaxDepth:                cfg.MaxDepth,
					TransitionTicks:         cfg.TransitionTime,
				}
				params := vsloop.Params{
					SubphaseID:       subphase.ID,
					Plan:             subphase.Plan,
					PreviousStep:     manager.LastStep(),
					CommandPeriod:    cfg.CommandPeriodDuration(),
					MaxAngleDeg:      cfg.MaxAngle,
					ControllerConfig: controllerCfg,
				}

				loop := vsloop.New(params, navStore, altSource, sender, manager, logr, metrics)
				manager.SetControllerLive(true)

				go func() {
					defer close(done)
					if err := loop.Run(loopCtx); err != nil {
						logr.InfoCtx(ctx, "subphase loop ended", "subphase", subphase.ID, "error", err)
					}
					manager.SetControllerLive(false)
				}()
			}
		}
	}()
}
