/*


Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/c0llal0/autosmp/internal/api"
	"github.com/c0llal0/autosmp/internal/config"
	"github.com/c0llal0/autosmp/internal/hotplug"
	"github.com/c0llal0/autosmp/internal/monitoring"
	"github.com/c0llal0/autosmp/internal/sysfs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger depends on config, fall back to a default one
		zapr.NewLogger(zap.Must(zap.NewProduction())).Error(err, "unable to load configuration")
		os.Exit(1)
	}

	logger, err := newLogger(cfg.App.LogLevel)
	if err != nil {
		zapr.NewLogger(zap.Must(zap.NewProduction())).Error(err, "unable to build logger")
		os.Exit(1)
	}
	setupLog := logger.WithName("setup")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	system := sysfs.New()

	// the cpufreq driver may still be probing during early boot
	if err := system.WaitForCpufreq(ctx); err != nil {
		setupLog.Error(err, "cpufreq attributes never became readable")
		os.Exit(1)
	}

	present, err := system.PresentIDs()
	if err != nil {
		setupLog.Error(err, "unable to read CPU topology")
		os.Exit(1)
	}
	setupLog.Info("discovered cpus", "present", len(present))

	params := hotplug.NewParameterStore(uint32(len(present)))
	if err := applyGovernorConfig(params, &cfg.Governor); err != nil {
		setupLog.Error(err, "invalid governor configuration")
		os.Exit(1)
	}

	sampler := hotplug.NewLoadSampler(system, system)
	stats := &hotplug.Stats{}
	lifecycle := hotplug.NewCoreLifecycleController(system, system, stats, logger.WithName("lifecycle"))
	governor := hotplug.NewGovernor(
		params,
		sampler,
		lifecycle,
		stats,
		logger.WithName("governor"),
		hotplug.WithEnabled(cfg.Governor.Enabled),
		hotplug.WithStartupDelay(cfg.Governor.StartupDelay),
	)

	powerSource, stopPowerSource := hotplug.NewSignalPowerSource(syscall.SIGUSR1, syscall.SIGUSR2)
	defer stopPowerSource()
	coordinator := hotplug.NewPowerStateCoordinator(governor, powerSource, logger.WithName("power"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	for _, collector := range monitoring.NewGovernorCollectors(
		governor, system, system, logger.WithName(monitoring.LogTopName),
	) {
		registry.MustRegister(collector)
	}

	metricsServer := &http.Server{
		Addr:    cfg.Metrics.Addr,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	apiServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewRouter(api.NewHandler(params, governor, logger.WithName("api"))),
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return governor.Start(groupCtx)
	})
	group.Go(func() error {
		return coordinator.Run(groupCtx)
	})
	group.Go(func() error {
		return runServer(groupCtx, metricsServer, cfg.Server.ShutdownTimeout)
	})
	group.Go(func() error {
		return runServer(groupCtx, apiServer, cfg.Server.ShutdownTimeout)
	})

	setupLog.Info("starting governor",
		"enabled", cfg.Governor.Enabled,
		"delayMS", cfg.Governor.DelayMS,
		"metricsAddr", cfg.Metrics.Addr,
		"apiAddr", cfg.Server.Addr)

	if err := group.Wait(); err != nil {
		setupLog.Error(err, "problem running governor")
		os.Exit(1)
	}
}

func newLogger(level string) (logr.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Logger{}, err
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zapLogger), nil
}

func applyGovernorConfig(params *hotplug.ParameterStore, cfg *config.GovernorConfig) error {
	if cfg.MaxCores != 0 {
		if err := params.SetMaxCores(cfg.MaxCores); err != nil {
			return err
		}
	}
	if err := params.SetMinCores(cfg.MinCores); err != nil {
		return err
	}
	if err := params.SetDelayMS(cfg.DelayMS); err != nil {
		return err
	}
	if err := params.SetUpThresholdPct(cfg.UpThresholdPct); err != nil {
		return err
	}
	if err := params.SetDownThresholdPct(cfg.DownThresholdPct); err != nil {
		return err
	}
	if err := params.SetCycleUp(cfg.CycleUp); err != nil {
		return err
	}
	return params.SetCycleDown(cfg.CycleDown)
}

func runServer(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
