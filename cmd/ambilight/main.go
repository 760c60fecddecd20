package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/speedwagon-io/ambilight/internal/config"
	"github.com/speedwagon-io/ambilight/internal/health"
	"github.com/speedwagon-io/ambilight/internal/lib/logger/sl"
	"github.com/speedwagon-io/ambilight/internal/model"
	"github.com/speedwagon-io/ambilight/internal/monitor"
	"github.com/speedwagon-io/ambilight/internal/output"
	"github.com/speedwagon-io/ambilight/internal/output/console"
	"github.com/speedwagon-io/ambilight/internal/output/mqtt"
	"github.com/speedwagon-io/ambilight/internal/sensor"
	"github.com/speedwagon-io/ambilight/internal/storage"
)

const (
	simulatedLux       = 250
	simulatedVariation = 50
)

type inspectableStore interface {
	storage.Store
	Count(ctx context.Context) (int64, error)
	Latest(ctx context.Context) (model.LuxReading, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run returns the process exit status: 0 when monitoring stops because ctx
// is done (or -once stored a reading), 2 on bad flags, 1 otherwise.
func run(ctx context.Context, args []string) (code int) {
	fs := flag.NewFlagSet("ambilight", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	once := fs.Bool("once", false, "take a single reading and exit")
	dryRun := fs.Bool("dry-run", false, "keep readings in memory and print them")
	dbPath := fs.String("db", "", "override store path")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	log := slog.Default()
	defer func() {
		if r := recover(); r != nil {
			log.Error("unexpected error", slog.Any("panic", r))
			code = 1
		}
	}()

	cfg := config.MustLoad(*configPath)
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	log = sl.SetupLogger(cfg.Log.Level, cfg.Log.Format).With(
		slog.String("run_id", uuid.NewString()),
	)

	log.Info("starting ambient light monitor",
		slog.String("env", cfg.Env),
		slog.String("adapter", cfg.Sensor.Adapter),
		slog.String("address", cfg.Sensor.Address),
		slog.Bool("dry_run", *dryRun),
	)

	reader, err := newReader(cfg.Sensor)
	if err != nil {
		log.Error("failed to open sensor", sl.Err(err))
		return 1
	}
	defer reader.Close()

	store, err := newStore(log, cfg.Store, *dryRun)
	if err != nil {
		log.Error("failed to open store", sl.Err(err))
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close store", sl.Err(err))
		}
	}()

	outputs, err := newOutputs(log, cfg.MQTT, *dryRun)
	if err != nil {
		log.Error("failed to set up outputs", sl.Err(err))
		return 1
	}
	defer func() {
		for _, out := range outputs {
			if err := out.Close(); err != nil {
				log.Error("failed to close output", slog.String("output", out.Name()), sl.Err(err))
			}
		}
	}()

	mon := monitor.New(log, reader, store,
		monitor.WithPolicy(newPolicy(cfg.Monitor)),
		monitor.WithRetention(cfg.Store.MaxAge),
		monitor.WithOutputs(outputs...),
	)

	if *once {
		if !mon.ReadOnce(ctx) {
			return 1
		}
		return 0
	}

	if cfg.Health.Enabled {
		healthServer := health.NewServer(log, cfg.Health.Address)
		healthServer.AddChecker(health.NewSensorHealthChecker(mon.Snapshot))
		healthServer.AddChecker(health.NewStoreHealthChecker(store.Count, store.Latest))

		if err := healthServer.Start(); err != nil {
			log.Error("failed to start health server", sl.Err(err))
			return 1
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := healthServer.Stop(shutdownCtx); err != nil {
				log.Error("failed to stop health server", sl.Err(err))
			}
		}()
	}

	err = mon.Run(ctx)
	if errors.Is(err, monitor.ErrCancelled) {
		log.Info("monitoring stopped by signal")
		return 0
	}

	log.Error("monitoring stopped", sl.Err(err))
	return 1
}

func newReader(cfg config.SensorConfig) (sensor.Reader, error) {
	addr, err := cfg.AddressValue()
	if err != nil {
		return nil, err
	}
	register, err := cfg.RegisterValue()
	if err != nil {
		return nil, err
	}

	switch cfg.Adapter {
	case sensor.AdapterPeriph:
		r, err := sensor.NewPeriphReader(cfg.Bus, addr, register, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return r, nil
	case sensor.AdapterI2CGet:
		return sensor.NewI2CGetReader(cfg.Bus, addr, register, cfg.Timeout), nil
	case sensor.AdapterFake:
		return sensor.NewSimulatedReader(simulatedLux, simulatedVariation), nil
	default:
		return nil, fmt.Errorf("unknown sensor adapter %q", cfg.Adapter)
	}
}

func newStore(log *slog.Logger, cfg config.StoreConfig, dryRun bool) (inspectableStore, error) {
	if dryRun {
		log.Info("dry-run mode: readings are kept in memory")
		return storage.NewMemoryStore(), nil
	}
	log.Info("opening store", slog.String("path", cfg.Path))
	s, err := storage.NewSQLiteStore(log, cfg.Path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newOutputs(log *slog.Logger, cfg config.MQTTConfig, dryRun bool) ([]output.Output, error) {
	var outputs []output.Output
	if dryRun {
		outputs = append(outputs, console.NewConsole())
	}
	if cfg.Enabled {
		out, err := mqtt.NewMQTT(log, cfg)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func newPolicy(cfg config.MonitorConfig) monitor.Policy {
	return monitor.Policy{
		Interval:     cfg.Interval,
		ShortBackoff: cfg.ShortBackoff,
		LongBackoff:  cfg.LongBackoff,
	}
}
