package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roman-kulish/rocket-telemetry/internal/imaging"
	"github.com/roman-kulish/rocket-telemetry/internal/radio"
	"github.com/roman-kulish/rocket-telemetry/internal/radio/driver"
	"github.com/roman-kulish/rocket-telemetry/internal/relay"
	"github.com/roman-kulish/rocket-telemetry/internal/server"
	"github.com/roman-kulish/rocket-telemetry/internal/storage"
)

const stationName = "ground"

type task struct {
	name string
	run  func(context.Context) error
}

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	link, closer, err := driver.Open(ctx, config.Radio, logger)
	if err != nil {
		return fmt.Errorf("failed to open radio: %w", err)
	}
	defer closer.Close()

	arbiter := radio.NewArbiter(link, radio.WithLogger(logger))

	var tasks []task
	options := []func(*relay.Station){relay.WithLogger(logger)}

	if config.Storage.Enabled {
		store, err := createStorage(&config.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer store.Close()

		sessionID, err := store.CreateSession(ctx, stationName, config.Radio.Driver, config.Radio)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		var recorder storage.Recorder = store
		if config.Influx.Enabled {
			influx := storage.NewInfluxStore(config.Influx)
			defer influx.Close()
			recorder = storage.MultiRecorder{store, influx}
		}

		telemetryTap := relay.NewQueue("recorder-telemetry", config.Storage.TapSize, relay.QueueWithLogger(logger))
		commandTap := relay.NewQueue("recorder-commands", config.Storage.TapSize, relay.QueueWithLogger(logger))
		options = append(options, relay.WithTelemetryTap(telemetryTap), relay.WithCommandTap(commandTap))

		rec := NewRecorder(sessionID, recorder, telemetryTap, commandTap, logger)
		tasks = append(tasks, task{"recorder", rec.Run})

		logger.Info("recording session", slog.Int64("session", sessionID))
	}

	var imageTap *relay.Queue
	if config.Images.Enabled {
		imageTap = relay.NewQueue("archive", config.Images.TapSize, relay.QueueWithLogger(logger))
		options = append(options, relay.WithImageTap(imageTap))
	}

	station := relay.NewStation(arbiter, config.Relay, options...)

	if imageTap != nil {
		assembler, err := imaging.NewAssembler(config.Images.Directory,
			imaging.WithLogger(logger),
			imaging.WithIdleTimeout(config.Images.IdleTimeout),
			imaging.WithTelemetry(&station.Latest))
		if err != nil {
			return fmt.Errorf("failed to create image archive: %w", err)
		}

		tasks = append(tasks, task{"images", func(ctx context.Context) error {
			return assembler.Run(ctx, imageTap)
		}})
	}

	srv := server.New(station, server.WithLogger(logger))

	tasks = append(tasks,
		task{"ground-tx", station.RunTransmit},
		task{"ground-rx", station.RunReceive},
		task{"http", func(ctx context.Context) error {
			return srv.ListenAndServe(ctx, config.HTTP.Listen)
		}},
	)

	logger.Info("ground station started", slog.String("radio", config.Radio.Driver), slog.String("listen", config.HTTP.Listen))

	err = runTasks(ctx, tasks, logger)

	stats := arbiter.Stats()
	logger.Info("ground station stopped",
		slog.Uint64("received", stats.Received),
		slog.Uint64("sent", stats.Sent),
		slog.Int("rssi", stats.RSSI),
		slog.Int("snr", stats.SNR))
	return err
}

// runTasks runs every task until ctx is done or one of them fails, which
// stops the others
func runTasks(ctx context.Context, tasks []task, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	for i, t := range tasks {
		i, t := i, t
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.run(ctx); err != nil {
				logger.Error("task failed", slog.String("task", t.name), slog.String("error", err.Error()))
				errs[i] = fmt.Errorf("%s: %w", t.name, err)
				cancel()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dir := config.DataDirectory
	if dir == "" {
		dir = storageDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(wd, dir)
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	dbPath := filepath.Join(dir, fmt.Sprintf("flight_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
