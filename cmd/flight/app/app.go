package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/rocket-telemetry/internal/actuator"
	"github.com/roman-kulish/rocket-telemetry/internal/auxlink"
	"github.com/roman-kulish/rocket-telemetry/internal/avionics"
	"github.com/roman-kulish/rocket-telemetry/internal/fault"
	"github.com/roman-kulish/rocket-telemetry/internal/flight"
	"github.com/roman-kulish/rocket-telemetry/internal/radio"
	"github.com/roman-kulish/rocket-telemetry/internal/radio/driver"
	"github.com/roman-kulish/rocket-telemetry/internal/sensor"
	"github.com/roman-kulish/rocket-telemetry/internal/sensor/sim"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	sensors, bench := createSensors(&config.Sensors)

	chute, burnout, err := createActuators(&config.Actuator, logger)
	if err != nil {
		return haltOnFatal(ctx, logger, fmt.Errorf("failed to create actuators: %w", err))
	}
	if bench != nil {
		// the scripted flight opens its canopy when the chute fires
		chute = actuator.Multi{chute, bench}
	}

	link, closer, err := driver.Open(ctx, config.Radio, logger)
	if err != nil {
		return haltOnFatal(ctx, logger, fmt.Errorf("failed to open radio: %w", err))
	}
	defer closer.Close()

	arbiter := radio.NewArbiter(link, radio.WithLogger(logger))

	machine := flight.NewMachine(chute, burnout,
		flight.WithLogger(logger.With(slog.String("component", "machine"))),
		flight.WithThresholds(config.Thresholds))

	options := []func(*avionics.Computer){
		avionics.WithLogger(logger),
		avionics.WithConfig(config.Tasks),
	}

	if config.Aux.Enabled {
		port, err := auxlink.OpenPort(config.Aux.Serial)
		if err != nil {
			return fmt.Errorf("failed to open aux port: %w", err)
		}
		defer port.Close()

		aux := auxlink.NewChannel(port, arbiter.Transmit,
			auxlink.WithLogger(logger),
			auxlink.WithChunkSize(config.Aux.ChunkSize))
		options = append(options, avionics.WithAux(aux))
	}

	computer := avionics.NewComputer(machine, sensors, arbiter, options...)

	logger.Info("flight computer started",
		slog.String("radio", config.Radio.Driver),
		slog.String("sensors", config.Sensors.Driver),
		slog.Bool("aux", config.Aux.Enabled))

	if err = computer.Run(ctx); err != nil {
		return fmt.Errorf("flight computer stopped: %w", err)
	}

	stats := arbiter.Stats()
	logger.Info("flight computer stopped",
		slog.String("phase", computer.Phase().String()),
		slog.Uint64("sent", stats.Sent),
		slog.Uint64("sendFailures", stats.SendFailures),
		slog.Uint64("received", stats.Received))
	return nil
}

// haltOnFatal keeps the process up, visibly halted, after a fatal init fault
func haltOnFatal(ctx context.Context, logger *slog.Logger, err error) error {
	if !fault.Is(err, fault.FatalInit) {
		return err
	}
	return avionics.Halt(ctx, logger, err)
}

func createSensors(config *SensorsConfig) (sensor.Suite, *sim.Flight) {
	start := time.Now()
	bench := sim.New(config.Profile, sim.WithClock(func() time.Duration {
		return time.Since(start)
	}))
	return sensor.Suite{Inertial: bench, Barometer: bench, Ranger: bench}, bench
}

func createActuators(config *ActuatorConfig, logger *slog.Logger) (chute, burnout flight.Signal, err error) {
	switch config.Driver {
	case ActuatorGPIO:
		if chute, err = actuator.Open(config.ChutePin, true, actuator.WithLogger(logger)); err != nil {
			return nil, nil, fmt.Errorf("opening chute output: %w", err)
		}
		if burnout, err = actuator.Open(config.BurnoutPin, false, actuator.WithLogger(logger)); err != nil {
			return nil, nil, fmt.Errorf("opening burnout output: %w", err)
		}
		return chute, burnout, nil

	default:
		return actuator.NewLogSignal("chute", logger), actuator.NewLogSignal("burnout", logger), nil
	}
}
