package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/rocket-telemetry/cmd/monitor/app"
)

func main() {
	logs := app.NewLogBuffer(0)

	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: &logLevel}))

	var (
		config app.Config
		level  string
	)
	flag.StringVar(&config.URL, "url", "http://localhost:80", "Ground station base URL")
	flag.DurationVar(&config.PollInterval, "poll", app.DefaultPollInterval, "Telemetry poll interval")
	flag.StringVar(&level, "log-level", "info", "Log level")
	flag.Parse()

	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %s\n", err.Error())
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, config, logs, logger); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())

		cancel()
		os.Exit(1)
	}
}
