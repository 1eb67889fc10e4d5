package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jroimartin/gocui"

	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

// DefaultPollInterval matches the rate at which the vehicle transmits
const DefaultPollInterval = time.Second

type Config struct {
	URL          string
	PollInterval time.Duration
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("ground station url is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

type App struct {
	g      *gocui.Gui
	ctx    context.Context
	cancel context.CancelFunc

	client    *Client
	dashboard Dashboard
	logs      *LogBuffer
	logger    *slog.Logger
}

// Run starts the console and blocks until the operator quits or ctx is done.
// logs must be the buffer the logger writes to.
func Run(ctx context.Context, config Config, logs *LogBuffer, logger *slog.Logger) error {
	if err := config.Validate(); err != nil {
		return err
	}

	client, err := NewClient(config.URL, nil)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return fmt.Errorf("create console: %w", err)
	}
	defer g.Close()

	app := App{
		g:      g,
		client: client,
		logs:   logs,
		logger: logger,
	}
	app.ctx, app.cancel = context.WithCancel(ctx)
	defer app.cancel()

	g.SetManagerFunc(app.layout)
	if err = app.bindings(); err != nil {
		return err
	}
	logs.OnChange(app.redraw)
	defer logs.OnChange(nil)

	go app.poll(app.ctx, config.PollInterval)
	go func() {
		<-app.ctx.Done()
		g.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
	}()

	logger.Info("monitoring ground station", slog.String("url", config.URL))

	if err = g.MainLoop(); err != nil && !errors.Is(err, gocui.ErrQuit) {
		return err
	}
	return nil
}

func (app *App) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		app.pollOnce(ctx)
		app.redraw()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (app *App) pollOnce(ctx context.Context) {
	now := time.Now()
	wasStale := app.dashboard.Stale(now)

	resp, err := app.client.Telemetry(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil {
		app.logger.Warn(err.Error())
	}
	app.dashboard.Update(resp, err, now)

	if stale := app.dashboard.Stale(now); stale != wasStale {
		if stale {
			app.logger.Warn("telemetry is stale", slog.Duration("after", StaleAfter))
		} else {
			app.logger.Info("telemetry resumed")
		}
	}
}

func (app *App) send(cmd telemetry.Command) {
	if err := app.client.Send(app.ctx, cmd); err != nil {
		app.logger.Error(err.Error())
		return
	}
	app.logger.Info("command sent", slog.String("command", string(cmd.Marshal())))
}
