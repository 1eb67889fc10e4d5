package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/jroimartin/gocui"

	"github.com/roman-kulish/rocket-telemetry/internal/flight"
	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

const (
	viewInfo   = "info"
	viewQueues = "queues"
	viewLog    = "log"
	viewHelp   = "help"
)

const helpText = "0-5 force phase | i save image | t transmit image | x shut down aux | q quit"

type keyBind struct {
	viewname string
	key      interface{}
	mod      gocui.Modifier
	handler  func(*gocui.Gui, *gocui.View) error
}

// commandKeys maps console keys to the commands they send
func commandKeys() map[rune]telemetry.Command {
	keys := map[rune]telemetry.Command{
		'i': {Kind: telemetry.CommandImageSave},
		't': {Kind: telemetry.CommandImageTransmit},
		'x': {Kind: telemetry.CommandImageShutdown},
	}
	for p := flight.Ground; p <= flight.Landed; p++ {
		keys[rune('0'+p)] = telemetry.StateOverride(p)
	}
	return keys
}

func (app *App) bindings() error {
	bindings := []keyBind{
		{"", gocui.KeyCtrlC, gocui.ModNone, app.quit},
		{"", 'q', gocui.ModNone, app.quit},
	}
	for key, cmd := range commandKeys() {
		bindings = append(bindings, keyBind{"", key, gocui.ModNone, app.sendHandler(cmd)})
	}

	for _, b := range bindings {
		if err := app.g.SetKeybinding(b.viewname, b.key, b.mod, b.handler); err != nil {
			return fmt.Errorf("bind %v: %w", b.key, err)
		}
	}

	return nil
}

func (app *App) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	views := []struct {
		name           string
		title          string
		x0, y0, x1, y1 int
	}{
		{viewInfo, "telemetry", 0, 0, maxX/2 - 1, maxY - 9},
		{viewQueues, "queues", 0, maxY - 8, maxX/2 - 1, maxY - 4},
		{viewLog, "log", maxX / 2, 0, maxX - 1, maxY - 4},
		{viewHelp, "", 0, maxY - 3, maxX - 1, maxY - 1},
	}

	for _, vv := range views {
		v, err := g.SetView(vv.name, vv.x0, vv.y0, vv.x1, vv.y1)
		if err != nil {
			if !errors.Is(err, gocui.ErrUnknownView) {
				return err
			}
			v.Frame = true
			v.Title = vv.title
			v.Wrap = vv.name == viewLog
			if vv.name == viewHelp {
				fmt.Fprint(v, helpText)
			}
		}
	}

	return nil
}

func (app *App) redraw() {
	app.g.Update(func(gui *gocui.Gui) error {
		now := time.Now()

		if v, err := gui.View(viewInfo); err == nil {
			v.Clear()
			app.dashboard.RenderInfo(v, now)
		}
		if v, err := gui.View(viewQueues); err == nil {
			v.Clear()
			app.dashboard.RenderQueues(v)
		}
		if v, err := gui.View(viewLog); err == nil {
			v.Clear()
			_, size := v.Size()
			for _, l := range app.logs.Lines(size) {
				fmt.Fprintln(v, l)
			}
		}

		return nil
	})
}

func (app *App) quit(*gocui.Gui, *gocui.View) error {
	if app.cancel != nil {
		app.cancel()
	}
	return gocui.ErrQuit
}

func (app *App) sendHandler(cmd telemetry.Command) func(*gocui.Gui, *gocui.View) error {
	return func(*gocui.Gui, *gocui.View) error {
		// the HTTP round trip must not stall the UI loop
		go app.send(cmd)
		return nil
	}
}
