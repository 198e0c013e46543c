package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stephens/tubpanel/internal/config"
	"github.com/stephens/tubpanel/internal/conn"
	"github.com/stephens/tubpanel/internal/log"
	"github.com/stephens/tubpanel/internal/loop"
	"github.com/stephens/tubpanel/internal/panel"
	"github.com/stephens/tubpanel/internal/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	host := flag.String("host", "", "Device host (overrides config)")
	flag.Parse()

	// Load configuration
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Error("Failed to load config: %v", err)
			os.Exit(1)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	if *host != "" {
		cfg.Panel.Host = *host
	}

	// Set up logging. Frames go to stdout, so logs go to stderr.
	log.SetDefaultOutput(os.Stderr)
	log.SetDefaultLevel(log.ParseLevel(cfg.Log.Level))
	log.SetDefaultJSONMode(cfg.Log.JSON)
	if *debug {
		log.SetDefaultLevel(log.LevelDebug)
	}

	app := newApp(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGCONT)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGCONT {
				app.loop.Post(app.conn.Wake)
				continue
			}
			log.Info("Shutting down...")
			app.shutdown()
			return
		}
	}()

	go func() {
		err := readCommands(os.Stdin, app.handle, func(err error) {
			fmt.Fprintln(os.Stderr, err)
		})
		if err != nil {
			log.Error("Failed to read input: %v", err)
		}
	}()

	log.Info("Tub panel connecting to %s", app.conn.URL())
	app.conn.Start(ctx)
	app.loop.Run(ctx)
	log.Info("Shutdown complete")
}

// App wires the panel, its socket and the loop they share
type App struct {
	cfg   *config.Config
	loop  *loop.Loop
	conn  *conn.Manager
	panel *panel.Panel
}

func newApp(cfg *config.Config) *App {
	a := &App{cfg: cfg}

	var renderer *panel.Renderer
	var opts []loop.Option
	if cfg.Panel.Render {
		renderer = panel.NewRenderer(os.Stdout, true)
		opts = append(opts, loop.WithAfterTurn(func() {
			if err := renderer.RenderIfDirty(a.panel.Document()); err != nil {
				log.Debug("Render failed: %v", err)
			}
		}))
	}
	a.loop = loop.New(opts...)

	a.conn = conn.New(protocol.SocketURL(cfg.Panel.Host), a.loop, a.onMessage,
		conn.WithReconnectDelay(cfg.Panel.ReconnectDelay.Duration()))
	a.panel = panel.New(a.conn, panel.WithVariant(panel.ParseVariant(cfg.Panel.Protocol)))

	if renderer != nil {
		a.loop.Post(func() {
			if err := renderer.Render(a.panel.Document()); err != nil {
				log.Debug("Render failed: %v", err)
			}
		})
	}
	return a
}

func (a *App) onMessage(data []byte) {
	if err := a.panel.Merge(data); err != nil {
		log.Debug("Ignoring message: %v", err)
	}
}

// handle posts a command to the loop. It returns false once the panel should stop reading input.
func (a *App) handle(cmd Command) bool {
	if cmd.Action == ActionQuit {
		a.shutdown()
		return false
	}
	return a.loop.Post(func() { a.apply(cmd) })
}

// apply runs on the loop
func (a *App) apply(cmd Command) {
	var err error
	switch cmd.Action {
	case ActionPlus:
		a.panel.Plus()
	case ActionMinus:
		a.panel.Minus()
	case ActionSet:
		a.panel.Edit(cmd.Text)
		a.panel.Blur()
	case ActionSubmit:
		err = a.panel.Submit()
	case ActionLight:
		err = a.panel.SelectLight(cmd.Light)
	case ActionRefresh:
		err = a.panel.Refresh()
	case ActionWake:
		a.conn.Wake()
	}
	if err != nil {
		log.Debug("Command failed: %v", err)
	}
}

func (a *App) shutdown() {
	a.loop.Do(a.conn.Stop)
	a.loop.Close()
}
