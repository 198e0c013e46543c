package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stephens/tubpanel/internal/config"
	"github.com/stephens/tubpanel/internal/device"
	"github.com/stephens/tubpanel/internal/log"
	"github.com/stephens/tubpanel/internal/storage"
	"github.com/stephens/tubpanel/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
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
	if *port != 0 {
		cfg.Device.Port = *port
	}

	// Set up logging
	log.SetDefaultLevel(log.ParseLevel(cfg.Log.Level))
	log.SetDefaultJSONMode(cfg.Log.JSON)
	if *debug {
		log.SetDefaultLevel(log.LevelDebug)
	}

	log.Info("Starting hot tub controller")

	// Ensure data directory exists
	if err := cfg.EnsureDataDir(); err != nil {
		log.Error("Failed to create data directory: %v", err)
		os.Exit(1)
	}

	// Open database
	db, err := storage.Open(cfg.DatabasePath())
	if err != nil {
		log.Error("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	log.Info("Database initialized at %s", cfg.DatabasePath())

	hub := web.NewHub()
	controller, err := device.NewController(cfg.Device, db, hub)
	if err != nil {
		log.Error("Failed to create controller: %v", err)
		os.Exit(1)
	}

	svc := &Service{
		cfg:        cfg,
		db:         db,
		controller: controller,
	}

	webServer := web.NewServer(web.Options{
		Port:            cfg.Device.Port,
		StaticDir:       cfg.Device.StaticDir,
		ClientRateLimit: cfg.Device.ClientRateLimit,
		ClientBurst:     cfg.Device.ClientBurst,
	}, hub, controller, db)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
	}()

	if err := db.LogEvent(storage.EventSourceSystem, storage.EventTypeInfo, "Controller started", nil); err != nil {
		log.Warn("Failed to log startup: %v", err)
	}

	go hub.Run(ctx)
	go svc.runThermostatLoop(ctx)
	go svc.runPruneLoop(ctx)

	// Start web server
	log.Info("Starting web server on port %d", cfg.Device.Port)
	if err := webServer.Run(ctx); err != nil {
		log.Error("Web server error: %v", err)
	}

	log.Info("Shutdown complete")
}

// Service owns the background loops of the controller
type Service struct {
	cfg        *config.Config
	db         *storage.DB
	controller *device.Controller
}

// runThermostatLoop samples the water and steps the thermostat at regular intervals
func (s *Service) runThermostatLoop(ctx context.Context) {
	interval := s.cfg.Device.TempInterval.Duration()
	log.Info("Starting thermostat loop (interval: %s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.controller.Tick()
		}
	}
}

// runPruneLoop drops event log rows older than the retention window
func (s *Service) runPruneLoop(ctx context.Context) {
	retention := s.cfg.Device.LogRetention.Duration()
	if retention <= 0 {
		return
	}

	s.prune(retention)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.prune(retention)
		}
	}
}

func (s *Service) prune(retention time.Duration) {
	n, err := s.db.PruneEventLogs(time.Now().Add(-retention))
	if err != nil {
		log.Error("Failed to prune event log: %v", err)
		return
	}
	if n > 0 {
		log.Debug("Pruned %d event log entries", n)
	}
}
