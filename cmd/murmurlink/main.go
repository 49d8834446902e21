// Murmurlink - Mumble Voice Client Core & API
//
// Murmurlink maintains a persistent TLS control connection to a Mumble
// server, carries real-time voice over an encrypted UDP path with
// automatic TCP-tunnel fallback, exposes a local REST API and interactive
// CLI, and publishes telemetry via MQTT.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/murmurlink-project/murmurlink/internal/api"
	"github.com/murmurlink-project/murmurlink/internal/audio"
	"github.com/murmurlink-project/murmurlink/internal/cli"
	"github.com/murmurlink-project/murmurlink/internal/client"
	"github.com/murmurlink-project/murmurlink/internal/config"
	"github.com/murmurlink-project/murmurlink/internal/db"
	"github.com/murmurlink-project/murmurlink/internal/events"
	"github.com/murmurlink-project/murmurlink/internal/telemetry"
	"github.com/murmurlink-project/murmurlink/internal/util"
)

const (
	AppName    = "Murmurlink"
	AppVersion = "1.0.0"
	Banner     = `
  __  __                                  _ _       _
 |  \/  |_   _ _ __ _ __ ___  _   _ _ __ | (_)_ __ | | __
 | |\/| | | | | '__| '_ ' _ \| | | | '__|| | | '_ \| |/ /
 | |  | | |_| | |  | | | | | | |_| | |   | | | | | |   <
 |_|  |_|\__,_|_|  |_| |_| |_|\__,_|_|   |_|_|_| |_|_|\_\
                                                  v%s
 Mumble Voice Client Core & API
`
)

func main() {
	// Print banner
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("starting Murmurlink")

	// Load configuration
	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	logCfg := util.LogConfig{
		Level:      cfg.ApplicationData.Logging.Level,
		Directory:  cfg.ApplicationData.Logging.Directory,
		MaxSizeMB:  cfg.ApplicationData.Logging.MaxSizeMB,
		MaxBackups: cfg.ApplicationData.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Validate configuration
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	// Log system info
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize core components
	eventBus := events.NewEventBus()

	// Open the local database (connection history, volume overrides)
	database, err := db.NewDatabase(cfg.ApplicationData.Database.Path)
	if err != nil {
		log.Warn().Err(err).Msg("failed to open database, persistence disabled")
		database = nil
	}

	// Build the TLS template for the control connection
	tlsConfig, err := buildTLSConfig(cfg.GetServer())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build TLS configuration")
	}

	// Create the voice client core
	voice := client.New(eventBus, audio.NopInput{}, &audio.NopOutput{}, tlsConfig)

	// Seed desired state from configuration
	server := cfg.GetServer()
	for _, name := range server.ListenChannels {
		voice.AddListenChannel(name)
	}

	// Record successful syncs and replay persisted volume overrides
	if database != nil {
		eventBus.Subscribe(events.EventConnected, "db.history", func(ctx context.Context, ev events.Event) error {
			payload, ok := ev.Payload.(events.ConnectedPayload)
			if !ok {
				return nil
			}
			if err := database.RecordConnection(payload.Address, payload.Username); err != nil {
				return err
			}
			if overrides, err := database.VolumeOverrides(); err == nil {
				for name, volume := range overrides {
					voice.SetClientVolumeOverride(name, volume)
				}
			}
			return nil
		})
	}

	// Initialize REST API
	apiServer := api.NewServer(cfg, eventBus, voice, database)

	// Initialize MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if cfg.ApplicationData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus, voice)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// Initialize CLI
	cliHandler := cli.NewCLI(cfg, eventBus, voice, database)

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup

	// Task 1: Connect the voice client and keep the desired channel applied
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().
			Str("addr", server.Address).
			Str("username", server.Username).
			Msg("starting voice client")

		done := voice.Connect(server.Address, server.Username)
		select {
		case info := <-done:
			log.Info().Str("addr", info.Address).Msg("voice client synced with server")
			if server.Channel != "" {
				voice.SetChannel(server.Channel)
			}
		case <-ctx.Done():
		}
	}()

	// Task 2: REST API server
	if cfg.ApplicationData.API.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", cfg.ApplicationData.API.Port).Msg("starting REST API server")
			if err := apiServer.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("API server failed (non-fatal)")
			}
		}()
	}

	// Task 3: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 4: Interactive CLI
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shutdownCh := make(chan struct{})
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, ev events.Event) error {
		close(shutdownCh)
		return nil
	})

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested")
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Disconnect the voice client first so the server sees a clean leave
	select {
	case <-voice.Disconnect():
	case <-time.After(5 * time.Second):
		log.Warn().Msg("voice disconnect timed out")
	}
	voice.Close()

	// Cancel the root context to signal all goroutines
	cancel()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timed out, forcing exit")
	}

	if database != nil {
		database.Close()
	}

	// Stop the event bus last
	eventBus.Stop()

	log.Info().Msg("Murmurlink stopped")
}

// buildTLSConfig assembles the control-connection TLS template from the
// server configuration: optional client certificate, and either normal CA
// verification, fingerprint pinning, or (last resort) no verification.
func buildTLSConfig(server config.ServerConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if server.CertFile != "" && server.KeyFile != "" {
		if _, err := os.Stat(server.CertFile); os.IsNotExist(err) {
			if err := util.GenerateSelfSignedCert(server.CertFile, server.KeyFile); err != nil {
				return nil, fmt.Errorf("failed to generate client certificate: %w", err)
			}
		}
		cert, err := tls.LoadX509KeyPair(server.CertFile, server.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if server.ServerFingerprint != "" {
		tlsConfig.InsecureSkipVerify = true
		tlsConfig.VerifyPeerCertificate = util.PinnedVerifier(server.ServerFingerprint)
	} else if server.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	return tlsConfig, nil
}
