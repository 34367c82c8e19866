package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/aquactl/db"
	"github.com/thatsimonsguy/aquactl/internal/api"
	"github.com/thatsimonsguy/aquactl/internal/backend"
	"github.com/thatsimonsguy/aquactl/internal/can"
	"github.com/thatsimonsguy/aquactl/internal/config"
	"github.com/thatsimonsguy/aquactl/internal/controllers/schedulecontroller"
	"github.com/thatsimonsguy/aquactl/internal/datadog"
	"github.com/thatsimonsguy/aquactl/internal/gpio"
	"github.com/thatsimonsguy/aquactl/internal/logging"
	"github.com/thatsimonsguy/aquactl/internal/mqtt"
	"github.com/thatsimonsguy/aquactl/internal/notifications"
	"github.com/thatsimonsguy/aquactl/internal/output"
	"github.com/thatsimonsguy/aquactl/internal/schedule"
	"github.com/thatsimonsguy/aquactl/system/shutdown"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Int("outputs", len(cfg.Outputs)).
		Msg("Starting aquactl")

	var driver gpio.Driver = gpio.NewCdevDriver("aquactl")
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED - gpio outputs are simulated in memory")
		driver = gpio.NewFakeDriver()
	}
	chips := gpio.NewChips(driver, cfg.InvertOutput)
	canPool := can.NewPool(can.OpenSocket)
	mqttPool := mqtt.NewPool(mqtt.Dialer(cfg.MQTTClientID))

	events, err := db.Open(cfg.EventDB)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.EventDB).Msg("Failed to open event log")
	}

	metrics := datadog.InitMetrics(cfg.Datadog)
	notifier := notifications.Init(cfg.NtfyURL, cfg.NtfyTopic)

	factory := output.NewFactory()
	backend.Register(factory, backend.Deps{
		Chips:       chips,
		DefaultChip: cfg.GPIOChip,
		CAN:         canPool,
		MQTT:        mqttPool,
		HTTP:        &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second},
	})
	registry := output.NewRegistry(factory, events, metrics, notifier)

	sys := &shutdown.System{
		Outputs:  registry,
		MQTT:     mqttPool,
		CAN:      canPool,
		Chips:    chips,
		Events:   events,
		Notifier: notifier,
		Metrics:  metrics,
	}

	for _, d := range cfg.Outputs {
		if err := registry.Add(d); err != nil {
			shutdown.ShutdownWithError(sys, err, "Failed to create configured output")
		}
	}

	actions := schedule.NewActions()
	scheduler := schedulecontroller.New(registry, actions,
		schedulecontroller.WithTick(time.Duration(cfg.TickSeconds)*time.Second),
		schedulecontroller.WithMetrics(metrics),
	)
	sys.Scheduler = scheduler

	parser := schedule.NewParser(cfg.DateFormat)
	loader := &schedule.Loader{
		Outputs:   registry,
		Actions:   actions,
		Scheduler: scheduler,
		Parser:    parser,
	}
	if cfg.ScheduleDir != "" {
		loaded, err := loader.LoadDir(cfg.ScheduleDir)
		if err != nil {
			// files that loaded stay active
			log.Error().Err(err).Str("dir", cfg.ScheduleDir).Msg("Some schedule files failed to load")
		}
		log.Info().Int("schedules", len(loaded)).Msg("Schedules loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.EventRetentionDays > 0 {
		go pruneEvents(ctx, events, time.Duration(cfg.EventRetentionDays)*24*time.Hour)
	}

	scheduler.Start(ctx)

	server := api.NewServer(registry, scheduler, loader, events)
	sys.API = server
	go func() {
		if err := server.Start(cfg.APIPort); err != nil {
			log.Error().Err(err).Msg("REST API server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdown.Shutdown(sys)
}

func pruneEvents(ctx context.Context, events *db.EventLog, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := events.Prune(time.Now().Add(-retention))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to prune event log")
		} else if n > 0 {
			log.Debug().Int64("deleted", n).Msg("Pruned event log")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
