package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/aquactl/internal/backend"
	"github.com/thatsimonsguy/aquactl/internal/datadog"
	"github.com/thatsimonsguy/aquactl/internal/output"
)

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string

	GPIOChip     string `json:"gpio_chip"`
	InvertOutput bool   `json:"invert_output"`
	SafeMode     bool   `json:"safe_mode"`

	DateFormat  string `json:"date_format"`
	ScheduleDir string `json:"schedule_dir"`
	EventDB     string `json:"event_db"`

	// EventRetentionDays bounds the event log; 0 keeps everything.
	EventRetentionDays int `json:"event_retention_days"`

	APIPort            int    `json:"api_port"`
	TickSeconds        int    `json:"tick_seconds"`
	HTTPTimeoutSeconds int    `json:"http_timeout_seconds"`
	MQTTClientID       string `json:"mqtt_client_id"`

	Outputs []output.Description `json:"outputs"`

	Datadog datadog.Config `json:"datadog"`

	NtfyTopic string `json:"ntfy_topic"`
	NtfyURL   string `json:"ntfy_url"`
}

func Load() Config {
	var configFile, logLevel, logFile string

	flag.StringVar(&configFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&logFile, "log-file", "/var/log/aquactl.log", "Path to log file")
	flag.Parse()

	cfg, err := FromFile(configFile)
	if err != nil {
		panic(err.Error())
	}
	cfg.LogLevel = parseLogLevel(logLevel)
	cfg.LogFile = logFile

	cfg.validate()
	return cfg
}

// FromFile reads a config file and fills in defaults. It does not validate.
func FromFile(path string) (Config, error) {
	var cfg Config
	cfg.ConfigFile = path

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("Failed to load config file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("Failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.GPIOChip == "" {
		cfg.GPIOChip = "/dev/gpiochip0"
	}
	if cfg.DateFormat == "" {
		cfg.DateFormat = "2006-01-02"
	}
	if cfg.EventDB == "" {
		cfg.EventDB = "data/events.db"
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = 8080
	}
	if cfg.TickSeconds == 0 {
		cfg.TickSeconds = 1
	}
	if cfg.HTTPTimeoutSeconds == 0 {
		cfg.HTTPTimeoutSeconds = 5
	}
	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = "aquactl"
	}
	if cfg.Datadog.Addr == "" {
		cfg.Datadog.Addr = "127.0.0.1:8125"
	}
	if cfg.Datadog.Namespace == "" {
		cfg.Datadog.Namespace = "aquactl."
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var (
		missingFields []string
		ids           = map[string]bool{}
		duplicates    []string
		usedPins      = map[string]string{}
		conflicts     []string
	)

	for i, o := range cfg.Outputs {
		if o.ID == "" {
			missingFields = append(missingFields, fmt.Sprintf("outputs[%d].id", i))
			continue
		}
		if o.Type == "" {
			missingFields = append(missingFields, fmt.Sprintf("outputs[%d].type", i))
		}
		if ids[o.ID] {
			duplicates = append(duplicates, o.ID)
		}
		ids[o.ID] = true

		if o.Type != backend.TypeGPIO {
			continue
		}
		line, err := backend.ParseGPIODescription(o.Description, cfg.GPIOChip)
		if err != nil {
			missingFields = append(missingFields, "outputs."+o.ID+".description.pin")
			continue
		}
		key := fmt.Sprintf("%s:%d", line.Chip, line.Pin)
		if other, exists := usedPins[key]; exists {
			conflicts = append(conflicts, fmt.Sprintf("%s and %s both use pin %d of %s", o.ID, other, line.Pin, line.Chip))
		} else {
			usedPins[key] = o.ID
		}
	}

	if cfg.TickSeconds < 0 || cfg.HTTPTimeoutSeconds < 0 {
		panic("tick_seconds and http_timeout_seconds must not be negative")
	}
	if len(missingFields) > 0 {
		panic("Missing required output config fields: " + strings.Join(missingFields, ", "))
	}
	if len(duplicates) > 0 {
		panic("Duplicate output ids: " + strings.Join(duplicates, ", "))
	}
	if len(conflicts) > 0 {
		panic("Conflicting GPIO pins: " + strings.Join(conflicts, ", "))
	}
}
