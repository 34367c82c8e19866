package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/aquactl/internal/output"
)

type Config struct {
	Enabled   bool     `json:"enabled"`
	Addr      string   `json:"addr"`
	Namespace string   `json:"namespace"`
	Tags      []string `json:"tags"`
}

// client is the part of *statsd.Client in use.
type client interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Incr(name string, tags []string, rate float64) error
	Close() error
}

// Metrics emits DogStatsD metrics. A nil *Metrics, or one without a client,
// drops everything.
type Metrics struct {
	client client
}

func InitMetrics(cfg Config) *Metrics {
	if !cfg.Enabled {
		log.Info().Msg("Datadog metrics disabled")
		return &Metrics{}
	}

	dogstatsd, err := statsd.New(cfg.Addr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return &Metrics{}
	}

	dogstatsd.Namespace = cfg.Namespace
	dogstatsd.Tags = cfg.Tags

	log.Info().
		Str("addr", cfg.Addr).
		Str("namespace", cfg.Namespace).
		Strs("tags", cfg.Tags).
		Msg("Datadog metrics initialized")
	return &Metrics{client: dogstatsd}
}

func (m *Metrics) Gauge(name string, value float64, tags ...string) {
	if m == nil || m.client == nil {
		return
	}
	if err := m.client.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func (m *Metrics) Incr(name string, tags ...string) {
	if m == nil || m.client == nil {
		return
	}
	if err := m.client.Incr(name, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
	}
}

// OutputWritten counts every write and gauges numeric and switch values.
func (m *Metrics) OutputWritten(e output.Event) {
	result := "ok"
	if e.Err != nil {
		result = "error"
	}
	m.Incr("output.write", "output:"+e.Output, "op:"+string(e.Op), "result:"+result)
	if v, ok := e.Value.Float(); ok {
		m.Gauge("output.value", v, "output:"+e.Output)
	}
}

// Close flushes buffered metrics.
func (m *Metrics) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}
