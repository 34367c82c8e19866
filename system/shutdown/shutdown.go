// Package shutdown tears the running controller down in dependency order.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 10 * time.Second

type Stopper interface {
	Stop()
}

type HTTPServer interface {
	Shutdown(ctx context.Context) error
}

type Waiter interface {
	Wait()
}

// System holds everything that must be released on exit. Nil fields are skipped.
type System struct {
	Scheduler Stopper
	API       HTTPServer
	// Outputs closes every backend, stopping mqtt transitions.
	Outputs io.Closer
	MQTT    io.Closer
	CAN     io.Closer
	// Chips releases pins before their chips.
	Chips    io.Closer
	Events   io.Closer
	Notifier Waiter
	Metrics  io.Closer
}

// Teardown stops the scheduler first so no batch runs against half-closed
// outputs, then releases transports and finally the event log and metrics.
func (s *System) Teardown(ctx context.Context) error {
	var errs []error

	if s.Scheduler != nil {
		s.Scheduler.Stop()
		log.Info().Msg("Scheduler stopped")
	}
	if s.API != nil {
		if err := s.API.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api: %w", err))
		}
	}

	steps := []struct {
		name   string
		closer io.Closer
	}{
		{"outputs", s.Outputs},
		{"mqtt", s.MQTT},
		{"can", s.CAN},
		{"gpio", s.Chips},
		{"event log", s.Events},
	}
	for _, step := range steps {
		if step.closer == nil {
			continue
		}
		if err := step.closer.Close(); err != nil {
			log.Error().Err(err).Str("step", step.name).Msg("Teardown step failed")
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	if s.Notifier != nil {
		s.Notifier.Wait()
	}
	if s.Metrics != nil {
		if err := s.Metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

func Shutdown(s *System) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	if err := s.Teardown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown incomplete")
		os.Exit(1)
	}
	log.Info().Msg("Controller stopped")
	os.Exit(0)
}

func ShutdownWithError(s *System, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Shutdown(s)
}
