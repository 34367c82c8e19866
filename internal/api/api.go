package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/aquactl/db"
	"github.com/thatsimonsguy/aquactl/internal/controllers/schedulecontroller"
	"github.com/thatsimonsguy/aquactl/internal/output"
	"github.com/thatsimonsguy/aquactl/internal/schedule"
	"github.com/thatsimonsguy/aquactl/internal/value"
)

// Outputs is the part of the output registry the API exposes.
type Outputs interface {
	IDs() []string
	Type(id string) string
	CurrentState(id string) (value.Value, error)
	IsOverridden(id string) (value.Value, bool, error)
	OverrideWith(id string, v value.Value) error
	RestoreControl(id string) error
}

type Schedules interface {
	Schedules() []schedulecontroller.Status
}

type ScheduleLoader interface {
	Load(data []byte) (*schedule.Schedule, error)
}

type Events interface {
	Recent(limit int) ([]db.Entry, error)
	ForOutput(id string, limit int) ([]db.Entry, error)
}

type Server struct {
	outputs   Outputs
	schedules Schedules
	loader    ScheduleLoader
	events    Events

	httpServer *http.Server
}

type OutputResponse struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	State      value.Value  `json:"state"`
	Override   *value.Value `json:"override,omitempty"`
	Overridden bool         `json:"overridden"`
}

type OverrideRequest struct {
	Value json.RawMessage `json:"value"`
}

type ScheduleCreatedResponse struct {
	Title   string `json:"title"`
	Events  int    `json:"events"`
	Period  int    `json:"period_in_days"`
	Pending bool   `json:"pending"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the API. events may be nil when no event log is configured.
func NewServer(outputs Outputs, schedules Schedules, loader ScheduleLoader, events Events) *Server {
	return &Server{
		outputs:   outputs,
		schedules: schedules,
		loader:    loader,
		events:    events,
	}
}

// Handler returns the routed API including CORS handling.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/outputs", s.getOutputs)
		r.Route("/outputs/{id}", func(r chi.Router) {
			r.Get("/", s.getOutput)
			r.Put("/override", s.setOverride)
			r.Delete("/override", s.clearOverride)
		})
		r.Get("/schedules", s.getSchedules)
		r.Post("/schedules", s.createSchedule)
		r.Get("/events", s.getEvents)
	})
	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("address", addr).Msg("Starting REST API server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) describe(id string) (OutputResponse, error) {
	state, err := s.outputs.CurrentState(id)
	if err != nil {
		return OutputResponse{}, err
	}
	ov, overridden, err := s.outputs.IsOverridden(id)
	if err != nil {
		return OutputResponse{}, err
	}
	resp := OutputResponse{ID: id, Type: s.outputs.Type(id), State: state, Overridden: overridden}
	if overridden {
		resp.Override = &ov
	}
	return resp, nil
}

func (s *Server) getOutputs(w http.ResponseWriter, r *http.Request) {
	response := []OutputResponse{}
	for _, id := range s.outputs.IDs() {
		resp, err := s.describe(id)
		if err != nil {
			// removed between IDs and describe
			continue
		}
		response = append(response, resp)
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) getOutput(w http.ResponseWriter, r *http.Request) {
	resp, err := s.describe(chi.URLParam(r, "id"))
	if err != nil {
		s.writeOutputError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) setOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Value) == 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	current, err := s.outputs.CurrentState(id)
	if err != nil {
		s.writeOutputError(w, err)
		return
	}
	v, err := value.Parse(req.Value, current.Kind())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.outputs.OverrideWith(id, v); err != nil {
		s.writeOutputError(w, err)
		return
	}

	log.Info().Str("output", id).Str("value", v.Serialize()).Msg("Output overridden via API")
	s.respondOutput(w, id)
}

func (s *Server) clearOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.outputs.RestoreControl(id); err != nil {
		s.writeOutputError(w, err)
		return
	}

	log.Info().Str("output", id).Msg("Output override cleared via API")
	s.respondOutput(w, id)
}

func (s *Server) respondOutput(w http.ResponseWriter, id string) {
	resp, err := s.describe(id)
	if err != nil {
		s.writeOutputError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getSchedules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.schedules.Schedules())
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	sched, err := s.loader.Load(body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schedulecontroller.ErrConflict) || errors.Is(err, output.ErrDuplicateOutput) || errors.Is(err, schedule.ErrDuplicateAction) {
			status = http.StatusConflict
		}
		log.Warn().Err(err).Msg("Rejected schedule via API")
		s.writeError(w, status, err.Error())
		return
	}

	log.Info().Str("schedule", sched.Title).Msg("Schedule added via API")
	s.writeJSON(w, http.StatusCreated, ScheduleCreatedResponse{
		Title:   sched.Title,
		Events:  len(sched.Events),
		Period:  sched.Period,
		Pending: true,
	})
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Event log disabled")
		return
	}

	limit := db.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	var (
		entries []db.Entry
		err     error
	)
	if id := r.URL.Query().Get("output"); id != "" {
		entries, err = s.events.ForOutput(id, limit)
	} else {
		entries, err = s.events.Recent(limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to query events")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []db.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) writeOutputError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, output.ErrUnknownOutput):
		s.writeError(w, http.StatusNotFound, "Output not found")
	case errors.Is(err, output.ErrIncompatibleValue):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		// recorded, but the transport write failed
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
