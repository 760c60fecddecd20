package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/speedwagon-io/ambilight/internal/lib/logger/sl"
	"github.com/speedwagon-io/ambilight/internal/model"
	"github.com/speedwagon-io/ambilight/internal/monitor"
	"github.com/speedwagon-io/ambilight/internal/storage"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// failures at or above this count report the sensor as unhealthy
const unhealthyAfter = 10

type ComponentHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

type HealthChecker interface {
	Name() string
	Check(ctx context.Context) (Status, string)
}

type Server struct {
	log      *slog.Logger
	address  string
	server   *http.Server
	checkers []HealthChecker
	mu       sync.RWMutex
}

func NewServer(log *slog.Logger, address string) *Server {
	return &Server{
		log:      log,
		address:  address,
		checkers: make([]HealthChecker, 0),
	}
}

func (s *Server) AddChecker(checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = append(s.checkers, checker)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)

	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.address,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting health server", slog.String("address", s.address))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("health server error", sl.Err(err))
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checkers := make([]HealthChecker, len(s.checkers))
	copy(checkers, s.checkers)
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:     StatusHealthy,
		Components: make([]ComponentHealth, 0, len(checkers)),
		Timestamp:  time.Now().UTC(),
	}

	for _, checker := range checkers {
		status, message := checker.Check(ctx)
		response.Components = append(response.Components, ComponentHealth{
			Name:    checker.Name(),
			Status:  status,
			Message: message,
		})

		if status == StatusUnhealthy {
			response.Status = StatusUnhealthy
		} else if status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// SensorHealthChecker reports the monitor's failure streak.
type SensorHealthChecker struct {
	snapshotFunc func() monitor.State
}

func NewSensorHealthChecker(snapshotFunc func() monitor.State) *SensorHealthChecker {
	return &SensorHealthChecker{snapshotFunc: snapshotFunc}
}

func (c *SensorHealthChecker) Name() string {
	return "sensor"
}

func (c *SensorHealthChecker) Check(ctx context.Context) (Status, string) {
	state := c.snapshotFunc()

	switch {
	case state.ConsecutiveFailures == 0:
		return StatusHealthy, ""
	case state.ConsecutiveFailures >= unhealthyAfter:
		return StatusUnhealthy, failureMessage(state)
	default:
		return StatusDegraded, failureMessage(state)
	}
}

func failureMessage(state monitor.State) string {
	if state.LastSuccess.IsZero() {
		return fmt.Sprintf("%d consecutive failures, no successful read yet", state.ConsecutiveFailures)
	}
	return fmt.Sprintf("%d consecutive failures, last success at %s",
		state.ConsecutiveFailures, state.LastSuccess.UTC().Format(time.RFC3339))
}

type StoreHealthChecker struct {
	countFunc  func(ctx context.Context) (int64, error)
	latestFunc func(ctx context.Context) (model.LuxReading, error)
}

func NewStoreHealthChecker(
	countFunc func(ctx context.Context) (int64, error),
	latestFunc func(ctx context.Context) (model.LuxReading, error),
) *StoreHealthChecker {
	return &StoreHealthChecker{countFunc: countFunc, latestFunc: latestFunc}
}

func (c *StoreHealthChecker) Name() string {
	return "store"
}

func (c *StoreHealthChecker) Check(ctx context.Context) (Status, string) {
	count, err := c.countFunc(ctx)
	if err != nil {
		return StatusUnhealthy, err.Error()
	}

	latest, err := c.latestFunc(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return StatusHealthy, fmt.Sprintf("%d readings", count)
	}
	if err != nil {
		return StatusUnhealthy, err.Error()
	}

	return StatusHealthy, fmt.Sprintf("%d readings, last at %s", count, latest.Time().Format(time.RFC3339))
}
