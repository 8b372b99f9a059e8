package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dealfanatics/rss-pipeline/internal/core/ports"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	readyPingTimeout  = 3 * time.Second

	statusOK    = "ok"
	statusReady = "ready"
	statusDown  = "unavailable"
)

// Server serves liveness, readiness and Prometheus metrics.
type Server struct {
	checks map[string]ports.Pinger
	port   int
	logger *zerolog.Logger
}

// ReadinessReport is the /readyz response body.
type ReadinessReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewServer creates the health server. Every named check must answer Ping for
// /readyz to report ready; with no checks the process is always ready.
func NewServer(checks map[string]ports.Pinger, port int, logger *zerolog.Logger) *Server {
	return &Server{
		checks: checks,
		port:   port,
		logger: logger,
	}
}

// Handler returns the mux serving /healthz, /readyz and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		report := s.Readiness(r.Context())

		code := http.StatusOK
		if report.Status != statusReady {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Readiness pings every check, in name order, each under its own timeout.
func (s *Server) Readiness(ctx context.Context) ReadinessReport {
	report := ReadinessReport{Status: statusReady, Checks: make(map[string]string, len(s.checks))}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		pingCtx, cancel := context.WithTimeout(ctx, readyPingTimeout)
		err := s.checks[name].Ping(pingCtx)

		cancel()

		if err != nil {
			s.logger.Warn().Err(err).Str("check", name).Msg("readiness check failed")

			report.Status = statusDown
			report.Checks[name] = err.Error()

			continue
		}

		report.Checks[name] = statusOK
	}

	return report
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		defer cancel()

		//nolint:errcheck,contextcheck // shutdown in signal handler is best-effort, non-inherited context intentional
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.port).Int("checks", len(s.checks)).Msg("health server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}
