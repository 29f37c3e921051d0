package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	applog "piggybank/internal/log"
)

type appMetrics struct {
	transactionsCreated int64
	transactionsDeleted int64
	goalsCreated        int64
	goalsDeleted        int64
	progressApplied     int64
	serviceErrors       int64
	uptime              time.Time
}

func newAppMetrics() *appMetrics {
	return &appMetrics{uptime: time.Now()}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady reports ready only while the persistence gateway answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"gateway": "ok"}
	status := http.StatusOK
	if err := s.ledger.Ready(ctx); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
		checks["gateway"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{
		"status":    state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if fail := RequireMethod(r, http.MethodGet); fail != nil {
		fail.Write(w)
		return
	}

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	m := s.appMetrics

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v float64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n\n", name, help, name, name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	gauge("http_request_duration_avg_microseconds", "Average request duration", float64(traceMetrics.AverageResponseTime))
	counter("piggybank_transactions_created_total", "Transactions added", atomic.LoadInt64(&m.transactionsCreated))
	counter("piggybank_transactions_deleted_total", "Transactions deleted", atomic.LoadInt64(&m.transactionsDeleted))
	counter("piggybank_goals_created_total", "Goals created", atomic.LoadInt64(&m.goalsCreated))
	counter("piggybank_goals_deleted_total", "Goals deleted", atomic.LoadInt64(&m.goalsDeleted))
	counter("piggybank_goal_progress_total", "Goal progress updates applied", atomic.LoadInt64(&m.progressApplied))
	counter("piggybank_service_errors_total", "Requests that failed in the service layer", atomic.LoadInt64(&m.serviceErrors))
	counter("rate_limit_rejections_total", "Requests rejected by the rate limiter", rateLimitMetrics.LimitedRequests)
	gauge("rate_limit_clients", "Currently tracked rate limit clients", float64(rateLimitMetrics.ClientCount))
	counter("suspicious_requests_total", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	gauge("uptime_seconds", "Application uptime in seconds", time.Since(m.uptime).Seconds())
}
