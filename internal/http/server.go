// Package http serves the piggy bank web UI, its HTMX partials and the JSON
// summary endpoint.
package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/shopspring/decimal"

	"piggybank/internal/auth"
	"piggybank/internal/core"
	applog "piggybank/internal/log"
	"piggybank/internal/middleware/ratelimit"
	"piggybank/internal/middleware/security"
	"piggybank/internal/middleware/trace"
	"piggybank/internal/services"
	appweb "piggybank/web"
)

// Ledger is the part of services.LedgerService the handlers use.
type Ledger interface {
	Snapshot(ctx context.Context, userID string) (*services.Snapshot, error)
	AddTransaction(ctx context.Context, userID string, n core.NewTransaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id string) error
	AddGoal(ctx context.Context, userID, name string, target decimal.Decimal) (core.Goal, error)
	ApplyGoalProgress(ctx context.Context, userID, id string, amount decimal.Decimal) (core.Goal, error)
	DeleteGoal(ctx context.Context, userID, id string) error
	Ready(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr   string
	Ledger Ledger
	// Auth resolves the user of every request. Sessions must be set as well
	// when sign-in is enabled.
	Auth     auth.Authenticator
	Sessions *auth.Sessions
	Logger   *applog.Logger

	RateLimitPerMinute int
	// Sentry wraps the handler with sentryhttp. Only useful after sentry.Init.
	Sentry bool
}

type Server struct {
	http.Server
	templates *template.Template
	ledger    Ledger
	auth      auth.Authenticator
	sessions  *auth.Sessions
	logger    *applog.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

var bufferPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// NewServer parses the embedded templates and wires routes and middleware.
func NewServer(opts Options) (*Server, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("http server: ledger is required")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("http server: authenticator is required")
	}
	if opts.Auth.SignInRequired() && opts.Sessions == nil {
		return nil, fmt.Errorf("http server: sign-in requires sessions")
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	detector := security.NewDetector()
	rlConfig := ratelimit.DefaultConfig()
	rlConfig.RequestsPerMinute = opts.RateLimitPerMinute

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		templates:        t,
		ledger:           opts.Ledger,
		auth:             opts.Auth,
		sessions:         opts.Sessions,
		logger:           opts.Logger.WithComponent(applog.ComponentHTTP),
		rateLimiter:      ratelimit.NewLimiter(rlConfig),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(opts.Logger, detector.ExtractClientIP),
		appMetrics:       newAppMetrics(),
	}

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("/{$}", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	mux.HandleFunc("/ui/balance", s.handleBalancePartial)
	mux.HandleFunc("/ui/transactions", s.handleTransactionsPartial)
	mux.HandleFunc("/ui/goals", s.handleGoalsPartial)
	mux.HandleFunc("/ui/charts", s.handleChartsPartial)

	mux.HandleFunc("/transactions", s.handleCreateTransaction)
	mux.HandleFunc("/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("/goals", s.handleCreateGoal)
	mux.HandleFunc("/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("/goals/{id}/progress", s.handleGoalProgress)

	mux.HandleFunc("/api/summary", s.handleAPISummary)

	var handler http.Handler = mux
	handler = auth.Middleware(s.auth)(handler)
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = applog.ComponentMiddleware(applog.ComponentHTTP)(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	if opts.Sentry {
		handler = sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(handler)
	}
	s.Handler = handler

	return s, nil
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		sentry.Flush(2 * time.Second)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		TriggerErrorNotification("Slow down! Too many changes in a minute.").
		BodyHTML(`<div class="error">Too many requests. Please try again in a minute.</div>`).
		Write(w)
}

// render executes a template into a buffer first so a failing template
// never leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	if err := s.templates.ExecuteTemplate(buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			"template", name,
			applog.FieldOperation, applog.OpRender)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
