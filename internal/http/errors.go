package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"piggybank/internal/auth"
	"piggybank/internal/core"
	applog "piggybank/internal/log"
)

// classify maps a service error to a status code and a message that is
// safe to show.
func classify(err error) (int, string) {
	var ve *core.ValidationError
	switch {
	case errors.Is(err, core.ErrNotEnoughMoney):
		return http.StatusUnprocessableEntity, "Not enough money!"
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, validationMessage(ve)
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "That item no longer exists."
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Email or password is incorrect."
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized, "Please sign in first."
	case core.IsGateway(err):
		return http.StatusBadGateway, "Could not reach storage. Please try again."
	default:
		return http.StatusInternalServerError, "Something went wrong."
	}
}

func validationMessage(ve *core.ValidationError) string {
	switch {
	case errors.Is(ve, core.ErrInvalidAmount):
		return "Please enter a valid amount greater than 0!"
	case errors.Is(ve, core.ErrEmptyDescription):
		return "Please tell us what this is for!"
	case errors.Is(ve, core.ErrEmptyName):
		return "Please name your goal!"
	case errors.Is(ve, auth.ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(ve, auth.ErrWeakPassword):
		return "Passwords need 8 to 72 characters."
	case errors.Is(ve, core.ErrAccountExists):
		return "That email already has an account. Sign in instead."
	}
	return ve.Err.Error()
}

// writeServiceError answers an HTMX request that failed in the service
// layer. A not-found answer also refreshes the page, since the view was
// stale.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	atomic.AddInt64(&s.appMetrics.serviceErrors, 1)
	logger := applog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", applog.FieldError, err, applog.FieldPath, r.URL.Path)
	} else {
		logger.InfoContext(r.Context(), "Request rejected",
			applog.FieldError, err,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, status)
	}

	b := ErrorResponse(status, msg)
	switch status {
	case http.StatusNotFound:
		b.TriggerLedgerChanged("stale").TriggerWarningNotification(msg)
	case http.StatusUnauthorized:
		b.TriggerErrorNotification(msg)
		if s.auth.SignInRequired() {
			b.Redirect("/login")
		}
	default:
		b.TriggerErrorNotification(msg)
	}
	b.Write(w)
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	writeJSON(w, status, apiError{Error: msg})
}
