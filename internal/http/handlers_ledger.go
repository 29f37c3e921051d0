package http

import (
	"net/http"
	"time"

	"piggybank/internal/auth"
	"piggybank/internal/core"
	"piggybank/internal/ledger"
	applog "piggybank/internal/log"
	"piggybank/internal/services"
)

// handleIndex renders the page shell with the tab and chart from the query.
// Anonymous visitors see the sign-in page when sign-in is required.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if fail := RequireMethod(r, http.MethodGet, http.MethodHead); fail != nil {
		fail.Write(w)
		return
	}
	user := auth.FromContext(r.Context())
	if user.Anonymous() && s.auth.SignInRequired() {
		s.render(w, r, http.StatusOK, "login.html", loginView{})
		return
	}

	snap, err := s.ledger.Snapshot(r.Context(), user.ID)
	if err != nil {
		status, msg := classify(err)
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load page",
			applog.FieldError, err,
			applog.FieldUserID, user.ID)
		s.render(w, r, status, "error.html", map[string]string{"Message": msg})
		return
	}

	query := r.URL.Query()
	s.render(w, r, http.StatusOK, "index.html", pageView{
		User:         user,
		Tab:          ParseTab(query),
		Balance:      newBalanceView(snap.Summary),
		Transactions: newTransactionsView(snap),
		Goals:        newGoalsView(snap),
		Charts:       newChartsView(snap, ParseChart(query)),
	})
}

// partial renders one fragment from a fresh (or cached) snapshot.
func (s *Server) partial(w http.ResponseWriter, r *http.Request, name string, view func(*services.Snapshot) any) {
	if fail := RequireMethod(r, http.MethodGet); fail != nil {
		fail.Write(w)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	user := auth.FromContext(r.Context())
	if user.Anonymous() && s.auth.SignInRequired() {
		// Signed-out pages poll too; they get empty fragments.
		s.render(w, r, http.StatusOK, name, view(&services.Snapshot{Summary: ledger.Summarize(nil, nil)}))
		return
	}
	snap, err := s.ledger.Snapshot(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, name, view(snap))
}

func (s *Server) handleBalancePartial(w http.ResponseWriter, r *http.Request) {
	s.partial(w, r, "balance.html", func(snap *services.Snapshot) any {
		return newBalanceView(snap.Summary)
	})
}

func (s *Server) handleTransactionsPartial(w http.ResponseWriter, r *http.Request) {
	s.partial(w, r, "transactions.html", func(snap *services.Snapshot) any {
		return newTransactionsView(snap)
	})
}

func (s *Server) handleGoalsPartial(w http.ResponseWriter, r *http.Request) {
	s.partial(w, r, "goals.html", func(snap *services.Snapshot) any {
		return newGoalsView(snap)
	})
}

func (s *Server) handleChartsPartial(w http.ResponseWriter, r *http.Request) {
	chart := ParseChart(r.URL.Query())
	s.partial(w, r, "charts.html", func(snap *services.Snapshot) any {
		return newChartsView(snap, chart)
	})
}

type summaryResponse struct {
	UserID string `json:"user_id"`
	core.Summary
	TransactionCount int       `json:"transaction_count"`
	GoalCount        int       `json:"goal_count"`
	FetchedAt        time.Time `json:"fetched_at"`
}

func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}
	user := auth.FromContext(r.Context())
	if user.Anonymous() && s.auth.SignInRequired() {
		writeJSONError(w, core.ErrUnauthenticated)
		return
	}

	snap, err := s.ledger.Snapshot(r.Context(), user.ID)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to build summary",
			applog.FieldError, err,
			applog.FieldUserID, user.ID)
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		UserID:           user.ID,
		Summary:          snap.Summary,
		TransactionCount: len(snap.Transactions),
		GoalCount:        len(snap.Goals),
		FetchedAt:        snap.FetchedAt.UTC(),
	})
}
