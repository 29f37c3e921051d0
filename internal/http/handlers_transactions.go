package http

import (
	"net/http"
	"sync/atomic"

	"piggybank/internal/auth"
	"piggybank/internal/core"
	applog "piggybank/internal/log"
)

// requireUser writes a 401 and returns false for anonymous requests.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	user := auth.FromContext(r.Context())
	if user.Anonymous() {
		s.writeServiceError(w, r, core.ErrUnauthenticated)
		return user, false
	}
	return user, true
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if fail := RequirePOST(r); fail != nil {
		fail.Write(w)
		return
	}
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	body, fail := ParseBodyOrFail(w, r)
	if fail != nil {
		fail.Write(w)
		return
	}

	txType, err := core.ParseTxType(body.Get("type"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	amount, err := core.ParseAmount(body.Get("amount"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	category, err := core.ParseCategory(body.Get("category"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	tx, err := s.ledger.AddTransaction(r.Context(), user.ID, core.NewTransaction{
		Type:        txType,
		Amount:      amount,
		Category:    category,
		Description: body.Get("description"),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Transaction created",
		applog.NewFields().
			WithUser(user.ID).
			WithTransaction(tx.ID, string(tx.Type), tx.Amount.StringFixed(2), string(tx.Category)).
			WithOperation(applog.OpCreate).
			ToSlice()...)

	NewHTMXResponse().
		TriggerLedgerChanged("transaction").
		TriggerFormReset().
		TriggerSuccessNotification("Transaction added successfully.").
		BodyHTML(`<div class="success">Transaction added successfully.</div>`).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if fail := RequireDeleteOrPOST(r); fail != nil {
		fail.Write(w)
		return
	}
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := s.ledger.DeleteTransaction(r.Context(), user.ID, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.transactionsDeleted, 1)
	NewHTMXResponse().
		TriggerLedgerChanged("transaction").
		TriggerSuccessNotification("Transaction deleted.").
		Write(w)
}
