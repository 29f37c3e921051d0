package http

import (
	"net/http"
	"sync/atomic"

	"piggybank/internal/core"
	applog "piggybank/internal/log"
)

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
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

	name, err := core.ValidateText("name", body.Get("name"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	target, err := core.ParseAmount(body.Get("target_amount"))
	if err != nil {
		s.writeServiceError(w, r, core.Invalid("target_amount", core.ErrInvalidAmount))
		return
	}

	goal, err := s.ledger.AddGoal(r.Context(), user.ID, name, target)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.goalsCreated, 1)
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Goal created",
		applog.FieldUserID, user.ID,
		applog.FieldEntityID, goal.ID,
		applog.FieldAmount, goal.TargetAmount.StringFixed(2))

	NewHTMXResponse().
		TriggerLedgerChanged("goal").
		TriggerFormReset().
		TriggerSuccessNotification("Goal Created! Let's save for " + goal.Name + "!").
		BodyHTML(`<div class="success">Goal Created!</div>`).
		Write(w)
}

func (s *Server) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
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

	amount, err := core.ParseAmount(body.Get("amount"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	goal, err := s.ledger.ApplyGoalProgress(r.Context(), user.ID, r.PathValue("id"), amount)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.progressApplied, 1)
	msg := "Progress Updated! Added " + formatDollars(amount) + " to " + goal.Name + "."
	if !goal.CurrentAmount.LessThan(goal.TargetAmount) {
		msg = "Goal Reached! " + goal.Name + " is fully saved."
	}
	NewHTMXResponse().
		TriggerLedgerChanged("goal").
		TriggerSuccessNotification(msg).
		Write(w)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if fail := RequireDeleteOrPOST(r); fail != nil {
		fail.Write(w)
		return
	}
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	if err := s.ledger.DeleteGoal(r.Context(), user.ID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.goalsDeleted, 1)
	NewHTMXResponse().
		TriggerLedgerChanged("goal").
		TriggerSuccessNotification("Goal deleted.").
		Write(w)
}
