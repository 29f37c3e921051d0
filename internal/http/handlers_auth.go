package http

import (
	"net/http"

	"piggybank/internal/auth"
	applog "piggybank/internal/log"
)

// handleLogin shows the sign-in form, signs users in by email and password,
// and registers new accounts when action=register. Without sign-in every
// visitor already has a user, so it just goes home.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.SignInRequired() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if !auth.FromContext(r.Context()).Anonymous() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		s.render(w, r, http.StatusOK, "login.html", loginView{})
	case http.MethodPost:
		body, fail := ParseBodyOrFail(w, r)
		if fail != nil {
			fail.Write(w)
			return
		}
		email, password := body.Get("email"), body.Get("password")
		register := body.Get("action") == "register"
		var (
			user auth.User
			err  error
		)
		if register {
			user, err = s.sessions.Register(r.Context(), w, email, password)
		} else {
			user, err = s.sessions.SignIn(r.Context(), w, email, password)
		}
		logger := applog.FromContext(r.Context())
		if err != nil {
			status, msg := classify(err)
			if status >= http.StatusInternalServerError {
				logger.ErrorContext(r.Context(), "Sign-in failed", applog.FieldError, err)
			} else {
				logger.InfoContext(r.Context(), "Sign-in rejected", applog.FieldError, err)
			}
			s.render(w, r, status, "login.html", loginView{Email: email, Register: register, Error: msg})
			return
		}
		logger.InfoContext(r.Context(), "User signed in",
			applog.FieldComponent, applog.ComponentAuth,
			applog.FieldUserID, user.ID,
			"registered", register)
		redirectHome(w, r)
	default:
		MethodNotAllowedError("GET, POST").Write(w)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if fail := RequirePOST(r); fail != nil {
		fail.Write(w)
		return
	}
	if s.sessions != nil {
		s.sessions.SignOut(w)
	}
	redirectHome(w, r)
}

// redirectHome sends the browser to the page shell, through HX-Redirect for
// htmx requests.
func redirectHome(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		NewHTMXResponse().Redirect("/").Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
