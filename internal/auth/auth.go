// Package auth resolves the user a request acts for.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"piggybank/internal/core"
	"piggybank/internal/gateway"
)

const CookieName = "piggybank_session"

// User is the authenticated identity. The zero User is anonymous.
type User struct {
	ID    string
	Email string
}

func (u User) Anonymous() bool { return u.ID == "" }

// Authenticator resolves the user of a request.
type Authenticator interface {
	Authenticate(r *http.Request) User
	// SignInRequired reports whether anonymous visitors must sign in.
	SignInRequired() bool
}

// Fixed treats every request as the same user.
type Fixed struct {
	User User
}

func NewFixed(userID string) *Fixed {
	return &Fixed{User: User{ID: userID}}
}

func (f *Fixed) Authenticate(*http.Request) User { return f.User }
func (f *Fixed) SignInRequired() bool             { return false }

// Sessions checks email and password against an AccountStore and keeps
// the user signed in with an encrypted, signed cookie.
type Sessions struct {
	accounts      gateway.AccountStore
	encryptionKey string
	signingKey    string
	ttl           time.Duration
	secure        bool
	hashCost      int
	now           func() time.Time
}

type sessionPayload struct {
	UserID  string `json:"uid"`
	Email   string `json:"email"`
	Expires int64  `json:"exp"`
}

// bcrypt ignores input past 72 bytes.
const (
	MinPasswordLength = 8
	maxPasswordLength = 72
)

var (
	ErrInvalidEmail       = errors.New("a valid email address is required")
	ErrInvalidCredentials = errors.New("email or password is incorrect")
	ErrWeakPassword       = errors.New("password must be 8 to 72 bytes long")
)

func NewSessions(accounts gateway.AccountStore, encryptionKey, signingKey string, ttl time.Duration, secure bool) (*Sessions, error) {
	if accounts == nil {
		return nil, errors.New("account store is required")
	}
	if _, err := toKey(encryptionKey); err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	if _, err := toKey(signingKey); err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Sessions{
		accounts:      accounts,
		encryptionKey: encryptionKey,
		signingKey:    signingKey,
		ttl:           ttl,
		secure:        secure,
		hashCost:      bcrypt.DefaultCost,
		now:           time.Now,
	}, nil
}

// WithClock replaces the time source used for expiry.
func (s *Sessions) WithClock(now func() time.Time) *Sessions {
	s.now = now
	return s
}

// WithHashCost sets the bcrypt cost for new passwords.
func (s *Sessions) WithHashCost(cost int) *Sessions {
	s.hashCost = cost
	return s
}

func (s *Sessions) SignInRequired() bool { return true }

// SignIn checks password against the account stored for email and sets a
// session cookie. Unknown emails and wrong passwords both return
// ErrInvalidCredentials and leave w untouched.
func (s *Sessions) SignIn(ctx context.Context, w http.ResponseWriter, email, password string) (User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	acct, err := s.accounts.GetAccount(ctx, normalized)
	if errors.Is(err, core.ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, core.WrapGateway("get account", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	user := User{ID: acct.UserID, Email: acct.Email}
	if err := s.issue(w, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Register creates an account for email and signs it in. An email that
// already has an account is a validation error.
func (s *Sessions) Register(ctx context.Context, w http.ResponseWriter, email, password string) (User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	if len(password) < MinPasswordLength || len(password) > maxPasswordLength {
		return User{}, core.Invalid("password", ErrWeakPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	user := User{ID: UserIDForEmail(normalized), Email: normalized}
	err = s.accounts.CreateAccount(ctx, gateway.Account{
		UserID:       user.ID,
		Email:        normalized,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	})
	if errors.Is(err, core.ErrAccountExists) {
		return User{}, core.Invalid("email", core.ErrAccountExists)
	}
	if err != nil {
		return User{}, core.WrapGateway("create account", err)
	}
	if err := s.issue(w, user); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Sessions) issue(w http.ResponseWriter, user User) error {
	expires := s.now().Add(s.ttl)
	payload, err := json.Marshal(sessionPayload{UserID: user.ID, Email: user.Email, Expires: expires.Unix()})
	if err != nil {
		return err
	}
	value, err := Encrypt(payload, s.encryptionKey, s.signingKey)
	if err != nil {
		return fmt.Errorf("encrypt session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// SignOut clears the session cookie.
func (s *Sessions) SignOut(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Authenticate returns the cookie's user, or the anonymous user when the
// cookie is missing, tampered with or expired.
func (s *Sessions) Authenticate(r *http.Request) User {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return User{}
	}
	plain, err := Decrypt(c.Value, s.encryptionKey, s.signingKey)
	if err != nil {
		slog.DebugContext(r.Context(), "Rejected session cookie", "error", err)
		return User{}
	}
	var p sessionPayload
	if err := json.Unmarshal(plain, &p); err != nil {
		return User{}
	}
	if s.now().Unix() >= p.Expires {
		return User{}
	}
	return User{ID: p.UserID, Email: p.Email}
}

// NormalizeEmail trims and lowercases a bare email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", core.Invalid("email", ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", core.Invalid("email", ErrInvalidEmail)
	}
	return email, nil
}

// UserIDForEmail derives the user id a new account gets.
func UserIDForEmail(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String()
}

type contextKey struct{}

// Middleware resolves the user once per request and stores it in the
// request context.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := a.Authenticate(r)
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the request's user; anonymous when none was set.
func FromContext(ctx context.Context) User {
	u, _ := ctx.Value(contextKey{}).(User)
	return u
}
