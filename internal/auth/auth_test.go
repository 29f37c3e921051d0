package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"piggybank/internal/core"
	"piggybank/internal/gateway/memory"
)

var (
	encKey = strings.Repeat("e", 32)
	sigKey = strings.Repeat("s", 32)
)

func TestEncryptDecrypt(t *testing.T) {
	enc, err := Encrypt([]byte("hello"), encKey, sigKey)
	require.NoError(t, err)

	plain, err := Decrypt(enc, encKey, sigKey)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plain))

	_, err = Decrypt(enc, encKey, strings.Repeat("x", 32))
	assert.Error(t, err, "wrong signing key must fail")

	_, err = Decrypt("no-dot", encKey, sigKey)
	assert.Error(t, err)

	_, err = Encrypt([]byte("x"), "short", sigKey)
	assert.Error(t, err)
}

func TestToKeyUsesKeyMaterial(t *testing.T) {
	a, err := toKey(strings.Repeat("a", 32))
	require.NoError(t, err)
	b, err := toKey(strings.Repeat("b", 32))
	require.NoError(t, err)
	assert.NotEqual(t, *a, *b)
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"  Kid@Example.COM ", "kid@example.com", false},
		{"", "", true},
		{"not-an-email", "", true},
		{"Name <kid@example.com>", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeEmail(tt.in)
		if tt.wantErr {
			assert.True(t, core.IsValidation(err), "input %q", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestUserIDForEmailIsStable(t *testing.T) {
	a := UserIDForEmail("kid@example.com")
	assert.Equal(t, a, UserIDForEmail("kid@example.com"))
	assert.NotEqual(t, a, UserIDForEmail("other@example.com"))
	assert.Len(t, a, 36)
}

func newSessions(t *testing.T, secure bool) *Sessions {
	t.Helper()
	s, err := NewSessions(memory.New(), encKey, sigKey, time.Hour, secure)
	require.NoError(t, err)
	return s.WithHashCost(bcrypt.MinCost)
}

func TestSessionRoundTrip(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	s := newSessions(t, true).WithClock(func() time.Time { return now })
	ctx := context.Background()

	rec := httptest.NewRecorder()
	user, err := s.Register(ctx, rec, " Kid@Example.com", "oink-oink-42")
	require.NoError(t, err)
	assert.Equal(t, "kid@example.com", user.Email)
	assert.Equal(t, UserIDForEmail("kid@example.com"), user.ID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	assert.Equal(t, user, s.Authenticate(req))

	rec = httptest.NewRecorder()
	again, err := s.SignIn(ctx, rec, "KID@example.com", "oink-oink-42")
	require.NoError(t, err)
	assert.Equal(t, user, again)
	require.Len(t, rec.Result().Cookies(), 1)

	now = now.Add(2 * time.Hour)
	assert.True(t, s.Authenticate(req).Anonymous(), "expired session must be rejected")
}

func TestSignInRequiresPassword(t *testing.T) {
	s := newSessions(t, false)
	ctx := context.Background()
	_, err := s.Register(ctx, httptest.NewRecorder(), "victim@example.com", "correct horse")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"no password", "victim@example.com", ""},
		{"wrong password", "victim@example.com", "battery staple"},
		{"password prefix", "victim@example.com", "correct"},
		{"unknown email", "nobody@example.com", "correct horse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			user, err := s.SignIn(ctx, rec, tt.email, tt.password)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
			assert.True(t, user.Anonymous())
			assert.Empty(t, rec.Result().Cookies(), "no session without the password")
		})
	}
}

func TestRegisterRejectsTakenEmailAndWeakPassword(t *testing.T) {
	s := newSessions(t, false)
	ctx := context.Background()
	_, err := s.Register(ctx, httptest.NewRecorder(), "kid@example.com", "first-password")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{"taken email", "Kid@Example.com", "second-password", "email"},
		{"short password", "new@example.com", "short", "password"},
		{"long password", "new@example.com", strings.Repeat("p", 73), "password"},
		{"bad email", "not-an-email", "long-enough", "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			_, err := s.Register(ctx, rec, tt.email, tt.password)
			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, rec.Result().Cookies())
		})
	}

	// The first password still works.
	_, err = s.SignIn(ctx, httptest.NewRecorder(), "kid@example.com", "first-password")
	assert.NoError(t, err)
	_, err = s.SignIn(ctx, httptest.NewRecorder(), "kid@example.com", "second-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	s := newSessions(t, false)

	rec := httptest.NewRecorder()
	_, err := s.Register(context.Background(), rec, "kid@example.com", "oink-oink-42")
	require.NoError(t, err)
	c := rec.Result().Cookies()[0]
	flip := "A"
	if c.Value[0] == 'A' {
		flip = "B"
	}
	c.Value = flip + c.Value[1:]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	assert.True(t, s.Authenticate(req).Anonymous())
}

func TestSignOutClearsCookie(t *testing.T) {
	s := newSessions(t, false)
	rec := httptest.NewRecorder()
	s.SignOut(rec)
	c := rec.Result().Cookies()[0]
	assert.Equal(t, CookieName, c.Name)
	assert.Equal(t, -1, c.MaxAge)
}

func TestNewSessionsRejectsBadInput(t *testing.T) {
	_, err := NewSessions(memory.New(), "short", sigKey, time.Hour, false)
	assert.Error(t, err)
	_, err = NewSessions(nil, encKey, sigKey, time.Hour, false)
	assert.Error(t, err)
}

func TestMiddlewareStoresUser(t *testing.T) {
	var got User
	h := Middleware(NewFixed("demo"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "demo", got.ID)
	assert.False(t, NewFixed("demo").SignInRequired())
}
