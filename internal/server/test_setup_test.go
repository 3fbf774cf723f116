package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/account/accounttest"
	"github.com/benpsk/account-starter/internal/config"
	"github.com/benpsk/account-starter/internal/facebook"
	"github.com/benpsk/account-starter/internal/session"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	testCSRFToken  = "test-csrf-token"
	testResetToken = "0123456789abcdef0123456789abcdef"
	testAPISecret  = "test-api-secret-test-api-secret-0123"
)

type fixture struct {
	h        handler
	router   http.Handler
	store    *accounttest.MemStore
	sessions *memSessionStore
	mailer   *accounttest.Sender
	facebook *fakeFacebook
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		store:    accounttest.NewMemStore(),
		sessions: newMemSessionStore(),
		mailer:   &accounttest.Sender{},
		facebook: &fakeFacebook{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hasher := account.NewBcryptHasher(bcrypt.MinCost)
	resets := account.NewPasswordReset(fx.store, hasher, fx.mailer,
		account.TokenFunc(func() (string, error) { return testResetToken, nil }),
		account.ResetConfig{Window: time.Hour, BaseURL: "http://127.0.0.1:8080", From: "noreply@example.com"},
		logger,
	)
	resets.SetClock(fx.clock)

	cfg := config.Config{
		AppName: "Account Starter",
		AppEnv:  "test",
		AppURL:  "http://127.0.0.1:8080",
		Auth: config.AuthConfig{
			SessionCookieName: "test_session",
			SessionTTL:        24 * time.Hour,
			API: config.APIAuthConfig{
				AccessTokenSecret: testAPISecret,
				AccessTokenTTL:    10 * time.Minute,
			},
		},
	}
	fx.h = newHandler(cfg, Deps{
		Logger:   logger,
		Accounts: account.NewResolver(fx.store, hasher, logger),
		Resets:   resets,
		Sessions: fx.sessions,
		Facebook: fx.facebook,
	})
	fx.h.now = fx.clock
	fx.h.limiter.now = fx.clock
	fx.router = fx.h.routes(appOrigins(cfg.AppURL))
	return fx
}

func (fx *fixture) clock() time.Time {
	return fx.now
}

// signUp creates a local account directly through the resolver.
func (fx *fixture) signUp(t *testing.T, email, password string) account.Account {
	t.Helper()
	out := fx.h.accounts.SignUp(context.Background(), email, password)
	if out.Kind != account.KindCreated {
		t.Fatalf("sign up %s: %s", email, out)
	}
	return out.Account
}

// sessionFor stores a live session for a and returns its raw cookie token.
func (fx *fixture) sessionFor(t *testing.T, a account.Account) string {
	t.Helper()
	raw := "raw-" + uuid.NewString()
	err := fx.sessions.Create(context.Background(), session.Session{
		TokenHash:  session.HashToken(raw),
		AccountID:  a.ID,
		ExpiresAt:  fx.now.Add(time.Hour),
		CreatedAt:  fx.now,
		LastSeenAt: fx.now,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return raw
}

// do sends req through the full router.
func (fx *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

// postForm builds a form post carrying a valid CSRF cookie and field.
func (fx *fixture) postForm(path string, values url.Values, sessionToken string) *http.Request {
	if values == nil {
		values = url.Values{}
	}
	values.Set("csrf_token", testCSRFToken)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRFToken})
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: fx.h.sessionCookieName, Value: sessionToken})
	}
	return req
}

func (fx *fixture) get(path, sessionToken string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: fx.h.sessionCookieName, Value: sessionToken})
	}
	return req
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func assertCookieCleared(t *testing.T, rec *httptest.ResponseRecorder, cookieName string) {
	t.Helper()
	if c := responseCookie(rec, cookieName); c != nil && c.MaxAge < 0 {
		return
	}
	t.Fatalf("expected cleared cookie %q", cookieName)
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, wantPath string) *url.URL {
	t.Helper()
	if rec.Code != http.StatusSeeOther && rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want redirect; body=%s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Path != wantPath {
		t.Fatalf("redirect path = %q, want %q (location %q)", loc.Path, wantPath, rec.Header().Get("Location"))
	}
	return loc
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session
}

var _ session.Store = (*memSessionStore)(nil)

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]session.Session{}}
}

func (s *memSessionStore) Create(ctx context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.TokenHash] = sess
	return nil
}

func (s *memSessionStore) FindByTokenHash(ctx context.Context, tokenHash string) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (s *memSessionStore) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return session.ErrNotFound
	}
	sess.LastSeenAt = at
	s.sessions[tokenHash] = sess
	return nil
}

func (s *memSessionStore) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *memSessionStore) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, sess := range s.sessions {
		if sess.AccountID == accountID {
			delete(s.sessions, hash)
		}
	}
	return nil
}

func (s *memSessionStore) forAccount(accountID uuid.UUID) []session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.Session
	for _, sess := range s.sessions {
		if sess.AccountID == accountID {
			out = append(out, sess)
		}
	}
	return out
}

// fakeFacebook accepts the code "good-code" and returns profile.
type fakeFacebook struct {
	mu           sync.Mutex
	profile      account.ProviderProfile
	user         facebook.GraphUser
	lastVerifier string
}

func (f *fakeFacebook) AuthCodeURL(state, verifier string) string {
	return "https://www.facebook.test/dialog/oauth?" + url.Values{"state": {state}}.Encode()
}

func (f *fakeFacebook) Exchange(ctx context.Context, code, verifier string) (account.ProviderProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastVerifier = verifier
	if code != "good-code" {
		return account.ProviderProfile{}, facebook.ErrExchange
	}
	return f.profile, nil
}

func (f *fakeFacebook) User(ctx context.Context, accessToken, userID string) (facebook.GraphUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if accessToken != f.profile.AccessToken {
		return facebook.GraphUser{}, errors.New("invalid oauth access token")
	}
	return f.user, nil
}
