package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/session"
)

type authContextKey string

const currentAccountContextKey authContextKey = "current_account"

// loadSession resolves the session cookie to an account. Unknown or expired
// sessions clear the cookie and continue as a guest.
func (h handler) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skipSessionLoad(r) {
			next.ServeHTTP(w, r)
			return
		}

		token := h.sessionTokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		tokenHash := session.HashToken(token)
		sess, err := h.sessions.FindByTokenHash(ctx, tokenHash)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				h.logger.WarnContext(ctx, "load session failed", slog.Any("error", err))
			}
			h.clearSessionCookie(w, r)
			next.ServeHTTP(w, r)
			return
		}
		now := h.now()
		if sess.ExpiredAt(now) {
			_ = h.sessions.DeleteByTokenHash(ctx, tokenHash)
			h.clearSessionCookie(w, r)
			next.ServeHTTP(w, r)
			return
		}

		current, err := h.accounts.Account(ctx, sess.AccountID)
		if err != nil {
			if !errors.Is(err, account.ErrNotFound) {
				h.logger.WarnContext(ctx, "load session account failed", slog.Any("error", err))
			}
			h.clearSessionCookie(w, r)
			next.ServeHTTP(w, r)
			return
		}

		if now.Sub(sess.LastSeenAt) >= session.TouchInterval {
			if err := h.sessions.Touch(ctx, tokenHash, now); err != nil {
				h.logger.DebugContext(ctx, "touch session failed", slog.Any("error", err))
			}
		}

		ctx = context.WithValue(ctx, currentAccountContextKey, &current)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func skipSessionLoad(r *http.Request) bool {
	if r == nil || r.URL == nil {
		return false
	}
	path := strings.TrimSpace(r.URL.Path)
	if path == "" {
		return false
	}
	if path == "/healthz" || path == "/api/health" {
		return true
	}
	return strings.HasPrefix(path, "/static/") || strings.HasPrefix(path, "/api/")
}

func (h handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentAccountFromContext(r) == nil {
			if isHtmx(r) {
				w.Header().Set("HX-Redirect", "/login")
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h handler) requireGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentAccountFromContext(r) != nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentAccountFromContext(r *http.Request) *account.Account {
	if r == nil {
		return nil
	}
	if a, ok := r.Context().Value(currentAccountContextKey).(*account.Account); ok {
		return a
	}
	return nil
}

func (h handler) createSession(ctx context.Context, a account.Account, meta requestMeta) (string, time.Time, error) {
	rawToken, err := session.NewToken(32)
	if err != nil {
		return "", time.Time{}, err
	}
	now := h.now()
	expiresAt := now.Add(h.sessionTTL)
	err = h.sessions.Create(ctx, session.Session{
		TokenHash:  session.HashToken(rawToken),
		AccountID:  a.ID,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		LastSeenAt: now,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return rawToken, expiresAt, nil
}

// startSession signs a in. A session already attached to the request is
// discarded first so a pre-login cookie never survives authentication.
func (h handler) startSession(w http.ResponseWriter, r *http.Request, a account.Account) error {
	if old := h.sessionTokenFromRequest(r); old != "" {
		_ = h.sessions.DeleteByTokenHash(r.Context(), session.HashToken(old))
	}
	token, expiresAt, err := h.createSession(r.Context(), a, requestMetaFromRequest(r))
	if err != nil {
		return err
	}
	h.setSessionCookie(w, r, token, expiresAt)
	return nil
}

type requestMeta struct {
	IP        string
	UserAgent string
}

func requestMetaFromRequest(r *http.Request) requestMeta {
	ip := normalizedClientIP(r)
	return requestMeta{
		IP:        ip,
		UserAgent: strings.TrimSpace(r.UserAgent()),
	}
}

func (h handler) setSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.sessionCookieSecure(r),
		Expires:  expiresAt,
		MaxAge:   int(expiresAt.Sub(h.now()).Seconds()),
	})
}

func (h handler) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.sessionCookieSecure(r),
		MaxAge:   -1,
	})
}

func (h handler) sessionTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(h.sessionCookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func (h handler) sessionCookieSecure(r *http.Request) bool {
	if h.sessionCookieForceSecure {
		return true
	}
	if strings.EqualFold(h.appEnv, "production") {
		return true
	}
	if r != nil && r.TLS != nil {
		return true
	}
	return r != nil && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
