package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/config"
	"github.com/benpsk/account-starter/internal/facebook"
	"github.com/benpsk/account-starter/internal/session"
	"github.com/benpsk/account-starter/internal/web/components"
	"github.com/benpsk/account-starter/internal/web/pages"
	"github.com/go-chi/chi/v5/middleware"
)

// OAuthProvider is the Facebook client used for login, linking and the
// Graph API page.
type OAuthProvider interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (account.ProviderProfile, error)
	User(ctx context.Context, accessToken, userID string) (facebook.GraphUser, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer is built from. DB and Facebook
// may be nil.
type Deps struct {
	Logger   *slog.Logger
	DB       Pinger
	Accounts *account.Resolver
	Resets   *account.PasswordReset
	Sessions session.Store
	Facebook OAuthProvider
}

type handler struct {
	db       Pinger
	logger   *slog.Logger
	accounts *account.Resolver
	resets   *account.PasswordReset
	sessions session.Store
	facebook OAuthProvider
	flows    *oauthFlowStore
	limiter  *authRateLimiter

	appName                  string
	appURL                   string
	appEnv                   string
	sessionCookieName        string
	sessionTTL               time.Duration
	sessionCookieForceSecure bool
	apiAccessTokenSecret     string
	apiAccessTokenTTL        time.Duration
	now                      func() time.Time
}

func newHandler(cfg config.Config, deps Deps) handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cookieName := strings.TrimSpace(cfg.Auth.SessionCookieName)
	if cookieName == "" {
		cookieName = "account_session"
	}
	sessionTTL := cfg.Auth.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 14 * 24 * time.Hour
	}
	return handler{
		db:                       deps.DB,
		logger:                   logger,
		accounts:                 deps.Accounts,
		resets:                   deps.Resets,
		sessions:                 deps.Sessions,
		facebook:                 deps.Facebook,
		flows:                    newOAuthFlowStore(10 * time.Minute),
		limiter:                  newAuthRateLimiter(defaultAuthRateLimitRequests, defaultAuthRateLimitWindow).withPolicies(scopedRateLimits),
		appName:                  strings.TrimSpace(cfg.AppName),
		appURL:                   strings.TrimRight(strings.TrimSpace(cfg.AppURL), "/"),
		appEnv:                   strings.TrimSpace(cfg.AppEnv),
		sessionCookieName:        cookieName,
		sessionTTL:               sessionTTL,
		sessionCookieForceSecure: cfg.Auth.CookieSecure,
		apiAccessTokenSecret:     strings.TrimSpace(cfg.Auth.API.AccessTokenSecret),
		apiAccessTokenTTL:        cfg.Auth.API.AccessTokenTTL,
		now:                      time.Now,
	}
}

func (h handler) homePage(w http.ResponseWriter, r *http.Request) {
	base := h.pageBase(r)
	if isHtmx(r) {
		h.renderPage(w, r, pages.HomeContent(base))
		return
	}
	h.renderPage(w, r, pages.HomePage(base))
}

func (h handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	payload := map[string]any{"status": "ok", "database": "up"}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			payload["status"] = "degraded"
			payload["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, payload)
}

func isHtmx(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// pageBase collects the layout data for the current request.
func (h handler) pageBase(r *http.Request) pages.Base {
	base := pages.Base{
		AppName:   h.appName,
		AppURL:    h.appURL,
		CSRFToken: csrfTokenFromContext(r),
		Flash: components.Flash{
			Error:  strings.TrimSpace(r.URL.Query().Get("error")),
			Notice: strings.TrimSpace(r.URL.Query().Get("notice")),
		},
	}
	if current := currentAccountFromContext(r); current != nil {
		base.Auth = components.HeaderAuthData{
			IsAuthenticated: true,
			DisplayName:     pages.DisplayName(*current),
			AvatarURL:       current.Profile.Picture,
		}
	}
	return base
}

func (h handler) renderPage(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		h.logger.ErrorContext(r.Context(), "render page failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

// serverError answers a Failed outcome. The cause is logged, never shown.
func (h handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Any("error", err),
	)
	http.Error(w, "Something went wrong. Please try again.", http.StatusInternalServerError)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, path, message string) {
	http.Redirect(w, r, withQuery(path, "error", message), http.StatusSeeOther)
}

func redirectWithNotice(w http.ResponseWriter, r *http.Request, path, message string) {
	http.Redirect(w, r, withQuery(path, "notice", message), http.StatusSeeOther)
}

func withQuery(path, key, value string) string {
	if value == "" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + url.Values{key: {value}}.Encode()
}

// rejectionMessage turns a rejection reason into text for the flash banner.
func rejectionMessage(reason account.Reason) string {
	switch reason {
	case account.ReasonCredentialNotFound:
		return "Invalid email or password."
	case account.ReasonAlreadyLinked:
		return "There is already a Facebook account that belongs to you. Sign in with that account or delete it, then link it with your current account."
	case account.ReasonEmailRegistered:
		return "There is already an account using this email address. Sign in to that account and link it with Facebook manually from Account Settings."
	case account.ReasonDuplicate:
		return "Account with that email address already exists."
	case account.ReasonNoSuchAccount:
		return "Account with that email address does not exist."
	case account.ReasonInvalidToken:
		return "Password reset token is invalid or has expired."
	case account.ReasonLastCredential:
		return "Set a password before unlinking your only sign-in method."
	default:
		return "Please check your input and try again."
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
