package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/web/pages"
	"github.com/google/uuid"
)

type apiAuthContextKey string

const apiAuthClaimsKey apiAuthContextKey = "api_auth_claims"

type apiTokenResponse struct {
	TokenType            string             `json:"token_type"`
	AccessToken          string             `json:"access_token"`
	AccessTokenExpiresAt time.Time          `json:"access_token_expires_at"`
	Account              apiAccountResponse `json:"account"`
}

type apiAccountResponse struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email,omitempty"`
	DisplayName    string    `json:"display_name"`
	Picture        string    `json:"picture,omitempty"`
	HasPassword    bool      `json:"has_password"`
	FacebookLinked bool      `json:"facebook_linked"`
}

func newAPIAccountResponse(a account.Account) apiAccountResponse {
	return apiAccountResponse{
		ID:             a.ID,
		Email:          a.Email,
		DisplayName:    pages.DisplayName(a),
		Picture:        a.Profile.Picture,
		HasPassword:    a.HasPassword(),
		FacebookLinked: a.FacebookID != "",
	}
}

// apiLogin exchanges an email and password for a short-lived bearer token.
func (h handler) apiLogin(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.apiAccessTokenSecret) == "" {
		writeErrorJSON(w, http.StatusServiceUnavailable, "api auth is not configured")
		return
	}

	var req loginForm
	if err := decodeJSON(w, r, &req); err != nil {
		if isRequestBodyTooLarge(err) {
			writeErrorJSON(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeErrorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Email = account.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "email and password are required")
		return
	}

	out := h.accounts.AuthenticateLocal(r.Context(), req.Email, req.Password)
	switch out.Kind {
	case account.KindAuthenticated:
	case account.KindRejected:
		writeErrorJSON(w, http.StatusUnauthorized, "invalid email or password")
		return
	default:
		h.logger.WarnContext(r.Context(), "api login failed", slog.Any("error", out.Cause))
		writeErrorJSON(w, http.StatusInternalServerError, "failed to sign in")
		return
	}

	token, expiresAt, err := h.issueAPIAccessToken(out.Account.ID, h.now())
	if err != nil {
		writeErrorJSON(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, apiTokenResponse{
		TokenType:            "bearer",
		AccessToken:          token,
		AccessTokenExpiresAt: expiresAt,
		Account:              newAPIAccountResponse(out.Account),
	})
}

func (h handler) apiAccount(w http.ResponseWriter, r *http.Request) {
	current, ok := h.apiCurrentAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newAPIAccountResponse(current))
}

// apiFacebook reads the account's Graph profile with its stored grant.
// Accounts without a grant are pointed at the authorization flow.
func (h handler) apiFacebook(w http.ResponseWriter, r *http.Request) {
	if h.facebook == nil {
		writeErrorJSON(w, http.StatusServiceUnavailable, "facebook is not configured")
		return
	}
	current, ok := h.apiCurrentAccount(w, r)
	if !ok {
		return
	}
	cred, err := h.accounts.Credential(r.Context(), current.ID, account.ProviderFacebook)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":         "facebook authorization required",
				"authorize_url": h.appURL + "/auth/facebook",
			})
			return
		}
		h.logger.WarnContext(r.Context(), "load facebook credential failed", slog.Any("error", err))
		writeErrorJSON(w, http.StatusInternalServerError, "failed to load credential")
		return
	}

	user, err := h.facebook.User(r.Context(), cred.TokenValue, current.FacebookID)
	if err != nil {
		h.logger.WarnContext(r.Context(), "facebook graph request failed",
			slog.String("account_id", current.ID.String()),
			slog.Any("error", err),
		)
		writeErrorJSON(w, http.StatusBadGateway, "facebook request failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facebook": user})
}

func (h handler) apiCurrentAccount(w http.ResponseWriter, r *http.Request) (account.Account, bool) {
	claims := apiAuthFromContext(r)
	if claims == nil {
		writeErrorJSON(w, http.StatusUnauthorized, "unauthorized")
		return account.Account{}, false
	}
	current, err := h.accounts.Account(r.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			writeErrorJSON(w, http.StatusUnauthorized, "account not found")
			return account.Account{}, false
		}
		h.logger.WarnContext(r.Context(), "load api account failed", slog.Any("error", err))
		writeErrorJSON(w, http.StatusInternalServerError, "failed to load account")
		return account.Account{}, false
	}
	return current, true
}

func (h handler) requireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerTokenFromRequest(r)
		claims, err := h.parseAPIAccessToken(token)
		if err != nil {
			writeErrorJSON(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), apiAuthClaimsKey, &claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func apiAuthFromContext(r *http.Request) *parsedAPIAccessToken {
	if r == nil {
		return nil
	}
	if claims, ok := r.Context().Value(apiAuthClaimsKey).(*parsedAPIAccessToken); ok {
		return claims
	}
	return nil
}

func writeErrorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
