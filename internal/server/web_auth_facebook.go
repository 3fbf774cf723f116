package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/benpsk/account-starter/internal/account"
)

func (h handler) facebookStart(w http.ResponseWriter, r *http.Request) {
	if h.facebook == nil {
		redirectWithError(w, r, "/login", "Facebook sign-in is not configured.")
		return
	}
	next := r.URL.Query().Get("next")
	if next == "" && currentAccountFromContext(r) != nil {
		next = "/account"
	}
	flow, err := h.flows.create(account.ProviderFacebook, next, h.now())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, h.facebook.AuthCodeURL(flow.State, flow.CodeVerifier), http.StatusFound)
}

// facebookCallback finishes the authorization and hands the profile to the
// resolver, which signs in, links or creates an account.
func (h handler) facebookCallback(w http.ResponseWriter, r *http.Request) {
	current := currentAccountFromContext(r)
	failurePath := "/login"
	if current != nil {
		failurePath = "/account"
	}
	if h.facebook == nil {
		redirectWithError(w, r, failurePath, "Facebook sign-in is not configured.")
		return
	}

	q := r.URL.Query()
	if providerErr := strings.TrimSpace(q.Get("error")); providerErr != "" {
		h.logger.InfoContext(r.Context(), "facebook authorization denied", slog.String("error", providerErr))
		redirectWithError(w, r, failurePath, "Facebook sign-in was cancelled.")
		return
	}
	flow, err := h.flows.consume(strings.TrimSpace(q.Get("state")), account.ProviderFacebook, h.now())
	if err != nil {
		redirectWithError(w, r, failurePath, "Facebook sign-in expired. Please try again.")
		return
	}
	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		redirectWithError(w, r, failurePath, "Facebook sign-in failed.")
		return
	}

	profile, err := h.facebook.Exchange(r.Context(), code, flow.CodeVerifier)
	if err != nil {
		h.logger.WarnContext(r.Context(), "facebook exchange failed", slog.Any("error", err))
		redirectWithError(w, r, failurePath, "Facebook sign-in failed.")
		return
	}

	out := h.accounts.ResolveOAuth(r.Context(), current, profile)
	switch out.Kind {
	case account.KindLinked:
		redirectWithNotice(w, r, flow.RedirectTo, "Facebook account has been linked.")
	case account.KindAuthenticated, account.KindCreated:
		if err := h.startSession(w, r, out.Account); err != nil {
			h.serverError(w, r, err)
			return
		}
		http.Redirect(w, r, flow.RedirectTo, http.StatusSeeOther)
	case account.KindRejected:
		redirectWithError(w, r, failurePath, rejectionMessage(out.Reason))
	default:
		h.serverError(w, r, out.Cause)
	}
}
