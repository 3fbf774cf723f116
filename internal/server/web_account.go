package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/web/pages"
	"github.com/go-chi/chi/v5"
)

func (h handler) accountPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, pages.AccountPage(pages.AccountPageModel{
		Base:            h.pageBase(r),
		Account:         *currentAccountFromContext(r),
		FacebookEnabled: h.facebook != nil,
	}))
}

func (h handler) accountPassword(w http.ResponseWriter, r *http.Request) {
	current := currentAccountFromContext(r)
	if err := parseForm(w, r); err != nil {
		badForm(w, err)
		return
	}
	form := passwordForm{Password: r.PostFormValue("password"), Confirm: r.PostFormValue("confirm")}
	if err := validate.Struct(form); err != nil {
		redirectWithError(w, r, "/account", formError(err))
		return
	}

	out := h.accounts.ChangePassword(r.Context(), current.ID, form.Password)
	switch out.Kind {
	case account.KindReset:
		redirectWithNotice(w, r, "/account", "Password has been changed.")
	case account.KindRejected:
		redirectWithError(w, r, "/account", rejectionMessage(out.Reason))
	default:
		h.serverError(w, r, out.Cause)
	}
}

// accountDelete removes the account and every session it holds.
func (h handler) accountDelete(w http.ResponseWriter, r *http.Request) {
	current := currentAccountFromContext(r)
	if err := h.accounts.DeleteAccount(r.Context(), current.ID); err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := h.sessions.DeleteByAccount(r.Context(), current.ID); err != nil {
		h.logger.WarnContext(r.Context(), "delete sessions of deleted account failed",
			slog.String("account_id", current.ID.String()),
			slog.Any("error", err),
		)
	}
	h.clearSessionCookie(w, r)
	redirectWithNotice(w, r, "/", "Your account has been deleted.")
}

func (h handler) accountUnlink(w http.ResponseWriter, r *http.Request) {
	current := currentAccountFromContext(r)
	provider := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))

	out := h.accounts.Unlink(r.Context(), current.ID, provider)
	switch out.Kind {
	case account.KindAuthenticated:
		redirectWithNotice(w, r, "/account", providerLabel(provider)+" account has been unlinked.")
	case account.KindRejected:
		msg := rejectionMessage(out.Reason)
		if out.Reason == account.ReasonInvalidInput {
			msg = "Unknown provider."
		}
		redirectWithError(w, r, "/account", msg)
	default:
		h.serverError(w, r, out.Cause)
	}
}

func providerLabel(provider string) string {
	switch provider {
	case account.ProviderFacebook:
		return "Facebook"
	default:
		return provider
	}
}
