package server

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/web/pages"
	"github.com/go-chi/chi/v5"
)

func (h handler) forgotPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, pages.ForgotPage(pages.ForgotPageModel{Base: h.pageBase(r)}))
}

func (h handler) forgot(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		badForm(w, err)
		return
	}
	form := forgotForm{Email: formEmail(r)}
	if err := validate.Struct(form); err != nil {
		redirectWithError(w, r, "/forgot", formError(err))
		return
	}

	out := h.resets.RequestReset(r.Context(), form.Email)
	switch out.Kind {
	case account.KindIssued:
		redirectWithNotice(w, r, "/forgot", fmt.Sprintf("An e-mail has been sent to %s with further instructions.", out.Account.Email))
	case account.KindRejected:
		redirectWithError(w, r, "/forgot", rejectionMessage(out.Reason))
	default:
		h.serverError(w, r, out.Cause)
	}
}

func (h handler) resetPage(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	out := h.resets.CheckReset(r.Context(), token)
	switch out.Kind {
	case account.KindVerified:
		h.renderPage(w, r, pages.ResetPage(pages.ResetPageModel{Base: h.pageBase(r), Token: token}))
	case account.KindRejected:
		redirectWithError(w, r, "/forgot", rejectionMessage(out.Reason))
	default:
		h.serverError(w, r, out.Cause)
	}
}

// reset consumes the token, sets the new password and signs the account in.
func (h handler) reset(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	back := "/reset/" + url.PathEscape(token)
	if err := parseForm(w, r); err != nil {
		badForm(w, err)
		return
	}
	form := passwordForm{Password: r.PostFormValue("password"), Confirm: r.PostFormValue("confirm")}
	if err := validate.Struct(form); err != nil {
		redirectWithError(w, r, back, formError(err))
		return
	}

	out := h.resets.ConsumeReset(r.Context(), token, form.Password)
	switch out.Kind {
	case account.KindReset:
		if err := h.startSession(w, r, out.Account); err != nil {
			h.serverError(w, r, err)
			return
		}
		redirectWithNotice(w, r, "/", "Success! Your password has been changed.")
	case account.KindRejected:
		if out.Reason == account.ReasonInvalidToken {
			redirectWithError(w, r, "/forgot", rejectionMessage(out.Reason))
			return
		}
		redirectWithError(w, r, back, rejectionMessage(out.Reason))
	default:
		h.serverError(w, r, out.Cause)
	}
}
