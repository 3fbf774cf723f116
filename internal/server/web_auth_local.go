package server

import (
	"net/http"

	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/session"
	"github.com/benpsk/account-starter/internal/web/pages"
)

func (h handler) loginPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, pages.LoginPage(pages.LoginPageModel{
		Base:            h.pageBase(r),
		Email:           r.URL.Query().Get("email"),
		FacebookEnabled: h.facebook != nil,
	}))
}

func (h handler) login(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		badForm(w, err)
		return
	}
	form := loginForm{Email: formEmail(r), Password: r.PostFormValue("password")}
	if err := validate.Struct(form); err != nil {
		redirectWithError(w, r, "/login", formError(err))
		return
	}

	out := h.accounts.AuthenticateLocal(r.Context(), form.Email, form.Password)
	switch out.Kind {
	case account.KindAuthenticated:
		if err := h.startSession(w, r, out.Account); err != nil {
			h.serverError(w, r, err)
			return
		}
		redirectWithNotice(w, r, "/", "Success! You are logged in.")
	case account.KindRejected:
		redirectWithError(w, r, withQuery("/login", "email", form.Email), rejectionMessage(out.Reason))
	default:
		h.serverError(w, r, out.Cause)
	}
}

func (h handler) signupPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, pages.SignupPage(pages.SignupPageModel{
		Base:  h.pageBase(r),
		Email: r.URL.Query().Get("email"),
	}))
}

func (h handler) signup(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		badForm(w, err)
		return
	}
	form := signupForm{
		Email:    formEmail(r),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
	}
	if err := validate.Struct(form); err != nil {
		redirectWithError(w, r, withQuery("/signup", "email", form.Email), formError(err))
		return
	}

	out := h.accounts.SignUp(r.Context(), form.Email, form.Password)
	switch out.Kind {
	case account.KindCreated:
		if err := h.startSession(w, r, out.Account); err != nil {
			h.serverError(w, r, err)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case account.KindRejected:
		msg := rejectionMessage(out.Reason)
		if out.Reason == account.ReasonEmailRegistered {
			msg = rejectionMessage(account.ReasonDuplicate)
		}
		redirectWithError(w, r, "/signup", msg)
	default:
		h.serverError(w, r, out.Cause)
	}
}

func (h handler) logout(w http.ResponseWriter, r *http.Request) {
	if token := h.sessionTokenFromRequest(r); token != "" {
		if err := h.sessions.DeleteByTokenHash(r.Context(), session.HashToken(token)); err != nil {
			h.serverError(w, r, err)
			return
		}
	}
	h.clearSessionCookie(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
