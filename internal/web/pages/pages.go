package pages

import (
	"context"
	"io"

	"github.com/a-h/templ"
	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/web/components"
)

func page(b Base, meta components.PageMeta, body func(w *components.Writer)) templ.Component {
	return components.Layout(b.AppName, b.AppURL, meta, b.Auth, b.Flash, b.CSRFToken, fragment(body))
}

func fragment(body func(w *components.Writer)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := components.NewWriter(out)
		body(w)
		return w.Err()
	})
}

func HomePage(b Base) templ.Component {
	return page(b, components.PageMeta{Title: b.AppName, Path: "/"}, homeBody(b))
}

// HomeContent is the body of the home page without the layout.
func HomeContent(b Base) templ.Component {
	return components.Content(b.Flash, fragment(homeBody(b)))
}

func homeBody(b Base) func(w *components.Writer) {
	return func(w *components.Writer) {
		w.Raw(`<h1>`)
		w.Text(b.AppName)
		w.Raw(`</h1>`)
		if b.Auth.IsAuthenticated {
			w.Raw(`<p>Signed in as `)
			w.Text(b.Auth.DisplayName)
			w.Raw(`. Manage your <a href="/account">account</a>.</p>`)
			return
		}
		w.Raw(`<p><a href="/login">Log in</a> or <a href="/signup">create an account</a>.</p>`)
	}
}

func LoginPage(m LoginPageModel) templ.Component {
	return page(m.Base, components.PageMeta{Title: "Login", Path: "/login"}, func(w *components.Writer) {
		w.Raw(`<h1>Sign in</h1><form method="post" action="/login">`)
		w.CSRFField(m.CSRFToken)
		emailField(w, m.Email)
		w.Raw(`<label for="password">Password</label>`)
		w.Raw(`<input type="password" id="password" name="password" required autocomplete="current-password">`)
		w.Raw(`<button type="submit">Login</button> <a href="/forgot">Forgot your password?</a></form>`)
		if m.FacebookEnabled {
			w.Raw(`<p><a class="button facebook" href="/auth/facebook">Sign in with Facebook</a></p>`)
		}
	})
}

func SignupPage(m SignupPageModel) templ.Component {
	return page(m.Base, components.PageMeta{Title: "Create Account", Path: "/signup"}, func(w *components.Writer) {
		w.Raw(`<h1>Sign up</h1><form method="post" action="/signup">`)
		w.CSRFField(m.CSRFToken)
		emailField(w, m.Email)
		passwordPair(w, "Password")
		w.Raw(`<button type="submit">Sign up</button></form>`)
	})
}

func ForgotPage(m ForgotPageModel) templ.Component {
	return page(m.Base, components.PageMeta{Title: "Forgot Password", Path: "/forgot", NoIndex: true}, func(w *components.Writer) {
		w.Raw(`<h1>Forgot Password</h1><p>Enter your email address below and we will send you password reset instructions.</p>`)
		w.Raw(`<form method="post" action="/forgot">`)
		w.CSRFField(m.CSRFToken)
		emailField(w, m.Email)
		w.Raw(`<button type="submit">Reset Password</button></form>`)
	})
}

func ResetPage(m ResetPageModel) templ.Component {
	action := "/reset/" + m.Token
	return page(m.Base, components.PageMeta{Title: "Password Reset", Path: "/reset", NoIndex: true}, func(w *components.Writer) {
		w.Raw(`<h1>Reset Password</h1><form method="post" action="`)
		w.URL(action)
		w.Raw(`">`)
		w.CSRFField(m.CSRFToken)
		passwordPair(w, "New Password")
		w.Raw(`<button type="submit">Change Password</button></form>`)
	})
}

func AccountPage(m AccountPageModel) templ.Component {
	a := m.Account
	return page(m.Base, components.PageMeta{Title: "Account Management", Path: "/account", NoIndex: true}, func(w *components.Writer) {
		w.Raw(`<h1>Account</h1><section><h2>Profile</h2><dl>`)
		definition(w, "Email", a.Email)
		definition(w, "Name", a.Profile.Name)
		definition(w, "Gender", a.Profile.Gender)
		definition(w, "Location", a.Profile.Location)
		definition(w, "Website", a.Profile.Website)
		w.Raw(`</dl>`)
		if a.Profile.Picture != "" {
			w.Raw(`<img class="picture" alt="Profile picture" src="`)
			w.URL(a.Profile.Picture)
			w.Raw(`">`)
		}
		w.Raw(`</section>`)

		w.Raw(`<section><h2>Change Password</h2><form method="post" action="/account/password">`)
		w.CSRFField(m.CSRFToken)
		passwordPair(w, "New Password")
		w.Raw(`<button type="submit">Change Password</button></form></section>`)

		w.Raw(`<section><h2>Linked Accounts</h2>`)
		switch {
		case a.FacebookID != "":
			w.Raw(`<form method="post" action="/account/unlink/facebook">`)
			w.CSRFField(m.CSRFToken)
			w.Raw(`<button type="submit">Unlink your Facebook account</button></form>`)
		case m.FacebookEnabled:
			w.Raw(`<p><a href="/auth/facebook">Link your Facebook account</a></p>`)
		default:
			w.Raw(`<p>No providers are configured.</p>`)
		}
		w.Raw(`</section>`)

		w.Raw(`<section><h2>Delete Account</h2><p>You can delete your account, but keep in mind this action is irreversible.</p>`)
		w.Raw(`<form method="post" action="/account/delete">`)
		w.CSRFField(m.CSRFToken)
		w.Raw(`<button type="submit" class="danger">Delete my account</button></form></section>`)
	})
}

// DisplayName is how an account is shown in the header.
func DisplayName(a account.Account) string {
	if a.Profile.Name != "" {
		return a.Profile.Name
	}
	if a.Email != "" {
		return a.Email
	}
	return "My Account"
}

func emailField(w *components.Writer, value string) {
	w.Raw(`<label for="email">Email</label><input type="email" id="email" name="email" required autocomplete="email" value="`)
	w.Text(value)
	w.Raw(`">`)
}

func passwordPair(w *components.Writer, label string) {
	w.Raw(`<label for="password">`)
	w.Text(label)
	w.Raw(`</label><input type="password" id="password" name="password" required minlength="4" autocomplete="new-password">`)
	w.Raw(`<label for="confirm">Confirm Password</label><input type="password" id="confirm" name="confirm" required minlength="4" autocomplete="new-password">`)
}

func definition(w *components.Writer, term, value string) {
	if value == "" {
		return
	}
	w.Raw(`<dt>`)
	w.Text(term)
	w.Raw(`</dt><dd>`)
	w.Text(value)
	w.Raw(`</dd>`)
}
