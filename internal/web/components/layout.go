package components

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Layout renders the full document around content.
func Layout(appName, appURL string, meta PageMeta, auth HeaderAuthData, flash Flash, csrfToken string, content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := NewWriter(out)
		w.Raw(`<!doctype html><html lang="en"><head><meta charset="utf-8">`)
		w.Raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		w.Raw(`<title>`)
		w.Text(meta.fullTitle(appName))
		w.Raw(`</title>`)
		if meta.Description != "" {
			w.Raw(`<meta name="description" content="`)
			w.Text(meta.Description)
			w.Raw(`">`)
		}
		w.Raw(`<link rel="canonical" href="`)
		w.URL(meta.canonicalURL(appURL))
		w.Raw(`"><meta name="robots" content="`)
		w.Text(meta.robots())
		w.Raw(`"><link rel="stylesheet" href="/static/app.css"></head><body>`)
		w.Render(ctx, Header(appName, auth, csrfToken))
		w.Raw(`<main class="container">`)
		w.Render(ctx, Content(flash, content))
		w.Raw(`</main></body></html>`)
		return w.Err()
	})
}

func Header(appName string, auth HeaderAuthData, csrfToken string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := NewWriter(out)
		w.Raw(`<header class="site-header"><a class="brand" href="/">`)
		w.Text(appName)
		w.Raw(`</a><nav>`)
		if auth.IsAuthenticated {
			if auth.AvatarURL != "" {
				w.Raw(`<img class="avatar" alt="" src="`)
				w.URL(auth.AvatarURL)
				w.Raw(`">`)
			}
			w.Raw(`<a href="/account">`)
			w.Text(auth.DisplayName)
			w.Raw(`</a><form method="post" action="/logout" class="inline">`)
			w.CSRFField(csrfToken)
			w.Raw(`<button type="submit">Logout</button></form>`)
		} else {
			w.Raw(`<a href="/login">Login</a> <a href="/signup">Create Account</a>`)
		}
		w.Raw(`</nav></header>`)
		return w.Err()
	})
}

// Content renders the flash banner followed by the page body. htmx requests
// receive only this fragment.
func Content(flash Flash, content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := NewWriter(out)
		if flash.Error != "" {
			w.Raw(`<div class="alert alert-error" role="alert">`)
			w.Text(flash.Error)
			w.Raw(`</div>`)
		}
		if flash.Notice != "" {
			w.Raw(`<div class="alert alert-info" role="status">`)
			w.Text(flash.Notice)
			w.Raw(`</div>`)
		}
		w.Render(ctx, content)
		return w.Err()
	})
}
