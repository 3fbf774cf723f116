package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/benpsk/account-starter/internal/config"
	webstatic "github.com/benpsk/account-starter/static"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg config.Config, deps Deps) *chi.Mux {
	return newHandler(cfg, deps).routes(appOrigins(cfg.AppURL))
}

func (h handler) routes(origins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(h.logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(h.loadSession)
	r.Use(csrfProtection)

	staticFS := webstatic.FileSystem()
	if _, err := os.Stat("static"); err == nil {
		staticFS = http.Dir("static")
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(staticFS)))

	r.Get("/", h.homePage)
	r.Get("/healthz", h.healthz)
	r.Get("/api/health", h.healthz)

	r.Group(func(r chi.Router) {
		r.Use(h.requireGuest)
		r.Get("/login", h.loginPage)
		r.With(h.limiter.limitByIP("web_login")).Post("/login", h.login)
		r.Get("/signup", h.signupPage)
		r.With(h.limiter.limitByIP("web_signup")).Post("/signup", h.signup)
		r.Get("/forgot", h.forgotPage)
		r.With(h.limiter.limitByIP("web_forgot")).Post("/forgot", h.forgot)
		r.Get("/reset/{token}", h.resetPage)
		r.With(h.limiter.limitByIP("web_reset")).Post("/reset/{token}", h.reset)
	})
	r.Post("/logout", h.logout)

	r.With(h.limiter.limitByIP("web_oauth_start")).Get("/auth/facebook", h.facebookStart)
	r.Get("/auth/facebook/callback", h.facebookCallback)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/account", h.accountPage)
		r.Post("/account/password", h.accountPassword)
		r.Post("/account/delete", h.accountDelete)
		r.Post("/account/unlink/{provider}", h.accountUnlink)
	})

	r.With(h.limiter.limitByIP("api_auth_login")).Post("/api/auth/login", h.apiLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.requireAPIAuth)
		r.Get("/api/account", h.apiAccount)
		r.Get("/api/facebook", h.apiFacebook)
	})

	return r
}

func appOrigins(appURL string) []string {
	appURL = strings.TrimSpace(appURL)
	if appURL == "" {
		return nil
	}
	parsed, err := url.Parse(appURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil
	}
	return []string{parsed.Scheme + "://" + parsed.Host}
}
