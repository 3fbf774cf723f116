package pages

import (
	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/web/components"
)

// Base carries what every page's layout needs.
type Base struct {
	AppName   string
	AppURL    string
	Auth      components.HeaderAuthData
	Flash     components.Flash
	CSRFToken string
}

type LoginPageModel struct {
	Base
	Email           string
	FacebookEnabled bool
}

type SignupPageModel struct {
	Base
	Email string
}

type ForgotPageModel struct {
	Base
	Email string
}

type ResetPageModel struct {
	Base
	Token string
}

type AccountPageModel struct {
	Base
	Account         account.Account
	FacebookEnabled bool
}
