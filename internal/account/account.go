package account

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const ProviderFacebook = "facebook"

var (
	ErrNotFound          = errors.New("account not found")
	ErrDuplicate         = errors.New("account already exists")
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrMissingProviderID = errors.New("provider and provider id are required")
)

type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	FacebookID   string
	Reset        *ResetToken
	Profile      Profile
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the account can sign in with a local password.
func (a Account) HasPassword() bool {
	return strings.TrimSpace(a.PasswordHash) != ""
}

// ProviderID returns the linked id for provider, or "" when unlinked.
func (a Account) ProviderID(provider string) string {
	switch normalizeProvider(provider) {
	case ProviderFacebook:
		return a.FacebookID
	default:
		return ""
	}
}

// ResetToken is an issued password-reset token. Token and expiry always travel
// together; an account without a pending reset has a nil *ResetToken.
type ResetToken struct {
	Token     string
	ExpiresAt time.Time
}

func (t ResetToken) ValidAt(now time.Time) bool {
	return t.Token != "" && t.ExpiresAt.After(now)
}

type Profile struct {
	Name     string
	Gender   string
	Location string
	Website  string
	Picture  string
}

// Credential is one linked external-provider grant.
type Credential struct {
	AccountID  uuid.UUID
	Kind       string
	TokenValue string
	CreatedAt  time.Time
}

// ProviderProfile holds the facts an OAuth provider returned for a login.
type ProviderProfile struct {
	Provider    string
	ID          string
	Email       string
	Name        string
	Gender      string
	Location    string
	AccessToken string
}

func (p ProviderProfile) Validate() error {
	if strings.TrimSpace(p.Provider) == "" || strings.TrimSpace(p.ID) == "" {
		return ErrMissingProviderID
	}
	if normalizeProvider(p.Provider) != ProviderFacebook {
		return ErrUnknownProvider
	}
	return nil
}

// PictureURL returns the large profile picture for a provider user.
func (p ProviderProfile) PictureURL() string {
	return FacebookPictureURL(p.ID)
}

func FacebookPictureURL(id string) string {
	return "https://graph.facebook.com/" + id + "/picture?type=large"
}

// NormalizeEmail trims and lower-cases an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
