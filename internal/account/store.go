package account

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract the resolver and the reset flow rely on.
// Lookups return ErrNotFound when nothing matches; writes that violate a
// uniqueness constraint return ErrDuplicate.
type Store interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (Account, error)
	FindByProvider(ctx context.Context, provider, providerID string) (Account, error)
	FindByResetToken(ctx context.Context, token string, now time.Time) (Account, error)

	CreateAccount(ctx context.Context, in NewAccount) (Account, error)
	UpdateAccount(ctx context.Context, id uuid.UUID, in AccountUpdate) (Account, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, profile Profile) error
	DeleteAccount(ctx context.Context, id uuid.UUID) error

	CreateCredential(ctx context.Context, c Credential) error
	DeleteCredentials(ctx context.Context, accountID uuid.UUID, kind string) error
	HasCredential(ctx context.Context, accountID uuid.UUID, kind string) (bool, error)
	// FindCredential returns the newest credential of kind.
	FindCredential(ctx context.Context, accountID uuid.UUID, kind string) (Credential, error)

	// Atomic runs fn so that every store call made with the ctx it receives
	// commits or rolls back together.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

type NewAccount struct {
	Email        string
	PasswordHash string
	FacebookID   string
	Profile      Profile
}

// AccountUpdate changes only the non-nil fields. Reset set to a non-nil
// pointer stores the token; ClearReset removes token and expiry together.
// When RequireReset is set the update only applies while the account still
// holds that token unexpired at RequireReset.At; otherwise the store returns
// ErrNotFound and changes nothing.
type AccountUpdate struct {
	Email        *string
	PasswordHash *string
	FacebookID   *string
	Reset        *ResetToken
	ClearReset   bool
	RequireReset *ResetGuard
}

// ResetGuard names the reset token an update consumes.
type ResetGuard struct {
	Token string
	At    time.Time
}
