package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Resolver maps login credentials to accounts and decides when a provider
// link or a new account has to be created.
type Resolver struct {
	store  Store
	hasher PasswordHasher
	logger *slog.Logger
}

func NewResolver(store Store, hasher PasswordHasher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, hasher: hasher, logger: logger}
}

func (r *Resolver) AuthenticateLocal(ctx context.Context, email, password string) Outcome {
	found, err := r.store.FindByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Rejected(ReasonCredentialNotFound)
		}
		return r.failed(ctx, "authenticate local", err)
	}
	if !found.HasPassword() || !r.hasher.Verify(password, found.PasswordHash) {
		r.logger.DebugContext(ctx, "local login rejected", slog.String("account_id", found.ID.String()))
		return Rejected(ReasonCredentialNotFound)
	}
	return Authenticated(found)
}

// ResolveOAuth handles a provider callback. current is the account of the
// signed-in session, nil for guests. Accounts are never merged.
func (r *Resolver) ResolveOAuth(ctx context.Context, current *Account, profile ProviderProfile) Outcome {
	if err := profile.Validate(); err != nil {
		return Rejected(ReasonInvalidInput)
	}
	profile.Provider = normalizeProvider(profile.Provider)

	linked, err := r.store.FindByProvider(ctx, profile.Provider, profile.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return r.failed(ctx, "find account by provider", err)
	}
	isLinked := err == nil

	if current != nil {
		if isLinked && linked.ID != current.ID {
			return Rejected(ReasonAlreadyLinked)
		}
		return r.link(ctx, current.ID, profile)
	}

	if isLinked {
		return Authenticated(linked)
	}

	if email := strings.TrimSpace(profile.Email); email != "" {
		_, err := r.store.FindByEmail(ctx, email)
		if err == nil {
			return Rejected(ReasonEmailRegistered)
		}
		if !errors.Is(err, ErrNotFound) {
			return r.failed(ctx, "find account by provider email", err)
		}
	}
	return r.create(ctx, profile)
}

func (r *Resolver) link(ctx context.Context, accountID uuid.UUID, profile ProviderProfile) Outcome {
	var out Account
	err := r.store.Atomic(ctx, func(ctx context.Context) error {
		existing, err := r.store.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		providerID := profile.ID
		updated, err := r.store.UpdateAccount(ctx, accountID, AccountUpdate{FacebookID: &providerID})
		if err != nil {
			return err
		}
		// Relinking the same provider replaces its grant instead of adding one.
		if err := r.store.DeleteCredentials(ctx, accountID, profile.Provider); err != nil {
			return err
		}
		if err := r.store.CreateCredential(ctx, Credential{
			AccountID:  accountID,
			Kind:       profile.Provider,
			TokenValue: profile.AccessToken,
		}); err != nil {
			return err
		}

		// Location is only filled when an account is created from a provider.
		backfilled := existing.Profile
		backfilled.Name = firstNonBlank(backfilled.Name, profile.Name)
		backfilled.Gender = firstNonBlank(backfilled.Gender, profile.Gender)
		backfilled.Picture = firstNonBlank(backfilled.Picture, profile.PictureURL())
		if backfilled != existing.Profile {
			if err := r.store.UpdateProfile(ctx, accountID, backfilled); err != nil {
				return err
			}
		}
		updated.Profile = backfilled
		out = updated
		return nil
	})
	if err != nil {
		return r.storeFailure(ctx, "link provider", err)
	}
	r.logger.InfoContext(ctx, "provider linked",
		slog.String("account_id", out.ID.String()),
		slog.String("provider", profile.Provider),
	)
	return Linked(out)
}

func (r *Resolver) create(ctx context.Context, profile ProviderProfile) Outcome {
	var out Account
	err := r.store.Atomic(ctx, func(ctx context.Context) error {
		created, err := r.store.CreateAccount(ctx, NewAccount{
			Email:      strings.TrimSpace(profile.Email),
			FacebookID: profile.ID,
			Profile: Profile{
				Name:     strings.TrimSpace(profile.Name),
				Gender:   strings.TrimSpace(profile.Gender),
				Location: strings.TrimSpace(profile.Location),
				Picture:  profile.PictureURL(),
			},
		})
		if err != nil {
			return err
		}
		if err := r.store.CreateCredential(ctx, Credential{
			AccountID:  created.ID,
			Kind:       profile.Provider,
			TokenValue: profile.AccessToken,
		}); err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return r.storeFailure(ctx, "create account from provider", err)
	}
	r.logger.InfoContext(ctx, "account created from provider",
		slog.String("account_id", out.ID.String()),
		slog.String("provider", profile.Provider),
	)
	return Created(out)
}

func (r *Resolver) SignUp(ctx context.Context, email, password string) Outcome {
	email = NormalizeEmail(email)
	if email == "" {
		return Rejected(ReasonInvalidInput)
	}
	_, err := r.store.FindByEmail(ctx, email)
	if err == nil {
		return Rejected(ReasonEmailRegistered)
	}
	if !errors.Is(err, ErrNotFound) {
		return r.failed(ctx, "sign up", err)
	}

	digest, err := r.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			return Rejected(ReasonInvalidInput)
		}
		return r.failed(ctx, "hash password", err)
	}
	created, err := r.store.CreateAccount(ctx, NewAccount{Email: email, PasswordHash: digest})
	if err != nil {
		return r.storeFailure(ctx, "create local account", err)
	}
	r.logger.InfoContext(ctx, "account created", slog.String("account_id", created.ID.String()))
	return Created(created)
}

func (r *Resolver) ChangePassword(ctx context.Context, accountID uuid.UUID, password string) Outcome {
	digest, err := r.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			return Rejected(ReasonInvalidInput)
		}
		return r.failed(ctx, "hash password", err)
	}
	updated, err := r.store.UpdateAccount(ctx, accountID, AccountUpdate{PasswordHash: &digest})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Rejected(ReasonNoSuchAccount)
		}
		return r.failed(ctx, "change password", err)
	}
	return Reset(updated)
}

// Unlink removes a provider from an account. An account whose only
// credential is that provider keeps it.
func (r *Resolver) Unlink(ctx context.Context, accountID uuid.UUID, provider string) Outcome {
	provider = normalizeProvider(provider)
	if provider != ProviderFacebook {
		return Rejected(ReasonInvalidInput)
	}
	var out Account
	err := r.store.Atomic(ctx, func(ctx context.Context) error {
		existing, err := r.store.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if !existing.HasPassword() {
			return errLastCredential
		}
		empty := ""
		updated, err := r.store.UpdateAccount(ctx, accountID, AccountUpdate{FacebookID: &empty})
		if err != nil {
			return err
		}
		if err := r.store.DeleteCredentials(ctx, accountID, provider); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, errLastCredential) {
			return Rejected(ReasonLastCredential)
		}
		if errors.Is(err, ErrNotFound) {
			return Rejected(ReasonNoSuchAccount)
		}
		return r.failed(ctx, "unlink provider", err)
	}
	return Authenticated(out)
}

func (r *Resolver) Account(ctx context.Context, id uuid.UUID) (Account, error) {
	return r.store.FindByID(ctx, id)
}

func (r *Resolver) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := r.store.DeleteAccount(ctx, accountID); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "account deleted", slog.String("account_id", accountID.String()))
	return nil
}

// HasCredential reports whether the account holds a grant for provider.
func (r *Resolver) HasCredential(ctx context.Context, accountID uuid.UUID, provider string) (bool, error) {
	return r.store.HasCredential(ctx, accountID, normalizeProvider(provider))
}

// Credential returns the stored grant for provider, used to call the
// provider's API on the account's behalf.
func (r *Resolver) Credential(ctx context.Context, accountID uuid.UUID, provider string) (Credential, error) {
	return r.store.FindCredential(ctx, accountID, normalizeProvider(provider))
}

var errLastCredential = errors.New("last credential")

// storeFailure classifies a write error: uniqueness violations are business
// rejections, everything else is a failure.
func (r *Resolver) storeFailure(ctx context.Context, op string, err error) Outcome {
	if errors.Is(err, ErrDuplicate) {
		return Rejected(ReasonDuplicate)
	}
	if errors.Is(err, ErrNotFound) {
		return Rejected(ReasonNoSuchAccount)
	}
	return r.failed(ctx, op, err)
}

func (r *Resolver) failed(ctx context.Context, op string, err error) Outcome {
	r.logger.ErrorContext(ctx, op+" failed", slog.Any("error", err))
	return Failed(err)
}

func firstNonBlank(current, fallback string) string {
	if strings.TrimSpace(current) != "" {
		return current
	}
	return strings.TrimSpace(fallback)
}
