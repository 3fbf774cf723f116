package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benpsk/account-starter/internal/account"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var _ account.Store = (*AccountStore)(nil)

type AccountStore struct {
	db DBTX
}

func NewAccountStore(db DBTX) *AccountStore {
	return &AccountStore{db: db}
}

const selectAccount = `
	select a.id, coalesce(a.email, ''), coalesce(a.password_hash, ''), coalesce(a.facebook, ''),
		a.password_reset_token, a.password_reset_expires,
		coalesce(p.name, ''), coalesce(p.gender, ''), coalesce(p.location, ''),
		coalesce(p.website, ''), coalesce(p.picture, ''),
		a.created_at, a.updated_at
	from accounts a
	left join profiles p on p.account_id = a.id
`

func scanAccount(row pgx.Row) (account.Account, error) {
	var out account.Account
	var resetToken *string
	var resetExpires *time.Time
	err := row.Scan(
		&out.ID, &out.Email, &out.PasswordHash, &out.FacebookID,
		&resetToken, &resetExpires,
		&out.Profile.Name, &out.Profile.Gender, &out.Profile.Location,
		&out.Profile.Website, &out.Profile.Picture,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return account.Account{}, err
	}
	if resetToken != nil && resetExpires != nil {
		out.Reset = &account.ResetToken{Token: *resetToken, ExpiresAt: *resetExpires}
	}
	return out, nil
}

func (s *AccountStore) findOne(ctx context.Context, op, where string, args ...any) (account.Account, error) {
	db := DBFromContext(ctx, s.db)
	out, err := scanAccount(db.QueryRow(ctx, selectAccount+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	email = account.NormalizeEmail(email)
	if email == "" {
		return account.Account{}, account.ErrNotFound
	}
	return s.findOne(ctx, "find account by email", `where lower(a.email) = $1`, email)
}

func (s *AccountStore) FindByID(ctx context.Context, id uuid.UUID) (account.Account, error) {
	return s.findOne(ctx, "find account by id", `where a.id = $1`, id)
}

func (s *AccountStore) FindByProvider(ctx context.Context, provider, providerID string) (account.Account, error) {
	column, err := providerColumn(provider)
	if err != nil {
		return account.Account{}, err
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return account.Account{}, account.ErrNotFound
	}
	return s.findOne(ctx, "find account by provider", `where a.`+column+` = $1`, providerID)
}

func (s *AccountStore) FindByResetToken(ctx context.Context, token string, now time.Time) (account.Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return account.Account{}, account.ErrNotFound
	}
	return s.findOne(ctx, "find account by reset token",
		`where a.password_reset_token = $1 and a.password_reset_expires > $2`, token, now)
}

// CreateAccount inserts the account and its profile row together.
func (s *AccountStore) CreateAccount(ctx context.Context, in account.NewAccount) (account.Account, error) {
	var out account.Account
	err := inTx(ctx, s.db, func(ctx context.Context) error {
		db := DBFromContext(ctx, s.db)
		out = account.Account{
			ID:           uuid.New(),
			Email:        strings.TrimSpace(in.Email),
			PasswordHash: in.PasswordHash,
			FacebookID:   strings.TrimSpace(in.FacebookID),
			Profile:      in.Profile,
		}
		err := db.QueryRow(ctx, `
			insert into accounts (id, email, password_hash, facebook)
			values ($1, $2, $3, $4)
			returning created_at, updated_at
		`, out.ID, nullIfBlank(out.Email), nullIfBlank(out.PasswordHash), nullIfBlank(out.FacebookID)).Scan(
			&out.CreatedAt, &out.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return account.ErrDuplicate
			}
			return fmt.Errorf("insert account: %w", err)
		}
		return s.upsertProfile(ctx, out.ID, out.Profile)
	})
	if err != nil {
		return account.Account{}, err
	}
	return out, nil
}

func (s *AccountStore) UpdateAccount(ctx context.Context, id uuid.UUID, in account.AccountUpdate) (account.Account, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if in.Email != nil {
		set("email", nullIfBlank(strings.TrimSpace(*in.Email)))
	}
	if in.PasswordHash != nil {
		set("password_hash", nullIfBlank(*in.PasswordHash))
	}
	if in.FacebookID != nil {
		set("facebook", nullIfBlank(strings.TrimSpace(*in.FacebookID)))
	}
	switch {
	case in.ClearReset:
		sets = append(sets, "password_reset_token = null", "password_reset_expires = null")
	case in.Reset != nil:
		set("password_reset_token", in.Reset.Token)
		set("password_reset_expires", in.Reset.ExpiresAt)
	}

	where := "id = $1"
	if g := in.RequireReset; g != nil {
		args = append(args, g.Token, g.At)
		where += fmt.Sprintf(" and password_reset_token = $%d and password_reset_expires > $%d", len(args)-1, len(args))
	}

	var out account.Account
	err := inTx(ctx, s.db, func(ctx context.Context) error {
		db := DBFromContext(ctx, s.db)
		tag, err := db.Exec(ctx, `update accounts set `+strings.Join(sets, ", ")+` where `+where, args...)
		if err != nil {
			if isUniqueViolation(err) {
				return account.ErrDuplicate
			}
			return fmt.Errorf("update account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return account.ErrNotFound
		}
		out, err = s.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return account.Account{}, err
	}
	return out, nil
}

func (s *AccountStore) UpdateProfile(ctx context.Context, id uuid.UUID, profile account.Profile) error {
	return s.upsertProfile(ctx, id, profile)
}

func (s *AccountStore) upsertProfile(ctx context.Context, id uuid.UUID, p account.Profile) error {
	db := DBFromContext(ctx, s.db)
	_, err := db.Exec(ctx, `
		insert into profiles (account_id, name, gender, location, website, picture)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (account_id) do update
		set name = excluded.name,
		    gender = excluded.gender,
		    location = excluded.location,
		    website = excluded.website,
		    picture = excluded.picture
	`, id, p.Name, p.Gender, p.Location, p.Website, p.Picture)
	if err != nil {
		if isForeignKeyViolation(err) {
			return account.ErrNotFound
		}
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// DeleteAccount removes the account; profile, credentials and sessions go
// with it through on delete cascade.
func (s *AccountStore) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	db := DBFromContext(ctx, s.db)
	if _, err := db.Exec(ctx, `delete from accounts where id = $1`, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (s *AccountStore) CreateCredential(ctx context.Context, c account.Credential) error {
	db := DBFromContext(ctx, s.db)
	_, err := db.Exec(ctx, `
		insert into auth_tokens (account_id, kind, access_token)
		values ($1, $2, $3)
	`, c.AccountID, strings.ToLower(strings.TrimSpace(c.Kind)), c.TokenValue)
	if err != nil {
		if isForeignKeyViolation(err) {
			return account.ErrNotFound
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// DeleteCredentials removes the account's credentials of kind, or all of
// them when kind is empty.
func (s *AccountStore) DeleteCredentials(ctx context.Context, accountID uuid.UUID, kind string) error {
	db := DBFromContext(ctx, s.db)
	_, err := db.Exec(ctx, `
		delete from auth_tokens
		where account_id = $1 and ($2 = '' or kind = $2)
	`, accountID, strings.ToLower(strings.TrimSpace(kind)))
	if err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

func (s *AccountStore) HasCredential(ctx context.Context, accountID uuid.UUID, kind string) (bool, error) {
	db := DBFromContext(ctx, s.db)
	var exists bool
	err := db.QueryRow(ctx, `
		select exists (select 1 from auth_tokens where account_id = $1 and kind = $2)
	`, accountID, strings.ToLower(strings.TrimSpace(kind))).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check credential: %w", err)
	}
	return exists, nil
}

func (s *AccountStore) FindCredential(ctx context.Context, accountID uuid.UUID, kind string) (account.Credential, error) {
	db := DBFromContext(ctx, s.db)
	var out account.Credential
	err := db.QueryRow(ctx, `
		select account_id, kind, access_token, created_at
		from auth_tokens
		where account_id = $1 and kind = $2
		order by id desc
		limit 1
	`, accountID, strings.ToLower(strings.TrimSpace(kind))).Scan(&out.AccountID, &out.Kind, &out.TokenValue, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Credential{}, account.ErrNotFound
		}
		return account.Credential{}, fmt.Errorf("find credential: %w", err)
	}
	return out, nil
}

func (s *AccountStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return inTx(ctx, s.db, fn)
}

func providerColumn(provider string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case account.ProviderFacebook:
		return "facebook", nil
	default:
		return "", fmt.Errorf("%w: %q", account.ErrUnknownProvider, provider)
	}
}
