package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benpsk/account-starter/internal/session"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var _ session.Store = (*SessionStore)(nil)

type SessionStore struct {
	db DBTX
}

func NewSessionStore(db DBTX) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, sess session.Session) error {
	db := DBFromContext(ctx, s.db)
	_, err := db.Exec(ctx, `
		insert into account_sessions (token_hash, account_id, expires_at, last_seen_at, ip, user_agent)
		values ($1, $2, $3, coalesce($4, now()), nullif($5, ''), nullif($6, ''))
	`, strings.TrimSpace(sess.TokenHash), sess.AccountID, sess.ExpiresAt, nullTime(sess.LastSeenAt),
		strings.TrimSpace(sess.IP), strings.TrimSpace(sess.UserAgent))
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("create session: account %s does not exist", sess.AccountID)
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SessionStore) FindByTokenHash(ctx context.Context, tokenHash string) (session.Session, error) {
	db := DBFromContext(ctx, s.db)
	var out session.Session
	err := db.QueryRow(ctx, `
		select token_hash, account_id, expires_at, created_at, last_seen_at,
			coalesce(ip, ''), coalesce(user_agent, '')
		from account_sessions
		where token_hash = $1
	`, strings.TrimSpace(tokenHash)).Scan(
		&out.TokenHash, &out.AccountID, &out.ExpiresAt, &out.CreatedAt, &out.LastSeenAt, &out.IP, &out.UserAgent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, fmt.Errorf("find session by token hash: %w", err)
	}
	return out, nil
}

func (s *SessionStore) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	db := DBFromContext(ctx, s.db)
	_, err := db.Exec(ctx, `update account_sessions set last_seen_at = $2 where token_hash = $1`, strings.TrimSpace(tokenHash), at)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	db := DBFromContext(ctx, s.db)
	_, err := db.Exec(ctx, `delete from account_sessions where token_hash = $1`, strings.TrimSpace(tokenHash))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	db := DBFromContext(ctx, s.db)
	_, err := db.Exec(ctx, `delete from account_sessions where account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("delete account sessions: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions that expired before now and reports how many.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	db := DBFromContext(ctx, s.db)
	tag, err := db.Exec(ctx, `delete from account_sessions where expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
