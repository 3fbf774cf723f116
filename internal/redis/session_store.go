package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benpsk/account-starter/internal/session"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

var _ session.Store = (*SessionStore)(nil)

// SessionStore stores each session as JSON under session:{hash} with the
// session's remaining lifetime as TTL. account_sessions:{id} indexes the
// hashes of one account.
type SessionStore struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
}

func NewSessionStore(client *goredis.Client) *SessionStore {
	return &SessionStore{client: client, prefix: "session:", now: time.Now}
}

type record struct {
	AccountID  uuid.UUID `json:"account_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

func (s *SessionStore) key(tokenHash string) string {
	return s.prefix + strings.TrimSpace(tokenHash)
}

func (s *SessionStore) accountKey(id uuid.UUID) string {
	return "account_sessions:" + id.String()
}

func (s *SessionStore) Create(ctx context.Context, sess session.Session) error {
	if strings.TrimSpace(sess.TokenHash) == "" || sess.AccountID == uuid.Nil {
		return errors.New("create session: token hash and account id are required")
	}
	now := s.now()
	ttl := sess.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return errors.New("create session: expires_at must be in the future")
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.LastSeenAt.IsZero() {
		sess.LastSeenAt = now
	}
	data, err := json.Marshal(record{
		AccountID:  sess.AccountID,
		ExpiresAt:  sess.ExpiresAt,
		CreatedAt:  sess.CreatedAt,
		LastSeenAt: sess.LastSeenAt,
		IP:         strings.TrimSpace(sess.IP),
		UserAgent:  strings.TrimSpace(sess.UserAgent),
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.TokenHash), data, ttl)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), strings.TrimSpace(sess.TokenHash))
		return nil
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SessionStore) FindByTokenHash(ctx context.Context, tokenHash string) (session.Session, error) {
	raw, err := s.client.Get(ctx, s.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, fmt.Errorf("find session by token hash: %w", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return session.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session.Session{
		TokenHash:  strings.TrimSpace(tokenHash),
		AccountID:  rec.AccountID,
		ExpiresAt:  rec.ExpiresAt,
		CreatedAt:  rec.CreatedAt,
		LastSeenAt: rec.LastSeenAt,
		IP:         rec.IP,
		UserAgent:  rec.UserAgent,
	}, nil
}

// Touch rewrites LastSeenAt and keeps the key's remaining TTL.
func (s *SessionStore) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	sess, err := s.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return err
	}
	data, err := json.Marshal(record{
		AccountID:  sess.AccountID,
		ExpiresAt:  sess.ExpiresAt,
		CreatedAt:  sess.CreatedAt,
		LastSeenAt: at,
		IP:         sess.IP,
		UserAgent:  sess.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.SetArgs(ctx, s.key(tokenHash), data, goredis.SetArgs{KeepTTL: true, Mode: "XX"}).Err(); err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	sess, err := s.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.key(tokenHash))
		pipe.SRem(ctx, s.accountKey(sess.AccountID), strings.TrimSpace(tokenHash))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	hashes, err := s.client.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return fmt.Errorf("list account sessions: %w", err)
	}
	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, s.key(h))
	}
	keys = append(keys, s.accountKey(accountID))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete account sessions: %w", err)
	}
	return nil
}
