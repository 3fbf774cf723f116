// Package accounttest provides in-memory collaborators for tests of code
// built on the account package.
package accounttest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/mail"
	"github.com/google/uuid"
)

var _ account.Store = (*MemStore)(nil)

// MemStore is an account.Store kept in maps. It enforces the same
// uniqueness rules as the SQL schema: email (case-insensitive) and facebook id.
type MemStore struct {
	txMu        sync.Mutex
	mu          sync.Mutex
	accounts    map[uuid.UUID]account.Account
	credentials []account.Credential
	now         func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

func NewMemStore() *MemStore {
	return &MemStore{accounts: map[uuid.UUID]account.Account{}, now: time.Now}
}

func (s *MemStore) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	defer s.lock(ctx)()
	if s.Err != nil {
		return account.Account{}, s.Err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return account.Account{}, account.ErrNotFound
	}
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (s *MemStore) FindByID(ctx context.Context, id uuid.UUID) (account.Account, error) {
	defer s.lock(ctx)()
	if s.Err != nil {
		return account.Account{}, s.Err
	}
	a, ok := s.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return a, nil
}

func (s *MemStore) FindByProvider(ctx context.Context, provider, providerID string) (account.Account, error) {
	defer s.lock(ctx)()
	if s.Err != nil {
		return account.Account{}, s.Err
	}
	if providerID == "" {
		return account.Account{}, account.ErrNotFound
	}
	for _, a := range s.accounts {
		if a.ProviderID(provider) == providerID {
			return a, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (s *MemStore) FindByResetToken(ctx context.Context, token string, now time.Time) (account.Account, error) {
	defer s.lock(ctx)()
	if s.Err != nil {
		return account.Account{}, s.Err
	}
	for _, a := range s.accounts {
		if a.Reset != nil && a.Reset.Token == token && a.Reset.ValidAt(now) {
			return a, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (s *MemStore) CreateAccount(ctx context.Context, in account.NewAccount) (account.Account, error) {
	defer s.lock(ctx)()
	if s.Err != nil {
		return account.Account{}, s.Err
	}
	if s.conflictLocked(uuid.Nil, in.Email, in.FacebookID) {
		return account.Account{}, account.ErrDuplicate
	}
	now := s.now()
	a := account.Account{
		ID:           uuid.New(),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: in.PasswordHash,
		FacebookID:   in.FacebookID,
		Profile:      in.Profile,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *MemStore) UpdateAccount(ctx context.Context, id uuid.UUID, in account.AccountUpdate) (account.Account, error) {
	defer s.lock(ctx)()
	if s.Err != nil {
		return account.Account{}, s.Err
	}
	a, ok := s.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	if g := in.RequireReset; g != nil {
		if a.Reset == nil || a.Reset.Token != g.Token || !a.Reset.ValidAt(g.At) {
			return account.Account{}, account.ErrNotFound
		}
	}
	if in.Email != nil {
		if s.conflictLocked(id, *in.Email, "") {
			return account.Account{}, account.ErrDuplicate
		}
		a.Email = strings.TrimSpace(*in.Email)
	}
	if in.FacebookID != nil {
		if s.conflictLocked(id, "", *in.FacebookID) {
			return account.Account{}, account.ErrDuplicate
		}
		a.FacebookID = *in.FacebookID
	}
	if in.PasswordHash != nil {
		a.PasswordHash = *in.PasswordHash
	}
	switch {
	case in.ClearReset:
		a.Reset = nil
	case in.Reset != nil:
		issued := *in.Reset
		a.Reset = &issued
	}
	a.UpdatedAt = s.now()
	s.accounts[id] = a
	return a, nil
}

func (s *MemStore) UpdateProfile(ctx context.Context, id uuid.UUID, profile account.Profile) error {
	defer s.lock(ctx)()
	if s.Err != nil {
		return s.Err
	}
	a, ok := s.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	a.Profile = profile
	s.accounts[id] = a
	return nil
}

func (s *MemStore) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	defer s.lock(ctx)()
	if s.Err != nil {
		return s.Err
	}
	delete(s.accounts, id)
	kept := s.credentials[:0]
	for _, c := range s.credentials {
		if c.AccountID != id {
			kept = append(kept, c)
		}
	}
	s.credentials = kept
	return nil
}

func (s *MemStore) CreateCredential(ctx context.Context, c account.Credential) error {
	defer s.lock(ctx)()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.accounts[c.AccountID]; !ok {
		return account.ErrNotFound
	}
	c.CreatedAt = s.now()
	s.credentials = append(s.credentials, c)
	return nil
}

func (s *MemStore) DeleteCredentials(ctx context.Context, accountID uuid.UUID, kind string) error {
	defer s.lock(ctx)()
	if s.Err != nil {
		return s.Err
	}
	kept := s.credentials[:0]
	for _, c := range s.credentials {
		if c.AccountID == accountID && (kind == "" || c.Kind == kind) {
			continue
		}
		kept = append(kept, c)
	}
	s.credentials = kept
	return nil
}

func (s *MemStore) HasCredential(ctx context.Context, accountID uuid.UUID, kind string) (bool, error) {
	defer s.lock(ctx)()
	if s.Err != nil {
		return false, s.Err
	}
	for _, c := range s.credentials {
		if c.AccountID == accountID && c.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) FindCredential(ctx context.Context, accountID uuid.UUID, kind string) (account.Credential, error) {
	defer s.lock(ctx)()
	if s.Err != nil {
		return account.Credential{}, s.Err
	}
	for i := len(s.credentials) - 1; i >= 0; i-- {
		c := s.credentials[i]
		if c.AccountID == accountID && c.Kind == kind {
			return c, nil
		}
	}
	return account.Credential{}, account.ErrNotFound
}

type txKey struct{}

// lock serializes a store call against running Atomic blocks. Calls made with
// the ctx an Atomic block handed out already hold the transaction.
func (s *MemStore) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) == s {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

// Atomic runs fn while holding the store exclusively and restores the
// snapshot taken before fn when it fails. Nested calls join the outer block.
func (s *MemStore) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	accounts := make(map[uuid.UUID]account.Account, len(s.accounts))
	for id, a := range s.accounts {
		accounts[id] = a
	}
	credentials := append([]account.Credential(nil), s.credentials...)
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.mu.Lock()
		s.accounts = accounts
		s.credentials = credentials
		s.mu.Unlock()
		return err
	}
	return nil
}

// Credentials returns a copy of the credential records of one account.
func (s *MemStore) Credentials(accountID uuid.UUID) []account.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []account.Credential
	for _, c := range s.credentials {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	return out
}

// Put stores a as-is, replacing any account with the same id.
func (s *MemStore) Put(a account.Account) account.Account {
	defer s.lock(context.Background())()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.accounts[a.ID] = a
	return a
}

func (s *MemStore) conflictLocked(self uuid.UUID, email, facebookID string) bool {
	email = strings.TrimSpace(email)
	for id, a := range s.accounts {
		if id == self {
			continue
		}
		if email != "" && strings.EqualFold(a.Email, email) {
			return true
		}
		if facebookID != "" && a.FacebookID == facebookID {
			return true
		}
	}
	return false
}

// Sender records every message it is asked to send.
type Sender struct {
	mu       sync.Mutex
	messages []mail.Message

	// Err, when set, is returned instead of recording.
	Err error
}

func (s *Sender) Send(ctx context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *Sender) Messages() []mail.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mail.Message(nil), s.messages...)
}
