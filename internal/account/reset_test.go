package account_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/account/accounttest"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type resetFixture struct {
	reset    *account.PasswordReset
	resolver *account.Resolver
	store    *accounttest.MemStore
	sender   *accounttest.Sender
	now      time.Time
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()
	store := accounttest.NewMemStore()
	sender := &accounttest.Sender{}
	hasher := account.NewBcryptHasher(bcrypt.MinCost)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &resetFixture{
		store:    store,
		sender:   sender,
		resolver: account.NewResolver(store, hasher, logger),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.reset = account.NewPasswordReset(store, hasher, sender, nil, account.ResetConfig{
		BaseURL: "http://localhost:8080/",
		From:    "noreply@example.com",
	}, logger)
	f.reset.SetClock(func() time.Time { return f.now })
	return f
}

func (f *resetFixture) issuedToken(t *testing.T, email string) string {
	t.Helper()
	out := f.reset.RequestReset(context.Background(), email)
	require.Equal(t, account.KindIssued, out.Kind, out.String())
	require.NotNil(t, out.Account.Reset)
	return out.Account.Reset.Token
}

func TestRequestResetIssuesTokenAndMailsLink(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.Equal(t, account.KindCreated, f.resolver.SignUp(ctx, "a@x.com", "pass1").Kind)

	token := f.issuedToken(t, "A@x.com")
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), token)

	stored, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, stored.Reset)
	require.Equal(t, f.now.Add(account.DefaultResetWindow), stored.Reset.ExpiresAt)

	msgs := f.sender.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "a@x.com", msgs[0].To)
	require.Equal(t, "noreply@example.com", msgs[0].From)
	require.Contains(t, msgs[0].Text, "http://localhost:8080/reset/"+token)
}

func TestRequestResetUnknownEmail(t *testing.T) {
	f := newResetFixture(t)

	out := f.reset.RequestReset(context.Background(), "ghost@x.com")
	require.Equal(t, account.KindRejected, out.Kind)
	require.Equal(t, account.ReasonNoSuchAccount, out.Reason)
	require.Empty(t, f.sender.Messages())
}

func TestRequestResetReplacesEarlierToken(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.Equal(t, account.KindCreated, f.resolver.SignUp(ctx, "a@x.com", "pass1").Kind)

	first := f.issuedToken(t, "a@x.com")
	second := f.issuedToken(t, "a@x.com")
	require.NotEqual(t, first, second)

	require.Equal(t, account.KindRejected, f.reset.CheckReset(ctx, first).Kind)
	require.Equal(t, account.KindVerified, f.reset.CheckReset(ctx, second).Kind)
}

func TestConsumeResetChangesPasswordOnce(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.Equal(t, account.KindCreated, f.resolver.SignUp(ctx, "a@x.com", "pass1").Kind)
	token := f.issuedToken(t, "a@x.com")

	out := f.reset.ConsumeReset(ctx, token, "pass2")
	require.Equal(t, account.KindReset, out.Kind)
	require.Nil(t, out.Account.Reset)

	require.Equal(t, account.KindAuthenticated, f.resolver.AuthenticateLocal(ctx, "a@x.com", "pass2").Kind)
	require.Equal(t, account.KindRejected, f.resolver.AuthenticateLocal(ctx, "a@x.com", "pass1").Kind)

	again := f.reset.ConsumeReset(ctx, token, "pass3")
	require.Equal(t, account.KindRejected, again.Kind)
	require.Equal(t, account.ReasonInvalidToken, again.Reason)

	msgs := f.sender.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "Your password has been changed", msgs[1].Subject)
	require.True(t, strings.Contains(msgs[1].Text, "a@x.com"))
}

// interleavingHasher calls during once, inside the first Hash call, which falls
// between the token lookup and the password write of ConsumeReset.
type interleavingHasher struct {
	account.PasswordHasher
	during func()
}

func (h *interleavingHasher) Hash(plaintext string) (string, error) {
	if during := h.during; during != nil {
		h.during = nil
		during()
	}
	return h.PasswordHasher.Hash(plaintext)
}

func TestConsumeResetTokenCannotBeUsedConcurrently(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.Equal(t, account.KindCreated, f.resolver.SignUp(ctx, "a@x.com", "pass1").Kind)
	token := f.issuedToken(t, "a@x.com")

	hasher := &interleavingHasher{PasswordHasher: account.NewBcryptHasher(bcrypt.MinCost)}
	racing := account.NewPasswordReset(f.store, hasher, f.sender, nil, account.ResetConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	racing.SetClock(func() time.Time { return f.now })

	var inner account.Outcome
	hasher.during = func() {
		inner = racing.ConsumeReset(ctx, token, "inner-pass")
	}
	outer := racing.ConsumeReset(ctx, token, "outer-pass")

	require.Equal(t, account.KindReset, inner.Kind, inner.String())
	require.Equal(t, account.KindRejected, outer.Kind, outer.String())
	require.Equal(t, account.ReasonInvalidToken, outer.Reason)

	require.Equal(t, account.KindAuthenticated, f.resolver.AuthenticateLocal(ctx, "a@x.com", "inner-pass").Kind)
	require.Equal(t, account.KindRejected, f.resolver.AuthenticateLocal(ctx, "a@x.com", "outer-pass").Kind)
}

func TestConsumeResetExpiredToken(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.Equal(t, account.KindCreated, f.resolver.SignUp(ctx, "a@x.com", "pass1").Kind)
	token := f.issuedToken(t, "a@x.com")

	f.now = f.now.Add(account.DefaultResetWindow + time.Second)
	require.Equal(t, account.KindRejected, f.reset.CheckReset(ctx, token).Kind)

	out := f.reset.ConsumeReset(ctx, token, "pass2")
	require.Equal(t, account.KindRejected, out.Kind)
	require.Equal(t, account.ReasonInvalidToken, out.Reason)
	require.Equal(t, account.KindAuthenticated, f.resolver.AuthenticateLocal(ctx, "a@x.com", "pass1").Kind)
}

func TestConsumeResetRejectsBlankInput(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.Equal(t, account.KindCreated, f.resolver.SignUp(ctx, "a@x.com", "pass1").Kind)
	token := f.issuedToken(t, "a@x.com")

	require.Equal(t, account.ReasonInvalidToken, f.reset.ConsumeReset(ctx, "", "pass2").Reason)
	require.Equal(t, account.ReasonInvalidToken, f.reset.ConsumeReset(ctx, "not-a-token", "pass2").Reason)

	out := f.reset.ConsumeReset(ctx, token, "")
	require.Equal(t, account.KindRejected, out.Kind)
	require.Equal(t, account.ReasonInvalidInput, out.Reason)
	require.Equal(t, account.KindVerified, f.reset.CheckReset(ctx, token).Kind)
}

func TestRequestResetMailFailureKeepsToken(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.Equal(t, account.KindCreated, f.resolver.SignUp(ctx, "a@x.com", "pass1").Kind)
	f.sender.Err = errors.New("smtp: connection refused")

	out := f.reset.RequestReset(ctx, "a@x.com")
	require.Equal(t, account.KindFailed, out.Kind)
	require.ErrorIs(t, out.Cause, f.sender.Err)

	stored, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, stored.Reset)
	require.Equal(t, account.KindVerified, f.reset.CheckReset(ctx, stored.Reset.Token).Kind)
}

func TestConsumeResetNoticeFailureStillResets(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.Equal(t, account.KindCreated, f.resolver.SignUp(ctx, "a@x.com", "pass1").Kind)
	token := f.issuedToken(t, "a@x.com")
	f.sender.Err = errors.New("smtp down")

	out := f.reset.ConsumeReset(ctx, token, "pass2")
	require.Equal(t, account.KindReset, out.Kind)
}

func TestRequestResetUsesInjectedTokens(t *testing.T) {
	store := accounttest.NewMemStore()
	sender := &accounttest.Sender{}
	store.Put(account.Account{Email: "b@x.com", PasswordHash: "digest"})
	reset := account.NewPasswordReset(store, account.NewBcryptHasher(bcrypt.MinCost), sender,
		account.TokenFunc(func() (string, error) { return "fixed", nil }),
		account.ResetConfig{Window: time.Minute, BaseURL: "https://app.example.com"}, nil)

	out := reset.RequestReset(context.Background(), "b@x.com")
	require.Equal(t, account.KindIssued, out.Kind)
	require.Equal(t, "fixed", out.Account.Reset.Token)
	require.Equal(t, "https://app.example.com/reset/fixed", reset.ResetLink("fixed"))
}

func TestRequestResetTokenFailure(t *testing.T) {
	store := accounttest.NewMemStore()
	boom := errors.New("entropy exhausted")
	reset := account.NewPasswordReset(store, account.NewBcryptHasher(bcrypt.MinCost), &accounttest.Sender{},
		account.TokenFunc(func() (string, error) { return "", boom }), account.ResetConfig{}, nil)

	out := reset.RequestReset(context.Background(), "b@x.com")
	require.Equal(t, account.KindFailed, out.Kind)
	require.ErrorIs(t, out.Cause, boom)
}
