package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benpsk/account-starter/internal/mail"
)

const DefaultResetWindow = time.Hour

type ResetConfig struct {
	// Window is how long an issued token stays valid (resetWindowSeconds).
	Window  time.Duration
	BaseURL string
	From    string
}

// PasswordReset issues single-use, time-bounded reset tokens and consumes
// them to authorise a password change.
type PasswordReset struct {
	store  Store
	hasher PasswordHasher
	sender mail.Sender
	tokens TokenGenerator
	cfg    ResetConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewPasswordReset(store Store, hasher PasswordHasher, sender mail.Sender, tokens TokenGenerator, cfg ResetConfig, logger *slog.Logger) *PasswordReset {
	if cfg.Window <= 0 {
		cfg.Window = DefaultResetWindow
	}
	if tokens == nil {
		tokens = RandomHex()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordReset{
		store:  store,
		hasher: hasher,
		sender: sender,
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source used for issuing and validating tokens.
func (p *PasswordReset) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// RequestReset stores a fresh token on the account and mails the reset link.
// A mail failure is reported but the stored token is kept.
func (p *PasswordReset) RequestReset(ctx context.Context, email string) Outcome {
	token, err := p.tokens.NewToken()
	if err != nil {
		return p.failed(ctx, "generate reset token", err)
	}

	found, err := p.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Rejected(ReasonNoSuchAccount)
		}
		return p.failed(ctx, "find account for reset", err)
	}

	issued := ResetToken{Token: token, ExpiresAt: p.now().Add(p.cfg.Window)}
	updated, err := p.store.UpdateAccount(ctx, found.ID, AccountUpdate{Reset: &issued})
	if err != nil {
		return p.failed(ctx, "store reset token", err)
	}

	if err := p.sender.Send(ctx, p.resetLinkMessage(updated.Email, token)); err != nil {
		return p.failed(ctx, "send reset link", err)
	}
	p.logger.InfoContext(ctx, "password reset issued", slog.String("account_id", updated.ID.String()))
	return Issued(updated)
}

// CheckReset reports whether token is still usable without consuming it.
func (p *PasswordReset) CheckReset(ctx context.Context, token string) Outcome {
	found, err := p.findValid(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Rejected(ReasonInvalidToken)
		}
		return p.failed(ctx, "check reset token", err)
	}
	return Verified(found)
}

func (p *PasswordReset) ConsumeReset(ctx context.Context, token, newPassword string) Outcome {
	found, err := p.findValid(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Rejected(ReasonInvalidToken)
		}
		return p.failed(ctx, "find account by reset token", err)
	}

	digest, err := p.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			return Rejected(ReasonInvalidInput)
		}
		return p.failed(ctx, "hash password", err)
	}
	updated, err := p.store.UpdateAccount(ctx, found.ID, AccountUpdate{
		PasswordHash: &digest,
		ClearReset:   true,
		RequireReset: &ResetGuard{Token: found.Reset.Token, At: p.now()},
	})
	if err != nil {
		// Another request consumed or replaced the token after findValid.
		if errors.Is(err, ErrNotFound) {
			return Rejected(ReasonInvalidToken)
		}
		return p.failed(ctx, "consume reset token", err)
	}

	if err := p.sender.Send(ctx, p.passwordChangedMessage(updated.Email)); err != nil {
		p.logger.WarnContext(ctx, "password changed notice not sent",
			slog.String("account_id", updated.ID.String()),
			slog.Any("error", err),
		)
	}
	p.logger.InfoContext(ctx, "password reset consumed", slog.String("account_id", updated.ID.String()))
	return Reset(updated)
}

func (p *PasswordReset) findValid(ctx context.Context, token string) (Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Account{}, ErrNotFound
	}
	return p.store.FindByResetToken(ctx, token, p.now())
}

// ResetLink is the page a reset email points to.
func (p *PasswordReset) ResetLink(token string) string {
	return strings.TrimRight(strings.TrimSpace(p.cfg.BaseURL), "/") + "/reset/" + token
}

func (p *PasswordReset) resetLinkMessage(to, token string) mail.Message {
	return mail.Message{
		To:      to,
		From:    p.cfg.From,
		Subject: "Reset your password",
		Text: fmt.Sprintf("You are receiving this email because you (or someone else) have requested the reset of the password for your account.\n\n"+
			"Please click on the following link, or paste this into your browser to complete the process:\n\n"+
			"%s\n\n"+
			"If you did not request this, please ignore this email and your password will remain unchanged.\n", p.ResetLink(token)),
	}
}

func (p *PasswordReset) passwordChangedMessage(to string) mail.Message {
	return mail.Message{
		To:      to,
		From:    p.cfg.From,
		Subject: "Your password has been changed",
		Text:    fmt.Sprintf("Hello,\n\nThis is a confirmation that the password for your account %s has just been changed.\n", to),
	}
}

func (p *PasswordReset) failed(ctx context.Context, op string, err error) Outcome {
	p.logger.ErrorContext(ctx, op+" failed", slog.Any("error", err))
	return Failed(err)
}
