package account

import "fmt"

type Kind int

const (
	KindAuthenticated Kind = iota + 1
	KindLinked
	KindCreated
	KindIssued
	KindReset
	KindRejected
	KindFailed
	KindVerified
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticated:
		return "authenticated"
	case KindLinked:
		return "linked"
	case KindCreated:
		return "created"
	case KindIssued:
		return "issued"
	case KindReset:
		return "reset"
	case KindRejected:
		return "rejected"
	case KindFailed:
		return "failed"
	case KindVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// Reason explains a rejection. Reasons are safe to show to end users.
type Reason string

const (
	ReasonCredentialNotFound Reason = "credential not found"
	ReasonAlreadyLinked      Reason = "already linked to another account"
	ReasonEmailRegistered    Reason = "email already registered"
	ReasonDuplicate          Reason = "duplicate"
	ReasonNoSuchAccount      Reason = "no such account"
	ReasonInvalidToken       Reason = "invalid or expired token"
	ReasonLastCredential     Reason = "last credential"
	ReasonInvalidInput       Reason = "invalid input"
)

// Outcome is the result of an authentication, linking or reset attempt.
// Account is set for every successful kind; Reason only for KindRejected and
// Cause only for KindFailed.
type Outcome struct {
	Kind    Kind
	Account Account
	Reason  Reason
	Cause   error
}

func Authenticated(a Account) Outcome { return Outcome{Kind: KindAuthenticated, Account: a} }
func Linked(a Account) Outcome { return Outcome{Kind: KindLinked, Account: a} }
func Created(a Account) Outcome { return Outcome{Kind: KindCreated, Account: a} }
func Issued(a Account) Outcome { return Outcome{Kind: KindIssued, Account: a} }
func Reset(a Account) Outcome { return Outcome{Kind: KindReset, Account: a} }
func Verified(a Account) Outcome { return Outcome{Kind: KindVerified, Account: a} }
func Rejected(reason Reason) Outcome { return Outcome{Kind: KindRejected, Reason: reason} }
func Failed(cause error) Outcome { return Outcome{Kind: KindFailed, Cause: cause} }

// OK reports whether the outcome carries an account.
func (o Outcome) OK() bool {
	return o.Kind != KindRejected && o.Kind != KindFailed && o.Kind != 0
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindRejected:
		return fmt.Sprintf("rejected(%s)", o.Reason)
	case KindFailed:
		return fmt.Sprintf("failed(%v)", o.Cause)
	default:
		return o.Kind.String()
	}
}
