package session

import (
	"log/slog"

	"github.com/iliyamo/league-client/internal/model"
)

// Status is the session lifecycle status.
type Status int

const (
	Unauthenticated Status = iota
	Verifying
	Authenticated
	Expired
)

func (s Status) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Verifying:
		return "verifying"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of the session.  Identity and Credential
// are both set or both empty; Status is Authenticated exactly when they are
// set.
type State struct {
	Status     Status
	Identity   *model.Identity
	Credential model.Credential
}

// LogValue omits the credential.
func (s State) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("status", s.Status.String())}
	if s.Identity != nil {
		attrs = append(attrs, slog.String("user_id", s.Identity.ID), slog.String("role", s.Identity.Role))
	}
	return slog.GroupValue(attrs...)
}

// Action is an input to Reduce.
type Action interface{ action() }

// BootstrapStarted begins verification of a persisted credential.
type BootstrapStarted struct{}

// Verified carries the server identity for the credential being verified.
type Verified struct {
	Identity   model.Identity
	Credential model.Credential
}

// VerifyFailed ends verification unsuccessfully.
type VerifyFailed struct{}

// LoggedIn carries the result of a successful credential exchange.
type LoggedIn struct {
	Identity   model.Identity
	Credential model.Credential
}

// LoggedOut resets the session.
type LoggedOut struct{}

// SessionExpired marks an authenticated session as no longer valid.
type SessionExpired struct{}

func (BootstrapStarted) action() {}
func (Verified) action()         {}
func (VerifyFailed) action()     {}
func (LoggedIn) action()         {}
func (LoggedOut) action()        {}
func (SessionExpired) action()   {}

// Reduce is the session state machine.  It is pure; inputs that are not
// valid in the current status leave the state unchanged.
//
//	Unauthenticated|Authenticated --BootstrapStarted--> Verifying
//	Verifying --Verified--> Authenticated
//	Verifying --VerifyFailed--> Unauthenticated
//	Unauthenticated|Authenticated|Expired --LoggedIn--> Authenticated
//	any --LoggedOut--> Unauthenticated
//	Authenticated --SessionExpired--> Expired
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case BootstrapStarted:
		if s.Status == Unauthenticated || s.Status == Authenticated {
			return State{Status: Verifying}
		}
	case Verified:
		if s.Status == Verifying && a.Credential != "" {
			id := a.Identity
			return State{Status: Authenticated, Identity: &id, Credential: a.Credential}
		}
	case VerifyFailed:
		if s.Status == Verifying {
			return State{Status: Unauthenticated}
		}
	case LoggedIn:
		if s.Status != Verifying && a.Credential != "" {
			id := a.Identity
			return State{Status: Authenticated, Identity: &id, Credential: a.Credential}
		}
	case LoggedOut:
		return State{Status: Unauthenticated}
	case SessionExpired:
		if s.Status == Authenticated {
			return State{Status: Expired}
		}
	}
	return s
}
