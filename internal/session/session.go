// Package session owns the client's authentication lifecycle: the in-memory
// identity and credential, their persisted copy, and the transitions between
// signed-out, verifying, signed-in and expired.
//
// Session is the only writer of both the in-memory state and the credential
// store.  Other components observe it through OnChange.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/league-client/internal/apperr"
	"github.com/iliyamo/league-client/internal/credstore"
	"github.com/iliyamo/league-client/internal/logger"
	"github.com/iliyamo/league-client/internal/metrics"
	"github.com/iliyamo/league-client/internal/model"
	"github.com/iliyamo/league-client/internal/permission"
)

// Authenticator is the remote side of the session.
type Authenticator interface {
	// Exchange trades sign-in credentials for an access credential.
	Exchange(ctx context.Context, c model.Credentials) (model.Credential, model.Identity, error)
	// Verify resolves the identity behind a credential (whoami).
	Verify(ctx context.Context, cred model.Credential) (model.Identity, error)
	// Invalidate revokes a credential server-side.
	Invalidate(ctx context.Context, cred model.Credential) error
}

// DefaultInvalidateTimeout bounds the background invalidate call on logout.
const DefaultInvalidateTimeout = 10 * time.Second

// Session is safe for concurrent use.  Operations are serialized; observers
// run synchronously on the goroutine that committed the transition and must
// not call back into Login, Logout, Bootstrap or MarkExpired.
type Session struct {
	auth   Authenticator
	store  credstore.Store
	policy permission.Policy
	log    *slog.Logger
	met    *metrics.Metrics

	background        func(func())
	invalidateTimeout time.Duration

	opMu         sync.Mutex
	bootstrapped bool

	mu        sync.RWMutex
	state     State
	observers []*observer
}

type observer struct {
	fn func(prev, next State)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.log = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Session) { s.met = m } }

// WithPolicy replaces the default role policy.
func WithPolicy(p permission.Policy) Option { return func(s *Session) { s.policy = p } }

// WithBackground sets how fire-and-forget work (logout invalidate) is run.
// The default starts a goroutine.
func WithBackground(run func(func())) Option { return func(s *Session) { s.background = run } }

// WithInvalidateTimeout bounds the background invalidate call.
func WithInvalidateTimeout(d time.Duration) Option {
	return func(s *Session) { s.invalidateTimeout = d }
}

// New creates a Session in the Unauthenticated state.
func New(auth Authenticator, store credstore.Store, opts ...Option) *Session {
	s := &Session{
		auth:              auth,
		store:             store,
		policy:            permission.Default(),
		log:               logger.Discard(),
		background:        func(fn func()) { go fn() },
		invalidateTimeout: DefaultInvalidateTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.Component(s.log, "session")
	return s
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status is shorthand for State().Status.
func (s *Session) Status() Status { return s.State().Status }

// Identity returns a copy of the current identity, or nil.
func (s *Session) Identity() *model.Identity {
	st := s.State()
	if st.Identity == nil {
		return nil
	}
	id := *st.Identity
	return &id
}

// Policy returns the role policy used for permission checks.
func (s *Session) Policy() permission.Policy { return s.policy }

// OnChange registers fn to be called after every committed transition.
// Observers run in registration order.  The returned func unregisters fn.
func (s *Session) OnChange(fn func(prev, next State)) (cancel func()) {
	o := &observer{fn: fn}
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, cur := range s.observers {
			if cur == o {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// dispatch applies a through the reducer and notifies observers when the
// state changed.  Callers hold opMu.
func (s *Session) dispatch(a Action) State {
	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, a)
	s.state = next
	obs := make([]*observer, len(s.observers))
	copy(obs, s.observers)
	s.mu.Unlock()

	if prev.Status == next.Status && prev.Credential == next.Credential && prev.Identity == next.Identity {
		return next
	}
	s.log.Debug("transition", "from", prev.Status.String(), "to", next.Status.String())
	s.met.SessionStatus(next.Status.String())
	for _, o := range obs {
		o.fn(prev, next)
	}
	return next
}

// Bootstrap restores a persisted session.  It runs once per Session; later
// calls return the current state without side effects.  Errors are never
// returned: any failure ends in Unauthenticated.
func (s *Session) Bootstrap(ctx context.Context) State {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.bootstrapped {
		return s.State()
	}
	s.bootstrapped = true

	rec, err := s.store.Load(ctx)
	if err != nil {
		s.log.Warn("credential store unreadable, starting signed out", "err", err)
		if cerr := s.store.Clear(ctx); cerr != nil {
			s.log.Warn("clear credential store", "err", cerr)
		}
		return s.State()
	}
	if rec == nil || rec.Credential == "" {
		return s.State()
	}

	s.dispatch(BootstrapStarted{})

	id, err := s.auth.Verify(ctx, rec.Credential)
	if err != nil {
		s.log.Info("stored credential rejected", "kind", string(apperr.KindOf(err)), "err", err)
		s.dispatch(VerifyFailed{})
		s.clearAndInvalidate(ctx, rec.Credential)
		return s.State()
	}

	if err := s.store.Save(ctx, credstore.Record{Credential: rec.Credential, Identity: &id}); err != nil {
		s.log.Warn("refresh identity snapshot", "err", err)
	}
	return s.dispatch(Verified{Identity: id, Credential: rec.Credential})
}

// Login exchanges c for a credential.  On success the credential and identity
// are persisted before the session becomes Authenticated.  On failure the
// session is left untouched and a categorized *apperr.Error is returned.
func (s *Session) Login(ctx context.Context, c model.Credentials) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if c.Email == "" || c.Password == "" {
		s.met.LoginResult(string(apperr.KindCredentialInvalid))
		return apperr.New(apperr.KindCredentialInvalid, "login", errors.New("email and password are required"))
	}

	cred, id, err := s.auth.Exchange(ctx, c)
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.New(apperr.KindNetworkUnavailable, "login", err)
		}
		s.met.LoginResult(string(apperr.KindOf(err)))
		s.log.Info("login failed", "creds", c, "err", err)
		return err
	}
	if cred == "" {
		s.met.LoginResult(string(apperr.KindNetworkUnavailable))
		return apperr.New(apperr.KindNetworkUnavailable, "login", errors.New("empty credential in response"))
	}

	if err := s.store.Save(ctx, credstore.Record{Credential: cred, Identity: &id}); err != nil {
		s.met.LoginResult(string(apperr.KindStorageUnavailable))
		s.log.Error("persist credential", "err", err)
		return apperr.New(apperr.KindStorageUnavailable, "login", err)
	}

	s.dispatch(LoggedIn{Identity: id, Credential: cred})
	s.met.LoginResult("success")
	s.log.Info("signed in", "user_id", id.ID, "role", id.Role)
	return nil
}

// Logout signs out.  Memory is reset first so observers disconnect, then the
// store is cleared, then the credential is invalidated server-side in the
// background.  It never fails from the caller's perspective.
func (s *Session) Logout(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	cred := s.State().Credential
	s.dispatch(LoggedOut{})
	s.clearAndInvalidate(ctx, cred)
}

// MarkExpired moves an Authenticated session to Expired, for example when the
// push transport reports the credential was refused.  The store is cleared;
// no invalidate is sent since the server already rejected the credential.
func (s *Session) MarkExpired(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.State().Status != Authenticated {
		return
	}
	s.dispatch(SessionExpired{})
	if err := s.store.Clear(ctx); err != nil {
		s.log.Warn("clear credential store", "err", err)
	}
	s.log.Info("session expired")
}

func (s *Session) clearAndInvalidate(ctx context.Context, cred model.Credential) {
	if err := s.store.Clear(ctx); err != nil {
		s.log.Warn("clear credential store", "err", err)
	}
	if cred == "" {
		return
	}
	timeout := s.invalidateTimeout
	s.background(func() {
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := s.auth.Invalidate(ictx, cred); err != nil {
			s.log.Warn("invalidate credential", "err", err)
		}
	})
}

// HasRole reports whether the current identity holds role.
func (s *Session) HasRole(role string) bool {
	return permission.HasRole(s.State().Identity, role)
}

// HasPermission reports whether the current identity's role grants capability.
func (s *Session) HasPermission(capability string) bool {
	return s.policy.HasPermission(s.State().Identity, capability)
}
