// Package devapitest starts an in-process dev API for tests.
package devapitest

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/league-client/internal/config"
	"github.com/iliyamo/league-client/internal/devapi"
	"github.com/iliyamo/league-client/internal/model"
)

// Seeded accounts.
const (
	AdminEmail    = "admin@league.test"
	AdminPassword = "admin-pass"
	UserEmail     = "player@league.test"
	UserPassword  = "player-pass"
	Secret        = "test-secret"
)

// Config returns a ServerConfig for an in-memory server with both seeded
// accounts.
func Config() config.ServerConfig {
	return config.ServerConfig{
		Env:               "test",
		JWTSecret:         Secret,
		AccessTTLMin:      15,
		BcryptCost:        bcrypt.MinCost,
		DBPath:            ":memory:",
		SeedAdminEmail:    AdminEmail,
		SeedAdminPassword: AdminPassword,
		SeedUserEmail:     UserEmail,
		SeedUserPassword:  UserPassword,
	}
}

// Start serves a dev API over httptest until the test ends.
func Start(t testing.TB, opts devapi.Options) (*httptest.Server, *devapi.Server) {
	t.Helper()
	srv, err := devapi.New(context.Background(), Config(), opts)
	if err != nil {
		t.Fatalf("devapi: %v", err)
	}
	ts := httptest.NewServer(srv.Echo)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return ts, srv
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	err    error
	events []model.NotificationEvent
}

// Publish implements handler.EventPublisher.
func (p *Publisher) Publish(_ context.Context, ev model.NotificationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

// Fail makes later Publish calls return err.
func (p *Publisher) Fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Events returns what was published so far.
func (p *Publisher) Events() []model.NotificationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.NotificationEvent(nil), p.events...)
}
