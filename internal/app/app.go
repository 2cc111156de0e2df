// Package app wires the session, the realtime channel and the notification
// store together.  It is the only place that connects session status to the
// push connection.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/league-client/internal/apiclient"
	"github.com/iliyamo/league-client/internal/config"
	"github.com/iliyamo/league-client/internal/credstore"
	"github.com/iliyamo/league-client/internal/database"
	"github.com/iliyamo/league-client/internal/logger"
	"github.com/iliyamo/league-client/internal/metrics"
	"github.com/iliyamo/league-client/internal/notification"
	"github.com/iliyamo/league-client/internal/queue"
	"github.com/iliyamo/league-client/internal/realtime"
	"github.com/iliyamo/league-client/internal/session"
)

// App is the assembled client.
type App struct {
	Session       *session.Session
	Channel       *realtime.Channel
	Notifications *notification.Store
	Metrics       *metrics.Metrics
	Log           *slog.Logger

	closers  []io.Closer
	cancels  []func()
	unfollow func()
}

// Deps are the collaborators Assemble wires together.
type Deps struct {
	Auth      session.Authenticator
	Store     credstore.Store
	Transport realtime.Transport

	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Capacity int
	// SessionOptions are appended after the ones Assemble sets.
	SessionOptions []session.Option
}

// Assemble builds an App from ready collaborators.
func Assemble(d Deps) *App {
	log := d.Logger
	if log == nil {
		log = logger.Discard()
	}
	a := &App{
		Notifications: notification.New(d.Capacity),
		Metrics:       d.Metrics,
		Log:           log,
	}

	sopts := append([]session.Option{
		session.WithLogger(log),
		session.WithMetrics(d.Metrics),
	}, d.SessionOptions...)
	a.Session = session.New(d.Auth, d.Store, sopts...)

	a.Channel = realtime.New(d.Transport, a.Notifications,
		realtime.WithLogger(log),
		realtime.WithMetrics(d.Metrics),
		realtime.WithAuthRefused(func() { a.Session.MarkExpired(context.Background()) }),
	)

	a.unfollow = a.Session.OnChange(a.followSession)
	a.cancels = append(a.cancels,
		a.unfollow,
		a.Notifications.OnChange(func() { a.Metrics.SetUnread(a.Notifications.UnreadCount()) }),
	)
	return a
}

// DetachChannel stops the push connection and keeps it closed across later
// session changes.  One-shot commands use it to avoid dialing the broker.
func (a *App) DetachChannel() {
	a.unfollow()
	a.Channel.Stop()
}

// followSession keeps the push connection in step with the session: open
// once the session has settled into Authenticated, closed on the way out.
func (a *App) followSession(prev, next session.State) {
	switch {
	case next.Status == session.Authenticated:
		a.Channel.Start(next.Credential)
	case prev.Status == session.Authenticated:
		a.Channel.Stop()
	}
}

// New builds the production App from cfg: HTTP API client, AMQP push
// transport and the configured credential store.  reg may be nil.  extra
// session options are applied last.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer, extra ...session.Option) (*App, error) {
	if log == nil {
		log = logger.Discard()
	}
	store, closer, err := OpenCredentialStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := Assemble(Deps{
		Auth:  apiclient.New(cfg.APIBaseURL, nil, cfg.HTTPTimeout),
		Store: store,
		Transport: queue.NewTransport(queue.TransportConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			MinBackoff: cfg.ReconnectMin,
			MaxBackoff: cfg.ReconnectMax,
		}, log),
		Logger:         log,
		Metrics:        metrics.New(reg),
		Capacity:       cfg.NotificationCapacity,
		SessionOptions: append([]session.Option{session.WithInvalidateTimeout(cfg.InvalidateTimeout)}, extra...),
	})
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	return a, nil
}

// OpenCredentialStore returns the store selected by cfg.CredentialBackend
// and, when the backend holds a connection, a Closer for it.
func OpenCredentialStore(ctx context.Context, cfg config.Config) (credstore.Store, io.Closer, error) {
	switch cfg.CredentialBackend {
	case config.BackendMemory:
		return credstore.NewMemoryStore(), nil, nil
	case config.BackendRedis:
		rdb, err := config.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return credstore.NewRedisStore(rdb, cfg.Redis.Key, cfg.Redis.TTL), rdb, nil
	case config.BackendSQLite:
		path := cfg.CredentialPath
		if path == "" {
			def, err := credstore.DefaultPath()
			if err != nil {
				return nil, nil, err
			}
			path = filepath.Join(filepath.Dir(def), "session.db")
		}
		db, err := database.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		st, err := credstore.NewSQLiteStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return st, db, nil
	case config.BackendFile, "":
		path := cfg.CredentialPath
		if path == "" {
			def, err := credstore.DefaultPath()
			if err != nil {
				return nil, nil, err
			}
			path = def
		}
		return credstore.NewFileStore(path), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown credential backend %q", cfg.CredentialBackend)
	}
}

// Close stops the push connection and releases held resources.  The session
// is left as is so a persisted credential survives for the next run.
func (a *App) Close() error {
	for _, c := range a.cancels {
		c()
	}
	a.Channel.Stop()
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
