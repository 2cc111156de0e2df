// Package devapi assembles the development league API: a small echo server
// with the same auth contract as the production service, used for local
// demos and integration tests.
package devapi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/league-client/internal/config"
	"github.com/iliyamo/league-client/internal/database"
	"github.com/iliyamo/league-client/internal/handler"
	"github.com/iliyamo/league-client/internal/logger"
	"github.com/iliyamo/league-client/internal/middleware"
	"github.com/iliyamo/league-client/internal/permission"
	"github.com/iliyamo/league-client/internal/repository"
	"github.com/iliyamo/league-client/internal/router"
)

// Server is a ready-to-serve dev API.
type Server struct {
	Echo   *echo.Echo
	DB     *sql.DB
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo

	cfg config.ServerConfig
	log *slog.Logger
}

// Options carries the optional collaborators.
type Options struct {
	// Publisher receives admin-published events.  Without one the events
	// route is not registered.
	Publisher handler.EventPublisher
	// Redis enables sign-in throttling.
	Redis    *redis.Client
	Throttle middleware.ThrottleConfig
	Logger   *slog.Logger
}

// New opens the database, migrates it, seeds the configured accounts and
// builds the router.
func New(ctx context.Context, cfg config.ServerConfig, opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = logger.Component(log, "devapi")

	db, err := database.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Server{
		DB:     db,
		Users:  repository.NewUserRepo(db),
		Tokens: repository.NewTokenRepo(db),
		cfg:    cfg,
		log:    log,
	}
	if err := s.seed(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	deps := router.Deps{
		Auth:      handler.NewAuthHandler(cfg, s.Users, s.Tokens),
		Ready:     handler.Ready(db),
		Revoked:   s.Tokens,
		JWTSecret: cfg.JWTSecret,
		Policy:    permission.Default(),
	}
	if opts.Publisher != nil {
		deps.Events = handler.NewEventsHandler(opts.Publisher)
	}
	if opts.Redis != nil {
		tc := opts.Throttle
		if tc.Capacity == 0 {
			tc = middleware.DefaultLoginThrottle()
		}
		deps.Throttle = middleware.Throttle(tc, opts.Redis)
	}
	s.Echo = router.New(deps)
	return s, nil
}

func (s *Server) seed(ctx context.Context) error {
	accounts := []struct{ email, password, name, role string }{
		{s.cfg.SeedAdminEmail, s.cfg.SeedAdminPassword, "League Admin", permission.RoleAdmin},
		{s.cfg.SeedUserEmail, s.cfg.SeedUserPassword, "League Player", permission.RoleUser},
	}
	for _, a := range accounts {
		if a.email == "" || a.password == "" {
			continue
		}
		_, err := s.Users.Create(ctx, a.email, a.name, a.password, a.role, s.cfg.BcryptCost)
		if err != nil && !errors.Is(err, repository.ErrEmailExists) {
			return fmt.Errorf("seed %s: %w", a.email, err)
		}
		s.log.Info("seeded account", "email", a.email, "role", a.role)
	}
	return nil
}

// Run serves on cfg.Port until ctx is done, then shuts down gracefully.
// Expired revocation rows are purged every hour.
func (s *Server) Run(ctx context.Context) error {
	go s.purgeLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + s.cfg.Port
		s.log.Info("listening", "addr", addr, "env", s.cfg.Env)
		errCh <- s.Echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Echo.Shutdown(shutdownCtx)
}

func (s *Server) purgeLoop(ctx context.Context) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := s.Tokens.PurgeExpired(ctx, now)
			if err != nil {
				s.log.Warn("purge revoked tokens", "err", err)
				continue
			}
			if n > 0 {
				s.log.Debug("purged revoked tokens", "rows", n)
			}
		}
	}
}

// Close releases the database.
func (s *Server) Close() error { return s.DB.Close() }
