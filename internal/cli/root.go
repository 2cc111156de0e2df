// Package cli implements leaguectl, the terminal client for the league
// session and live notification feed.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/league-client/internal/apiclient"
	"github.com/iliyamo/league-client/internal/app"
	"github.com/iliyamo/league-client/internal/config"
	"github.com/iliyamo/league-client/internal/guard"
	"github.com/iliyamo/league-client/internal/logger"
	"github.com/iliyamo/league-client/internal/model"
	"github.com/iliyamo/league-client/internal/session"
)

// ValidFormats are the accepted --format values.
var ValidFormats = []string{"text", "json"}

// Publisher is the admin API surface used by `admin publish`.
type Publisher interface {
	Publish(ctx context.Context, cred model.Credential, topic string, typ model.EventType, payload map[string]any) (model.NotificationEvent, error)
}

// Runtime is what a command runs against.
type Runtime struct {
	App   *app.App
	Admin Publisher
}

// Factory builds the Runtime for one invocation.
type Factory func(ctx context.Context, cfg config.Config, log *slog.Logger, reg *prometheus.Registry) (*Runtime, error)

// RootOptions holds global flags and per-invocation state.
type RootOptions struct {
	Profile  string
	LogLevel string
	Format   string
	NoColor  bool

	factory Factory
	prompt  func(*model.Credentials) error

	routes map[*cobra.Command]guard.Route
	live   map[*cobra.Command]bool
	cfg    config.Config
	reg    *prometheus.Registry
	rt     *Runtime
}

// DefaultFactory wires the production client.  Invalidation runs inline so
// logout finishes before the process exits.
func DefaultFactory(ctx context.Context, cfg config.Config, log *slog.Logger, reg *prometheus.Registry) (*Runtime, error) {
	a, err := app.New(ctx, cfg, log, reg, session.WithBackground(func(fn func()) { fn() }))
	if err != nil {
		return nil, err
	}
	return &Runtime{App: a, Admin: apiclient.New(cfg.APIBaseURL, nil, cfg.HTTPTimeout)}, nil
}

// Execute runs leaguectl with the process arguments.
func Execute(ctx context.Context) error {
	opts := &RootOptions{factory: DefaultFactory, prompt: promptCredentials}
	defer opts.close()
	return newRoot(opts).ExecuteContext(ctx)
}

// NewRootCommand creates the leaguectl command tree with production wiring.
func NewRootCommand() *cobra.Command {
	return newRoot(&RootOptions{factory: DefaultFactory, prompt: promptCredentials})
}

func newRoot(opts *RootOptions) *cobra.Command {
	opts.routes = make(map[*cobra.Command]guard.Route)
	opts.live = make(map[*cobra.Command]bool)

	cmd := &cobra.Command{
		Use:   "leaguectl",
		Short: "League session and live notifications",
		Long: `leaguectl signs in to the league service, keeps the session on disk
and streams live tournament events for the topics you follow.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Profile, "config", "c", "", "YAML profile (default $LEAGUE_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level override (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewAdminCommand(opts))

	return cmd
}

// route registers the guard route a command runs behind.
func (o *RootOptions) route(cmd *cobra.Command, r guard.Route) *cobra.Command {
	o.routes[cmd] = r
	return cmd
}

// setup loads configuration, restores the persisted session and applies the
// command's guard.  Commands without a route are only bootstrapped, and only
// commands marked live keep the push connection.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.Profile)
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	o.cfg = cfg

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  cmd.ErrOrStderr(),
		NoColor: o.NoColor || os.Getenv("NO_COLOR") != "",
	})
	o.reg = prometheus.NewRegistry()
	rt, err := o.factory(cmd.Context(), cfg, log, o.reg)
	if err != nil {
		return err
	}
	o.rt = rt

	if !o.live[cmd] {
		rt.App.DetachChannel()
	}
	rt.App.Session.Bootstrap(cmd.Context())

	if r, ok := o.routes[cmd]; ok {
		return checkRoute(r, o.rt.App.Session)
	}
	return nil
}

func (o *RootOptions) close() {
	if o.rt != nil {
		_ = o.rt.App.Close()
		o.rt = nil
	}
}

// stream marks cmd as needing the push connection.
func (o *RootOptions) stream(cmd *cobra.Command) *cobra.Command {
	o.live[cmd] = true
	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
