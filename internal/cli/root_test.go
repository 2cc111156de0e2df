package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/league-client/internal/apiclient"
	"github.com/iliyamo/league-client/internal/app"
	"github.com/iliyamo/league-client/internal/apperr"
	"github.com/iliyamo/league-client/internal/config"
	"github.com/iliyamo/league-client/internal/credstore"
	"github.com/iliyamo/league-client/internal/devapi"
	"github.com/iliyamo/league-client/internal/devapi/devapitest"
	"github.com/iliyamo/league-client/internal/guard"
	"github.com/iliyamo/league-client/internal/metrics"
	"github.com/iliyamo/league-client/internal/model"
	"github.com/iliyamo/league-client/internal/permission"
	"github.com/iliyamo/league-client/internal/realtime/memtransport"
	"github.com/iliyamo/league-client/internal/session"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "leaguectl", cmd.Use)
	assert.Contains(t, cmd.Long, "tournament events")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{{"login"}, {"logout"}, {"whoami"}, {"watch"}, {"admin", "publish"}}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	watchCmd, _, err := cmd.Find([]string{"watch"})
	require.NoError(t, err)
	assert.NotNil(t, watchCmd.Flags().Lookup("metrics-addr"))
	assert.Equal(t, "t", watchCmd.Flags().Lookup("topic").Shorthand)
}

// fixture runs commands against a dev API and an in-memory push transport.
// The credential store is shared so the session carries across invocations
// the way the file store does between processes.
type fixture struct {
	api    *apiclient.Client
	pub    *devapitest.Publisher
	store  *credstore.MemoryStore
	mt     *memtransport.Transport
	prompt func(*model.Credentials) error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("LEAGUE_CONFIG", "")
	pub := &devapitest.Publisher{}
	ts, _ := devapitest.Start(t, devapi.Options{Publisher: pub})
	return &fixture{
		api:   apiclient.New(ts.URL, nil, 5*time.Second),
		pub:   pub,
		store: credstore.NewMemoryStore(),
		mt:    memtransport.New(),
		prompt: func(*model.Credentials) error {
			return errors.New("no terminal")
		},
	}
}

func (f *fixture) factory(_ context.Context, _ config.Config, log *slog.Logger, reg *prometheus.Registry) (*Runtime, error) {
	a := app.Assemble(app.Deps{
		Auth:           f.api,
		Store:          f.store,
		Transport:      f.mt,
		Logger:         log,
		Metrics:        metrics.New(reg),
		SessionOptions: []session.Option{session.WithBackground(func(fn func()) { fn() })},
	})
	return &Runtime{App: a, Admin: f.api}, nil
}

func (f *fixture) run(args ...string) (string, error) {
	opts := &RootOptions{factory: f.factory, prompt: f.prompt}
	defer opts.close()

	var out bytes.Buffer
	cmd := newRoot(opts)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--no-color", "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (f *fixture) login(t *testing.T, email, password string) {
	t.Helper()
	_, err := f.run("login", "-e", email, "-p", password)
	require.NoError(t, err)
}

func TestLoginWhoamiLogout(t *testing.T) {
	f := newFixture(t)

	out, err := f.run("login", "--email", devapitest.AdminEmail, "--password", devapitest.AdminPassword)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as League Admin <admin@league.test>")

	out, err = f.run("whoami", "--format", "json")
	require.NoError(t, err)
	var who identityView
	require.NoError(t, json.Unmarshal([]byte(out), &who))
	assert.Equal(t, "authenticated", who.Status)
	require.NotNil(t, who.Identity)
	assert.Equal(t, permission.RoleAdmin, who.Identity.Role)
	assert.Equal(t, []string{permission.CapAdmin}, who.Capabilities)

	out, err = f.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out admin@league.test.")
	rec, _ := f.store.Load(context.Background())
	assert.Nil(t, rec)

	_, err = f.run("whoami")
	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.Empty(t, f.mt.Opens(), "one-shot commands never dial the push transport")

	out, err = f.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestLoginWhenAlreadySignedIn(t *testing.T) {
	f := newFixture(t)
	f.login(t, devapitest.UserEmail, devapitest.UserPassword)

	_, err := f.run("login", "-e", devapitest.AdminEmail, "-p", devapitest.AdminPassword)
	assert.ErrorIs(t, err, ErrAlreadySignedIn)
}

func TestLoginPromptsForMissingFields(t *testing.T) {
	f := newFixture(t)
	var asked model.Credentials
	f.prompt = func(c *model.Credentials) error {
		asked = *c
		c.Password = devapitest.UserPassword
		return nil
	}

	out, err := f.run("login", "-e", devapitest.UserEmail)
	require.NoError(t, err)
	assert.Equal(t, devapitest.UserEmail, asked.Email)
	assert.Empty(t, asked.Password)
	assert.Contains(t, out, "League Player")
}

func TestLoginRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.run("login", "-e", devapitest.UserEmail, "-p", "wrong")
	assert.ErrorIs(t, err, apperr.ErrCredentialInvalid)

	_, err = f.run("whoami")
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestAdminPublishIsGated(t *testing.T) {
	f := newFixture(t)
	args := []string{"admin", "publish", "-t", "tournament-42", "--type", "score.updated", "--payload", `{"home":2}`}

	_, err := f.run(args...)
	assert.ErrorIs(t, err, ErrNotSignedIn)

	f.login(t, devapitest.UserEmail, devapitest.UserPassword)
	_, err = f.run(args...)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, f.pub.Events())

	_, err = f.run("logout")
	require.NoError(t, err)
	f.login(t, devapitest.AdminEmail, devapitest.AdminPassword)

	out, err := f.run(args...)
	require.NoError(t, err)
	assert.Contains(t, out, "Published score.updated to tournament-42")
	require.Len(t, f.pub.Events(), 1)
	assert.Equal(t, 2.0, f.pub.Events()[0].Payload["home"])
}

func TestAdminPublishValidatesFlags(t *testing.T) {
	f := newFixture(t)
	f.login(t, devapitest.AdminEmail, devapitest.AdminPassword)

	_, err := f.run("admin", "publish", "-t", "tournament-42")
	assert.ErrorContains(t, err, "--topic and --type are required")

	_, err = f.run("admin", "publish", "-t", "tournament-42", "--type", "x", "--payload", "[1]")
	assert.ErrorContains(t, err, "JSON object")
	assert.Empty(t, f.pub.Events())
}

func TestInvalidFormat(t *testing.T) {
	f := newFixture(t)
	_, err := f.run("whoami", "--format", "yaml")
	assert.ErrorContains(t, err, `invalid format "yaml"`)
}

type fixedState struct{ st session.State }

func (s fixedState) State() session.State      { return s.st }
func (s fixedState) Policy() permission.Policy { return permission.Default() }

func TestCheckRoute(t *testing.T) {
	admin := &model.Identity{ID: "1", Role: permission.RoleAdmin}
	player := &model.Identity{ID: "2", Role: permission.RoleUser}
	adminOnly := guard.Route{Require: guard.Requirement{Permission: permission.CapAdmin}}
	login := guard.Route{PublicOnly: true}

	cases := []struct {
		name  string
		route guard.Route
		st    session.State
		want  error
	}{
		{"verifying", adminOnly, session.State{Status: session.Verifying}, ErrVerifying},
		{"signed out", adminOnly, session.State{Status: session.Unauthenticated}, ErrNotSignedIn},
		{"expired", adminOnly, session.State{Status: session.Expired}, ErrNotSignedIn},
		{"player", adminOnly, session.State{Status: session.Authenticated, Identity: player, Credential: "t"}, ErrUnauthorized},
		{"admin", adminOnly, session.State{Status: session.Authenticated, Identity: admin, Credential: "t"}, nil},
		{"login while signed in", login, session.State{Status: session.Authenticated, Identity: player, Credential: "t"}, ErrAlreadySignedIn},
		{"login while signed out", login, session.State{Status: session.Unauthenticated}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkRoute(tc.route, fixedState{tc.st})
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
