package cli

import (
	"errors"

	"github.com/iliyamo/league-client/internal/guard"
)

// Guard outcomes surfaced as command errors.
var (
	ErrNotSignedIn     = errors.New("not signed in: run `leaguectl login` first")
	ErrUnauthorized    = errors.New("your account is not allowed to run this command")
	ErrAlreadySignedIn = errors.New("already signed in: run `leaguectl logout` first")
	ErrVerifying       = errors.New("session is still being verified")
)

var paths = guard.DefaultPaths()

// checkRoute evaluates r and turns a redirect into the matching error.
func checkRoute(r guard.Route, s guard.StateReader) error {
	var target string
	d := guard.Evaluate(r, s)
	if guard.Navigate(d, guard.NavigatorFunc(func(p string) { target = p }), paths) {
		return nil
	}
	switch target {
	case paths.Login:
		return ErrNotSignedIn
	case paths.Unauthorized:
		return ErrUnauthorized
	case paths.Landing:
		return ErrAlreadySignedIn
	default:
		return ErrVerifying
	}
}
