// Package guard decides what a protected route should do given the session
// status and identity.  Decisions are pure values; acting on them is left to
// the caller through a Navigator.
package guard

import (
	"github.com/iliyamo/league-client/internal/model"
	"github.com/iliyamo/league-client/internal/permission"
	"github.com/iliyamo/league-client/internal/session"
)

// Decision is the outcome of evaluating a route.
type Decision int

const (
	RenderChildren Decision = iota
	ShowLoadingPlaceholder
	RedirectToLogin
	RedirectToUnauthorized
	RedirectToLanding
)

func (d Decision) String() string {
	switch d {
	case RenderChildren:
		return "render"
	case ShowLoadingPlaceholder:
		return "loading"
	case RedirectToLogin:
		return "redirect-login"
	case RedirectToUnauthorized:
		return "redirect-unauthorized"
	case RedirectToLanding:
		return "redirect-landing"
	default:
		return "unknown"
	}
}

// Requirement is what a route needs.  Empty fields are not checked.
type Requirement struct {
	Role       string
	Permission string
}

// Decide evaluates a protected route.  Checks run in order: verifying,
// authenticated, role, permission.
func Decide(status session.Status, identity *model.Identity, req Requirement, policy permission.Policy) Decision {
	if status == session.Verifying {
		return ShowLoadingPlaceholder
	}
	if status != session.Authenticated {
		return RedirectToLogin
	}
	if req.Role != "" && !permission.HasRole(identity, req.Role) {
		return RedirectToUnauthorized
	}
	if req.Permission != "" && !policy.HasPermission(identity, req.Permission) {
		return RedirectToUnauthorized
	}
	return RenderChildren
}

// DecidePublicOnly evaluates a route that only signed-out users should see,
// such as the login screen.
func DecidePublicOnly(status session.Status) Decision {
	switch status {
	case session.Verifying:
		return ShowLoadingPlaceholder
	case session.Authenticated:
		return RedirectToLanding
	default:
		return RenderChildren
	}
}

// Navigator performs a history-replacing navigation.
type Navigator interface {
	Replace(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Replace implements Navigator.
func (f NavigatorFunc) Replace(path string) { f(path) }

// Paths are the redirect targets.
type Paths struct {
	Login        string
	Unauthorized string
	Landing      string
}

// DefaultPaths returns the standard redirect targets.
func DefaultPaths() Paths {
	return Paths{Login: "/login", Unauthorized: "/unauthorized", Landing: "/"}
}

// Navigate carries out a redirect decision.  It reports whether the caller
// should render the route's content.
func Navigate(d Decision, nav Navigator, p Paths) (render bool) {
	switch d {
	case RedirectToLogin:
		nav.Replace(p.Login)
	case RedirectToUnauthorized:
		nav.Replace(p.Unauthorized)
	case RedirectToLanding:
		nav.Replace(p.Landing)
	case RenderChildren:
		return true
	}
	return false
}

// Route binds a path to its requirement.  PublicOnly routes ignore Require.
type Route struct {
	Path       string
	Require    Requirement
	PublicOnly bool
}

// StateReader is the slice of session.Session the guard needs.
type StateReader interface {
	State() session.State
	Policy() permission.Policy
}

// Evaluate decides r against the current session state.
func Evaluate(r Route, s StateReader) Decision {
	st := s.State()
	if r.PublicOnly {
		return DecidePublicOnly(st.Status)
	}
	return Decide(st.Status, st.Identity, r.Require, s.Policy())
}
