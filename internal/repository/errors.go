// Package repository holds the dev API's persistence: user accounts and
// revoked access tokens, stored in SQLite.  Sentinel errors let handlers
// pick the HTTP status without inspecting driver errors.
package repository

import "errors"

// ErrEmailExists is returned by UserRepo.Create for a duplicate email.
// Handlers translate it into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")
