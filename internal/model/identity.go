package model

import "log/slog"

// Identity is the authenticated user's descriptive record as returned by the
// remote API.  The client never derives it locally; the server is
// authoritative and every successful verification overwrites the cached copy.
//
// Fields:
//  ID          – stable user identifier.
//  DisplayName – human readable name shown in the UI.
//  Email       – sign-in email.
//  Role        – role name used by the permission policy (e.g. "admin", "user").
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// Credential is the opaque bearer token proving an authenticated session.
// It is never parsed by the client.  The empty value means "no credential".
type Credential string

const redacted = "[REDACTED]"

// String keeps the token out of fmt output.
func (c Credential) String() string {
	if c == "" {
		return ""
	}
	return redacted
}

// LogValue keeps the token out of structured logs.
func (c Credential) LogValue() slog.Value {
	if c == "" {
		return slog.StringValue("")
	}
	return slog.StringValue(redacted)
}

// Reveal returns the raw token.  Only transports and the API client call it.
func (c Credential) Reveal() string { return string(c) }

// Credentials are the sign-in inputs exchanged for a Credential.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LogValue omits the password.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("email", c.Email))
}
