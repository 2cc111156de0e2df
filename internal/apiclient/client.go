// Package apiclient talks to the league HTTP API on behalf of the session:
// credential exchange, whoami and credential revocation.  It also carries
// the admin-only event publish call used by leaguectl.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/league-client/internal/apperr"
	"github.com/iliyamo/league-client/internal/model"
)

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

// Client implements session.Authenticator over HTTP.
type Client struct {
	base string
	http *http.Client
}

// New returns a Client for the API at baseURL.  A nil hc gets a client with
// timeout.
func New(baseURL string, hc *http.Client, timeout time.Duration) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type loginResp struct {
	User   *model.Identity `json:"user"`
	Access tokenPart       `json:"access"`
}

type meResp struct {
	User *model.Identity `json:"user"`
}

type errResp struct {
	Error string `json:"error"`
}

// Exchange implements session.Authenticator.
func (c *Client) Exchange(ctx context.Context, creds model.Credentials) (model.Credential, model.Identity, error) {
	const op = "login"
	body, err := json.Marshal(loginReq{Email: creds.Email, Password: creds.Password})
	if err != nil {
		return "", model.Identity{}, apperr.New(apperr.KindNetworkUnavailable, op, err)
	}
	var out loginResp
	if err := c.do(ctx, op, http.MethodPost, "/v1/auth/login", "", body, &out); err != nil {
		return "", model.Identity{}, err
	}
	if out.User == nil || out.User.ID == "" || out.Access.Token == "" {
		return "", model.Identity{}, apperr.New(apperr.KindNetworkUnavailable, op, errors.New("incomplete login response"))
	}
	return model.Credential(out.Access.Token), *out.User, nil
}

// Verify implements session.Authenticator.
func (c *Client) Verify(ctx context.Context, cred model.Credential) (model.Identity, error) {
	const op = "verify"
	var out meResp
	if err := c.do(ctx, op, http.MethodGet, "/v1/me", cred, nil, &out); err != nil {
		return model.Identity{}, err
	}
	if out.User == nil || out.User.ID == "" {
		return model.Identity{}, apperr.New(apperr.KindNetworkUnavailable, op, errors.New("incomplete whoami response"))
	}
	return *out.User, nil
}

// Invalidate implements session.Authenticator.
func (c *Client) Invalidate(ctx context.Context, cred model.Credential) error {
	return c.do(ctx, "invalidate", http.MethodPost, "/v1/auth/logout", cred, nil, nil)
}

type publishReq struct {
	Type    model.EventType `json:"type"`
	Payload map[string]any  `json:"payload,omitempty"`
}

// Publish posts an event to topic.  The caller must hold the admin
// capability; the server answers 403 otherwise.
func (c *Client) Publish(ctx context.Context, cred model.Credential, topic string, typ model.EventType, payload map[string]any) (model.NotificationEvent, error) {
	const op = "publish"
	body, err := json.Marshal(publishReq{Type: typ, Payload: payload})
	if err != nil {
		return model.NotificationEvent{}, apperr.New(apperr.KindMalformedMessage, op, err)
	}
	var out model.NotificationEvent
	path := "/v1/topics/" + url.PathEscape(topic) + "/events"
	if err := c.do(ctx, op, http.MethodPost, path, cred, body, &out); err != nil {
		return model.NotificationEvent{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, cred model.Credential, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return apperr.New(apperr.KindNetworkUnavailable, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Reveal())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.New(apperr.KindNetworkUnavailable, op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return apperr.New(apperr.KindNetworkUnavailable, op, err)
	}

	if resp.StatusCode >= 300 {
		return apperr.New(kindForStatus(resp.StatusCode), op, statusError(resp.StatusCode, raw))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.New(apperr.KindNetworkUnavailable, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// kindForStatus maps a non-2xx status to an error kind.  Rejections of the
// request itself are credential problems; everything else is treated as a
// transient server or network failure.
func kindForStatus(code int) apperr.Kind {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return apperr.KindCredentialInvalid
	default:
		return apperr.KindNetworkUnavailable
	}
}

func statusError(code int, raw []byte) error {
	var e errResp
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return fmt.Errorf("http %d: %s", code, e.Error)
	}
	return fmt.Errorf("http %d", code)
}
