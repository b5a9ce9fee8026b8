package semaphore

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// AuthMode selects how a Session authenticates.
type AuthMode string

const (
	// AuthModePassword logs in once with a username and password and keeps
	// the returned session cookie.
	AuthModePassword AuthMode = "password"

	// AuthModeToken sends a pre-issued API token as a bearer header.
	AuthModeToken AuthMode = "token"
)

const loginPath = "/auth/login"

// Session holds the credentials of one Client. A session is bound to the
// first Client built with it and cannot be shared.
type Session struct {
	mode     AuthMode
	username string
	password string
	token    string

	mu            sync.Mutex
	owner         *Client
	authenticated bool
	logins        int
}

// NewPasswordSession returns a cookie-mode session.
func NewPasswordSession(username, password string) *Session {
	return &Session{
		mode:     AuthModePassword,
		username: username,
		password: password,
	}
}

// NewTokenSession returns a bearer-token session.
func NewTokenSession(token string) *Session {
	return &Session{
		mode:  AuthModeToken,
		token: token,
	}
}

// Mode reports the session's authentication mode.
func (s *Session) Mode() AuthMode {
	return s.mode
}

// Authenticated reports whether the session currently believes it is logged in.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Logins returns the number of login requests the session has sent.
func (s *Session) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *Session) bind(c *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != nil && s.owner != c {
		return errors.New("semaphore: session is already owned by another client")
	}
	s.owner = c
	return nil
}

// authorize decorates an outgoing resource request.
func (s *Session) authorize(req *http.Request) {
	if s.mode == AuthModeToken {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

// invalidate marks the session as logged out after a 401.
func (s *Session) invalidate() {
	s.mu.Lock()
	s.authenticated = false
	s.mu.Unlock()
}

// ensure logs in when the session is not authenticated. The lock is held
// across the login so concurrent callers share a single login request.
func (s *Session) ensure(ctx context.Context, c *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authenticated {
		return nil
	}
	return s.loginLocked(ctx, c)
}

func (s *Session) loginLocked(ctx context.Context, c *Client) error {
	if s.mode == AuthModeToken {
		s.authenticated = true
		return nil
	}

	s.logins++
	body := map[string]string{
		"auth":     s.username,
		"password": s.password,
	}
	status, data, apiErr := c.send(ctx, http.MethodPost, loginPath, body, nil, false)
	if apiErr != nil {
		return &AuthError{
			Reason:  AuthUnreachable,
			Message: apiErr.Message,
			Err:     apiErr,
		}
	}
	if status < 200 || status >= 300 {
		return &AuthError{
			Reason:     AuthInvalidCredentials,
			StatusCode: status,
			Message:    serverMessage(data, status),
		}
	}

	s.authenticated = true
	c.logger.Debug().Str("user", s.username).Int("status", status).Msg("Session established")
	return nil
}

// Authenticate establishes the session now instead of on the first call.
// In token mode it records the token without a network round trip.
func (c *Client) Authenticate(ctx context.Context) error {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	return c.session.loginLocked(ctx, c)
}
