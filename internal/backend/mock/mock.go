// Package mock provides a scriptable in-memory [backend.Client] for tests.
//
// Each method returns its configured result. Setting Gate makes every call
// block until the gate is closed or the context ends, which lets tests
// observe in-flight behaviour (double submits, stale responses).
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/papo/internal/backend"
)

// CreateUserCall records one CreateUser invocation.
type CreateUserCall struct {
	Transcript string
}

// UpdateXPCall records one UpdateXP invocation.
type UpdateXPCall struct {
	UserID string
	XP     int
	Phone  string
}

// AuthenticateCall records one Authenticate invocation.
type AuthenticateCall struct {
	Name        string
	Phone       string
	VoiceMarker string
}

// Client is a mock implementation of [backend.Client].
type Client struct {
	mu sync.Mutex

	// User is returned by CreateUser. When nil a user with ID "user-1" and
	// no name is returned.
	User          *backend.User
	CreateUserErr error

	XPResult    *backend.XPResult
	UpdateXPErr error

	// AuthReason, when set, makes Authenticate answer {success: false}
	// with this message, wrapped in [backend.ErrAuthRejected] like the
	// HTTP client does.
	AuthReason string

	// AuthErr, when set, is returned by Authenticate with no result, as for
	// a transport failure. Otherwise the call succeeds.
	AuthErr error

	// Gate, if non-nil, blocks every call until it is closed.
	Gate chan struct{}

	CreateUserCalls   []CreateUserCall
	UpdateXPCalls     []UpdateXPCall
	AuthenticateCalls []AuthenticateCall
}

var _ backend.Client = (*Client)(nil)

func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	gate := c.Gate
	c.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateUser implements [backend.Client].
func (c *Client) CreateUser(ctx context.Context, transcript string) (*backend.User, error) {
	c.mu.Lock()
	c.CreateUserCalls = append(c.CreateUserCalls, CreateUserCall{Transcript: transcript})
	c.mu.Unlock()
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CreateUserErr != nil {
		return nil, c.CreateUserErr
	}
	if c.User != nil {
		u := *c.User
		return &u, nil
	}
	return &backend.User{ID: "user-1"}, nil
}

// UpdateXP implements [backend.Client].
func (c *Client) UpdateXP(ctx context.Context, userID string, xp int, phone string) (*backend.XPResult, error) {
	c.mu.Lock()
	c.UpdateXPCalls = append(c.UpdateXPCalls, UpdateXPCall{UserID: userID, XP: xp, Phone: phone})
	c.mu.Unlock()
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.UpdateXPErr != nil {
		return nil, c.UpdateXPErr
	}
	if c.XPResult != nil {
		r := *c.XPResult
		return &r, nil
	}
	return &backend.XPResult{}, nil
}

// Authenticate implements [backend.Client].
func (c *Client) Authenticate(ctx context.Context, name, phone, voiceMarker string) (*backend.AuthResult, error) {
	c.mu.Lock()
	c.AuthenticateCalls = append(c.AuthenticateCalls, AuthenticateCall{Name: name, Phone: phone, VoiceMarker: voiceMarker})
	c.mu.Unlock()
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AuthReason != "" {
		return &backend.AuthResult{Success: false, Error: c.AuthReason},
			fmt.Errorf("%w: %s", backend.ErrAuthRejected, c.AuthReason)
	}
	if c.AuthErr != nil {
		return nil, c.AuthErr
	}
	return &backend.AuthResult{Success: true}, nil
}

// Counts returns the number of calls per method.
func (c *Client) Counts() (create, xp, auth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.CreateUserCalls), len(c.UpdateXPCalls), len(c.AuthenticateCalls)
}

// LastUpdateXP returns the most recent UpdateXP call.
func (c *Client) LastUpdateXP() (UpdateXPCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.UpdateXPCalls) == 0 {
		return UpdateXPCall{}, false
	}
	return c.UpdateXPCalls[len(c.UpdateXPCalls)-1], true
}

// LastAuthenticate returns the most recent Authenticate call.
func (c *Client) LastAuthenticate() (AuthenticateCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.AuthenticateCalls) == 0 {
		return AuthenticateCall{}, false
	}
	return c.AuthenticateCalls[len(c.AuthenticateCalls)-1], true
}

// Release closes Gate if set, unblocking every pending call.
func (c *Client) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Gate != nil {
		close(c.Gate)
		c.Gate = nil
	}
}
