// Package backend is the HTTP client for the Papo user API: account creation
// from a spoken transcript, XP updates and voice sign-in.
//
// Every call is a single attempt with a per-request timeout. A circuit
// breaker fails calls fast while the API keeps returning server errors; a
// rejected sign-in or any other 4xx answer does not count against it.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrAuthRejected is returned by Authenticate when the API answered with
// success=false.
var ErrAuthRejected = errors.New("backend: authentication rejected")

// Level mirrors the user's progression as reported by the API.
type Level struct {
	Level       int `json:"level"`
	XP          int `json:"xp"`
	NextLevelXP int `json:"next_level_xp"`
}

// Achievement is an unlocked badge. Only ID is interpreted.
type Achievement struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// User is the account returned by CreateUser.
type User struct {
	ID           string        `json:"_id"`
	Name         string        `json:"name"`
	Level        *Level        `json:"level,omitempty"`
	Achievements []Achievement `json:"achievements,omitempty"`
}

// XPResult is the response of UpdateXP.
type XPResult struct {
	Level        *Level        `json:"level,omitempty"`
	Achievements []Achievement `json:"achievements,omitempty"`
}

// AuthResult is the response of Authenticate.
type AuthResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Client is the user API used by the onboarding flow.
type Client interface {
	// CreateUser registers a user from the raw welcome transcript.
	CreateUser(ctx context.Context, transcript string) (*User, error)

	// UpdateXP awards xp to userID and stores the confirmed phone.
	UpdateXP(ctx context.Context, userID string, xp int, phone string) (*XPResult, error)

	// Authenticate signs the user in. A negative answer is returned as an
	// error wrapping [ErrAuthRejected].
	Authenticate(ctx context.Context, name, phone, voiceMarker string) (*AuthResult, error)
}

// StatusError reports a non-2xx HTTP answer.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "…"
	}
	if body == "" {
		return fmt.Sprintf("backend: %s: status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("backend: %s: status %d: %s", e.Op, e.Code, body)
}

// Temporary reports whether the status indicates a server-side problem.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == 429
}

// countsAsFailure is the breaker filter: only transport errors and
// server-side statuses trip it.
func countsAsFailure(err error) bool {
	if err == nil || errors.Is(err, ErrAuthRejected) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
