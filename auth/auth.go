package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInsufficientScope indicates the caller authenticated but lacks required scope.
var ErrInsufficientScope = errors.New("insufficient scope")

// UserInfo represents an authenticated principal.
type UserInfo interface {
	// UserID returns the token subject.
	UserID() string
	// Claims unmarshals the token claims into ref.
	Claims(ref any) error
}

// Authenticator validates bearer tokens and returns associated user info.
// It returns an error wrapping ErrUnauthorized for invalid credentials.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string { return u.sub }

func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// NewUserInfo returns a UserInfo for sub carrying claims.
func NewUserInfo(sub string, claims map[string]any) UserInfo {
	return &userInfo{sub: sub, claims: claims}
}

type config struct {
	audiences      []string
	requiredScopes []string
	scopeModeAny   bool
	allowedAlgs    []string
	leeway         time.Duration
}

// Option configures token validation policy.
type Option func(*config)

// WithAdditionalAudiences accepts tokens minted for any of auds besides the
// primary audience.
func WithAdditionalAudiences(auds ...string) Option {
	return func(c *config) { c.audiences = append(c.audiences, auds...) }
}

// WithRequiredScopes requires all of the provided scopes to be present in the
// space-delimited "scope" claim.
func WithRequiredScopes(scopes ...string) Option {
	return func(c *config) {
		c.requiredScopes = append([]string(nil), scopes...)
		c.scopeModeAny = false
	}
}

// WithAnyRequiredScope requires at least one of the provided scopes to be present.
func WithAnyRequiredScope(scopes ...string) Option {
	return func(c *config) {
		c.requiredScopes = append([]string(nil), scopes...)
		c.scopeModeAny = true
	}
}

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never allowed.
func WithAllowedAlgs(algs ...string) Option {
	return func(c *config) { c.allowedAlgs = append([]string(nil), algs...) }
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) Option {
	return func(c *config) { c.leeway = d }
}

func newConfig(audience string, defaultAlgs []string, opts []Option) *config {
	c := &config{allowedAlgs: defaultAlgs, leeway: 60 * time.Second}
	if audience != "" {
		c.audiences = []string{audience}
	}
	for _, opt := range opts {
		opt(c)
	}
	algs := make([]string, 0, len(c.allowedAlgs))
	for _, a := range c.allowedAlgs {
		if a != "none" {
			algs = append(algs, a)
		}
	}
	c.allowedAlgs = algs
	return c
}
