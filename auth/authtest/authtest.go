// Package authtest provides Authenticator fakes for transport tests.
package authtest

import (
	"context"
	"fmt"

	"github.com/ggoodman/transcripter-mcp/auth"
)

// Static accepts a fixed set of tokens, each mapped to a user id.
type Static struct {
	Tokens map[string]string
}

// NewStatic returns a Static authenticator accepting token for userID.
func NewStatic(token, userID string) *Static {
	return &Static{Tokens: map[string]string{token: userID}}
}

func (s *Static) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	uid, ok := s.Tokens[tok]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", auth.ErrUnauthorized)
	}
	return auth.NewUserInfo(uid, map[string]any{"sub": uid}), nil
}

var _ auth.Authenticator = (*Static)(nil)
