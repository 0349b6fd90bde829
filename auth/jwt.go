package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// jwtAuthenticator validates signed JWTs against a key source and policy.
type jwtAuthenticator struct {
	cfg     *config
	issuer  string
	keyfunc jwt.Keyfunc
}

// NewHMAC returns an Authenticator for HS256 tokens signed with secret. An
// empty issuer or audience disables the corresponding check.
func NewHMAC(secret []byte, issuer, audience string, opts ...Option) (Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("hmac secret is required")
	}
	cfg := newConfig(audience, []string{"HS256"}, opts)
	key := slices.Clone(secret)
	return newJWTAuthenticator(cfg, issuer, func(*jwt.Token) (any, error) {
		return key, nil
	}), nil
}

// NewJWKS returns an Authenticator for RS256 tokens whose keys are served at
// jwksURL. Keys are refreshed until ctx is done.
func NewJWKS(ctx context.Context, jwksURL, issuer, audience string, opts ...Option) (Authenticator, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url is required")
	}
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if audience == "" {
		return nil, errors.New("audience is required")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	cfg := newConfig(audience, []string{"RS256"}, opts)
	return newJWTAuthenticator(cfg, issuer, kf.Keyfunc), nil
}

// NewFromDiscovery performs OIDC discovery against issuer to locate its JWKS
// and returns an Authenticator for the tokens it mints.
func NewFromDiscovery(ctx context.Context, issuer, audience string, opts ...Option) (Authenticator, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}
	return NewJWKS(ctx, meta.JwksURI, meta.Issuer, audience, opts...)
}

func newJWTAuthenticator(cfg *config, issuer string, kf jwt.Keyfunc) *jwtAuthenticator {
	return &jwtAuthenticator{
		cfg:    cfg,
		issuer: issuer,
		keyfunc: func(t *jwt.Token) (any, error) {
			if alg := t.Method.Alg(); !slices.Contains(cfg.allowedAlgs, alg) {
				return nil, fmt.Errorf("disallowed alg: %s", alg)
			}
			return kf(t)
		},
	}
}

func (a *jwtAuthenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(a.cfg.allowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.cfg.leeway),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	parsed, err := jwt.NewParser(opts...).Parse(tok, a.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	if len(a.cfg.audiences) > 0 && !audIntersects(claims["aud"], a.cfg.audiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}
	if iatf, ok := claims["iat"].(float64); ok {
		iat := time.Unix(int64(iatf), 0)
		if iat.After(time.Now().Add(a.cfg.leeway + 5*time.Minute)) {
			return nil, fmt.Errorf("%w: iat too far in future", ErrUnauthorized)
		}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}

	if len(a.cfg.requiredScopes) > 0 {
		scopeStr, _ := claims["scope"].(string)
		have := strings.Fields(scopeStr)
		if a.cfg.scopeModeAny {
			if !slices.ContainsFunc(a.cfg.requiredScopes, func(s string) bool { return slices.Contains(have, s) }) {
				return nil, ErrInsufficientScope
			}
		} else {
			for _, want := range a.cfg.requiredScopes {
				if !slices.Contains(have, want) {
					return nil, ErrInsufficientScope
				}
			}
		}
	}

	return &userInfo{sub: sub, claims: claims}, nil
}

func audIntersects(aud any, want []string) bool {
	switch v := aud.(type) {
	case string:
		return slices.Contains(want, v)
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && slices.Contains(want, s) {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if slices.Contains(want, s) {
				return true
			}
		}
	}
	return false
}
