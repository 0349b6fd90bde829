// Package auth validates bearer tokens presented to the HTTP transport.
//
// An Authenticator checks a raw token string and returns a UserInfo. The
// transport extracts the token from the Authorization header and maps the
// sentinel errors onto HTTP challenges: ErrUnauthorized becomes 401 and
// ErrInsufficientScope becomes 403.
//
// Three constructors cover the supported key sources:
//
//	authn, err := auth.NewHMAC([]byte(secret), issuer, audience)
//	authn, err := auth.NewJWKS(ctx, jwksURL, issuer, audience)
//	authn, err := auth.NewFromDiscovery(ctx, issuer, audience,
//	    auth.WithRequiredScopes("transcripts:read"),
//	)
//
// Signature, issuer, audience and expiry are verified in every mode. JWKS keys
// are refreshed in the background for the lifetime of ctx.
package auth
