// Package auth authenticates API requests against the identity provider.
//
// # Authentication Flow
//
// Clients obtain an access token from Keycloak and present it on every
// request in the header literally named Authentication (not Authorization —
// the wire protocol predates this service and is kept as-is):
//
//	Authentication: Bearer <compact-JWT>
//
// The verifier:
//  1. Splits the header on whitespace and takes the second token as the JWT.
//  2. Verifies it as RS256 against the JWKS signature keys fetched from the
//     IdP at startup (see FetchKeys).
//  3. Validates the time claims. The audience claim is not checked.
//  4. Injects the verified Claims into the request context.
//
// Every failure, including a missing header, yields HTTP 403 with the
// access-denied envelope; the wrapped handler is never called.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// HeaderName is the request header carrying the bearer token.
const HeaderName = "Authentication"

// contextKey is an unexported type for context keys in this package to avoid
// collisions with keys defined in other packages.
type contextKey int

const claimsKey contextKey = 0

// Claims holds the verified token claims handlers may consult.
type Claims struct {
	// Subject is the "sub" registered claim.
	Subject string
	// Username is Keycloak's preferred_username claim, empty when absent.
	Username string
}

// ClaimsFromContext retrieves the Claims injected by Middleware. It returns
// (nil, false) when the request was not authenticated.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

func newContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// Verifier checks request bearer tokens against the trusted key set.
type Verifier struct {
	keys   jwk.Set
	logger *slog.Logger
}

// NewVerifier creates a Verifier over a key set from FetchKeys.
func NewVerifier(keys jwk.Set, logger *slog.Logger) *Verifier {
	return &Verifier{keys: keys, logger: logger}
}

// Authenticate validates the Authentication header of r and returns the
// token's claims.
func (v *Verifier) Authenticate(r *http.Request) (*Claims, error) {
	parts := strings.Fields(r.Header.Get(HeaderName))
	if len(parts) < 2 {
		return nil, errors.New("auth: missing or malformed Authentication header")
	}
	bearer := parts[1]

	tok, err := jwt.Parse([]byte(bearer),
		jwt.WithKeySet(v.keys),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: token rejected: %w", err)
	}

	claims := &Claims{Subject: tok.Subject()}
	if raw, ok := tok.Get("preferred_username"); ok {
		if username, ok := raw.(string); ok {
			claims.Username = username
		}
	}

	v.logger.Debug("auth: user authorized", slog.String("username", claims.Username))
	return claims, nil
}

// Middleware enforces bearer authentication for every request it wraps.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := v.Authenticate(r)
		if err != nil {
			v.logger.Warn("auth: request rejected",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Any("error", err),
			)
			writeDenied(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(newContext(r.Context(), claims)))
	})
}

// writeDenied emits the access-denied envelope. The body is fixed, so it is
// written literally.
func writeDenied(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"Success":false,"Errors":{"Access":"denied","Code":403}}`))
}
