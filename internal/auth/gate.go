// Package auth implements bearer-credential validation and route
// classification for the gateway's protected endpoints.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jetgate/jetgate/pkg/fail"
)

// clockSkewTolerance is the leeway allowed on token expiry to absorb clock drift
// between the gateway and the token issuer.
const clockSkewTolerance = 5 * time.Minute

// Gate validates bearer credentials against a configured signing key, issuer,
// and audience. A zero-value Gate with an empty Key is "disabled": every
// request is admitted, per the explicit operator opt-in.
type Gate struct {
	Key      string
	Issuer   string
	Audience string
}

// New builds a gate from the gateway's configuration.
func New(key, issuer, audience string) *Gate {
	return &Gate{Key: key, Issuer: issuer, Audience: audience}
}

// Disabled reports whether the gate admits every request unconditionally.
func (g *Gate) Disabled() bool {
	return g.Key == ""
}

// Authenticate validates the Authorization header value (the full
// "Bearer <token>" string) against the configured key/issuer/audience.
// Any failure is reported as fail.Unauthenticated: a bad signature, an
// expired token, or a mismatched issuer/audience never reaches any
// downstream component.
func (g *Gate) Authenticate(authorizationHeader string) error {
	if g.Disabled() {
		return nil
	}

	token := strings.TrimSpace(strings.TrimPrefix(authorizationHeader, "Bearer"))
	if token == "" || token == authorizationHeader {
		return fail.Unauthenticated("missing or malformed bearer credential")
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fail.Unauthenticated("unexpected signing method %v", t.Method.Alg())
		}
		return []byte(g.Key), nil
	}, jwt.WithLeeway(clockSkewTolerance))
	if err != nil || !parsed.Valid {
		return fail.Unauthenticated("invalid bearer credential: %v", err)
	}

	if g.Issuer != "" {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer != g.Issuer {
			return fail.Unauthenticated("unexpected token issuer")
		}
	}

	if g.Audience != "" {
		audience, err := claims.GetAudience()
		if err != nil || !containsString(audience, g.Audience) {
			return fail.Unauthenticated("unexpected token audience")
		}
	}

	return nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// IsProtected classifies a route: only the health endpoint (and, per the
// ambient metrics addition, /metrics) is anonymous.
func IsProtected(path string) bool {
	switch path {
	case "/health", "/metrics":
		return false
	default:
		return true
	}
}
