package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetgate/jetgate/internal/auth"
	"github.com/jetgate/jetgate/pkg/fail"
)

const testKey = "super-secret-signing-key"

func signToken(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func TestGate_DisabledWhenNoKeyConfigured(t *testing.T) {
	g := auth.New("", "", "")
	assert.True(t, g.Disabled())
	assert.NoError(t, g.Authenticate(""))
	assert.NoError(t, g.Authenticate("Bearer garbage"))
}

func TestGate_AcceptsValidToken(t *testing.T) {
	g := auth.New(testKey, "", "")
	token := signToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testKey)

	err := g.Authenticate("Bearer " + token)
	assert.NoError(t, err)
}

func TestGate_RejectsMissingHeader(t *testing.T) {
	g := auth.New(testKey, "", "")
	err := g.Authenticate("")
	require.Error(t, err)
	assert.Equal(t, 401, fail.Status(err))
}

func TestGate_RejectsWrongSigningKey(t *testing.T) {
	g := auth.New(testKey, "", "")
	token := signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, "wrong-key")

	err := g.Authenticate("Bearer " + token)
	require.Error(t, err)
	assert.True(t, fail.IsUnauthenticated(err))
}

func TestGate_RejectsExpiredTokenBeyondLeeway(t *testing.T) {
	g := auth.New(testKey, "", "")
	token := signToken(t, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}, testKey)

	err := g.Authenticate("Bearer " + token)
	require.Error(t, err)
	assert.True(t, fail.IsUnauthenticated(err))
}

func TestGate_ToleratesSmallClockSkew(t *testing.T) {
	g := auth.New(testKey, "", "")
	// Expired 2 minutes ago - inside the 5 minute leeway.
	token := signToken(t, jwt.MapClaims{"exp": time.Now().Add(-2 * time.Minute).Unix()}, testKey)

	err := g.Authenticate("Bearer " + token)
	assert.NoError(t, err)
}

func TestGate_ValidatesIssuerAndAudienceWhenConfigured(t *testing.T) {
	g := auth.New(testKey, "jetgate", "jetgate-clients")

	valid := signToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
		"iss": "jetgate",
		"aud": "jetgate-clients",
	}, testKey)
	assert.NoError(t, g.Authenticate("Bearer "+valid))

	wrongIssuer := signToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
		"iss": "someone-else",
		"aud": "jetgate-clients",
	}, testKey)
	assert.Error(t, g.Authenticate("Bearer "+wrongIssuer))

	wrongAudience := signToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
		"iss": "jetgate",
		"aud": "someone-else",
	}, testKey)
	assert.Error(t, g.Authenticate("Bearer "+wrongAudience))
}

func TestGate_RejectsNonHMACSigningMethod(t *testing.T) {
	g := auth.New(testKey, "", "")
	// alg "none" must never be accepted regardless of claims.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	err = g.Authenticate("Bearer " + token)
	assert.Error(t, err)
}

func TestIsProtected(t *testing.T) {
	assert.False(t, auth.IsProtected("/health"))
	assert.False(t, auth.IsProtected("/metrics"))
	assert.True(t, auth.IsProtected("/api/messages/events.orders"))
}
