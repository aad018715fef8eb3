package security_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/security"
)

func signExternal(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerify(t *testing.T) {
	verifier := security.NewJWTVerifier("verify-secret", "internal-secret")
	now := time.Now()

	t.Run("IDClaim", func(t *testing.T) {
		tok := signExternal(t, "verify-secret", jwt.MapClaims{
			"id":  "u-123",
			"exp": now.Add(time.Hour).Unix(),
		})
		userID, err := verifier.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, "u-123", userID)
	})

	t.Run("UserIDClaimFallback", func(t *testing.T) {
		tok := signExternal(t, "verify-secret", jwt.MapClaims{
			"userId": "u-456",
			"exp":    now.Add(time.Hour).Unix(),
		})
		userID, err := verifier.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, "u-456", userID)
	})

	t.Run("MissingIdentifier", func(t *testing.T) {
		tok := signExternal(t, "verify-secret", jwt.MapClaims{
			"sub": "u-789",
			"exp": now.Add(time.Hour).Unix(),
		})
		_, err := verifier.Verify(tok)
		assert.True(t, domain.IsCode(err, domain.CodeAuthInvalid))
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := verifier.Verify("not.a.token")
		assert.True(t, domain.IsCode(err, domain.CodeAuthMalformed))
	})

	t.Run("WrongSignature", func(t *testing.T) {
		tok := signExternal(t, "other-secret", jwt.MapClaims{
			"id":  "u-123",
			"exp": now.Add(time.Hour).Unix(),
		})
		_, err := verifier.Verify(tok)
		assert.True(t, domain.IsCode(err, domain.CodeAuthInvalid))
	})

	t.Run("Expired", func(t *testing.T) {
		tok := signExternal(t, "verify-secret", jwt.MapClaims{
			"id":  "u-123",
			"exp": now.Add(-time.Minute).Unix(),
		})
		_, err := verifier.Verify(tok)
		assert.True(t, domain.IsCode(err, domain.CodeAuthExpired))
	})
}

func TestIssuer(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		issuer := security.NewIssuer("internal-secret", time.Hour)
		verifier := security.NewJWTVerifier("verify-secret", "internal-secret")

		tok, err := issuer.IssueForUser("u-dev")
		require.NoError(t, err)

		userID, err := verifier.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, "u-dev", userID)
	})

	t.Run("RejectedWithoutInternalSecret", func(t *testing.T) {
		issuer := security.NewIssuer("internal-secret", time.Hour)
		verifier := security.NewJWTVerifier("verify-secret", "")

		tok, err := issuer.IssueForUser("u-dev")
		require.NoError(t, err)

		_, err = verifier.Verify(tok)
		assert.True(t, domain.IsCode(err, domain.CodeAuthInvalid))
	})

	t.Run("ExpiredInternal", func(t *testing.T) {
		issuer := security.NewIssuer("internal-secret", time.Hour)
		verifier := security.NewJWTVerifier("verify-secret", "internal-secret")

		tok, err := issuer.IssueWithTTL("u-dev", -time.Minute)
		require.NoError(t, err)

		_, err = verifier.Verify(tok)
		assert.True(t, domain.IsCode(err, domain.CodeAuthExpired))
	})
}
