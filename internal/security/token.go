package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/parleyhq/parley/internal/domain"
)

// internalKeyID marks tokens this service minted itself (dev tooling, tests).
const internalKeyID = "internal"

// Verifier validates a bearer credential and yields the caller's user id.
type Verifier interface {
	Verify(token string) (string, error)
}

// JWTVerifier checks HS256 tokens signed by the external identity provider,
// plus internally issued tokens when an internal secret is configured.
type JWTVerifier struct {
	verifySecret   []byte
	internalSecret []byte
}

func NewJWTVerifier(verifySecret, internalSecret string) *JWTVerifier {
	v := &JWTVerifier{verifySecret: []byte(verifySecret)}
	if internalSecret != "" {
		v.internalSecret = []byte(internalSecret)
	}
	return v
}

// Verify parses and validates the token, returning the normalized user id.
// The identifier is read from the "id" claim, falling back to "userId".
func (v *JWTVerifier) Verify(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		if kid, _ := token.Header["kid"].(string); kid == internalKeyID {
			if v.internalSecret == nil {
				return nil, jwt.ErrSignatureInvalid
			}
			return v.internalSecret, nil
		}
		return v.verifySecret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", domain.Wrap(domain.CodeAuthMalformed, "token is malformed", err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", domain.Wrap(domain.CodeAuthExpired, "token is expired", err)
		default:
			return "", domain.Wrap(domain.CodeAuthInvalid, "token is invalid", err)
		}
	}
	if !token.Valid {
		return "", domain.E(domain.CodeAuthInvalid, "token is invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", domain.E(domain.CodeAuthMalformed, "token claims are malformed")
	}
	userID := claimString(claims, "id")
	if userID == "" {
		userID = claimString(claims, "userId")
	}
	if userID == "" {
		return "", domain.E(domain.CodeAuthInvalid, "token carries no user identifier")
	}
	return userID, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// Issuer mints internally issued HS256 tokens, marked with the internal key
// id so the verifier selects the right secret.
type Issuer struct {
	secret    []byte
	expiresIn time.Duration
}

func NewIssuer(secret string, expiresIn time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), expiresIn: expiresIn}
}

// IssueForUser creates a token for the given user id using the default TTL.
func (i *Issuer) IssueForUser(userID string) (string, error) {
	return i.IssueWithTTL(userID, i.expiresIn)
}

// IssueWithTTL creates a token for the given user id with an explicit TTL.
func (i *Issuer) IssueWithTTL(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":  userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = internalKeyID
	return token.SignedString(i.secret)
}
