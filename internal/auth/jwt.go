package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the iss claim of tokens minted by IssueToken. Tokens from
// other issuers are accepted only when they carry no iss claim.
const TokenIssuer = "psur-evidence"

const clockLeeway = 30 * time.Second

var (
	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("auth: empty token")
	// ErrInvalidToken is returned for tokens that fail signature or claim checks.
	ErrInvalidToken = errors.New("auth: invalid token")
	errEmptySecret  = errors.New("auth: empty secret")
)

// Claims are the bearer claims that scope a caller to one tenant's cases.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the normalized caller identity carried by the claims.
func (c *Claims) Identity() (Identity, error) {
	if c.TenantID == "" {
		return Identity{}, errors.Join(ErrInvalidToken, errors.New("missing tenant_id"))
	}
	role, ok := NormalizeRole(c.Role)
	if !ok {
		return Identity{}, errors.Join(ErrInvalidToken, errors.New("invalid role"))
	}
	if c.Issuer != "" && c.Issuer != TokenIssuer {
		return Identity{}, errors.Join(ErrInvalidToken, errors.New("foreign issuer"))
	}
	return Identity{TenantID: c.TenantID, Role: role, Subject: c.Subject}, nil
}

// ParseJWT verifies an HS256 token and returns its claims. Expiry and
// issued-at are checked by the parser with a small clock leeway.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	if len(secret) == 0 {
		return nil, errEmptySecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockLeeway),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}); err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if _, err := claims.Identity(); err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueToken signs an HS256 token for tenantID with role. A zero ttl issues a
// token without expiry.
func IssueToken(secret []byte, tenantID string, role Role, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errEmptySecret
	}
	now := time.Now().UTC()
	claims := Claims{
		TenantID: tenantID,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   TokenIssuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	if _, err := claims.Identity(); err != nil {
		return "", err
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
