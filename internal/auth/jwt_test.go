package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, "tenant-a", RoleOperator, "qa-1", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseJWT(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.TenantID != "tenant-a" || claims.Role != "operator" || claims.Subject != "qa-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := ParseJWT(token, []byte("other")); err == nil {
		t.Fatalf("expected signature error with wrong secret")
	}
}

func TestIssueTokenRejectsBadInput(t *testing.T) {
	if _, err := IssueToken(nil, "tenant-a", RoleViewer, "", 0); err == nil {
		t.Fatalf("expected empty secret error")
	}
	if _, err := IssueToken([]byte("s"), "", RoleViewer, "", 0); err == nil {
		t.Fatalf("expected missing tenant error")
	}
	if _, err := IssueToken([]byte("s"), "tenant-a", Role("root"), "", 0); err == nil {
		t.Fatalf("expected invalid role error")
	}
}

func TestParseJWTRejectsForeignAndExpiredTokens(t *testing.T) {
	secret := []byte("test-secret")
	sign := func(claims Claims) string {
		t.Helper()
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return signed
	}
	now := time.Now()

	foreign := sign(Claims{TenantID: "tenant-a", Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere"}})
	if _, err := ParseJWT(foreign, secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign issuer must be rejected, got %v", err)
	}
	expired := sign(Claims{TenantID: "tenant-a", Role: "viewer", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
	}})
	if _, err := ParseJWT(expired, secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token must be rejected, got %v", err)
	}
	noTenant := sign(Claims{Role: "viewer"})
	if _, err := ParseJWT(noTenant, secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token without tenant must be rejected, got %v", err)
	}
	if _, err := ParseJWT("", secret); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}

	unscoped := sign(Claims{TenantID: "tenant-a", Role: "Operator", RegisteredClaims: jwt.RegisteredClaims{Subject: "svc"}})
	claims, err := ParseJWT(unscoped, secret)
	if err != nil {
		t.Fatalf("token without issuer should parse: %v", err)
	}
	id, _ := claims.Identity()
	if id.Role != RoleOperator || id.TenantID != "tenant-a" {
		t.Fatalf("unexpected identity %+v", id)
	}
}
