package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newIssuer(t *testing.T, secret string, clock func() time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(secret),
		Issuer:        DefaultIssuer,
		Audience:      DefaultAudience,
		TokenTTL:      30 * time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return issuer
}

func TestTokenIssuerIssuesOperatorTokens(t *testing.T) {
	now := time.Unix(1760000000, 0).UTC()
	issuer := newIssuer(t, "super-secret", func() time.Time { return now })

	tokenString, expiresAt, err := issuer.IssueOperatorToken(" alice ")
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if !expiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	parser := jwt.NewParser(jwt.WithTimeFunc(func() time.Time { return now }))
	claims := &jwt.RegisteredClaims{}
	_, err = parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != DefaultIssuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != DefaultAudience {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}

	if _, _, err := issuer.IssueOperatorToken("  "); err == nil {
		t.Fatalf("expected error for blank operator")
	}
}

func TestTokenIssuerValidatesIssuedTokens(t *testing.T) {
	now := time.Unix(1760000000, 0).UTC()
	issuer := newIssuer(t, "another-secret", func() time.Time { return now })

	tokenString, _, err := issuer.IssueOperatorToken("bob")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	operator, err := issuer.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if operator != "bob" {
		t.Fatalf("unexpected operator %s", operator)
	}

	if _, err := issuer.ValidateToken("invalid.token"); err == nil {
		t.Fatalf("expected validation to fail for malformed token")
	}

	other := newIssuer(t, "different-secret", func() time.Time { return now })
	if _, err := other.ValidateToken(tokenString); err == nil {
		t.Fatalf("expected validation to fail for a foreign signature")
	}
}

func TestTokenIssuerRejectsExpiredTokens(t *testing.T) {
	now := time.Unix(1760000000, 0).UTC()
	issuer := newIssuer(t, "secret", func() time.Time { return now })
	tokenString, _, err := issuer.IssueOperatorToken("carol")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	later := newIssuer(t, "secret", func() time.Time { return now.Add(31 * time.Minute) })
	if _, err := later.ValidateToken(tokenString); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestNewTokenIssuerValidatesConfig(t *testing.T) {
	cases := map[string]TokenIssuerConfig{
		"missing secret":   {Issuer: DefaultIssuer, Audience: DefaultAudience, TokenTTL: time.Minute},
		"missing issuer":   {SigningSecret: []byte("s"), Audience: DefaultAudience, TokenTTL: time.Minute},
		"missing audience": {SigningSecret: []byte("s"), Issuer: DefaultIssuer, Audience: " ", TokenTTL: time.Minute},
		"zero ttl":         {SigningSecret: []byte("s"), Issuer: DefaultIssuer, Audience: DefaultAudience},
	}
	for name, cfg := range cases {
		if _, err := NewTokenIssuer(cfg); err == nil {
			t.Fatalf("%s: expected constructor error", name)
		}
	}
}
