package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	out, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return out
}

func TestValidate(t *testing.T) {
	const secret = "test-secret"

	token := signToken(t, secret, jwt.MapClaims{"sub": "bob", "exp": time.Now().Add(time.Hour).Unix()})
	sub, err := validate(token, secret)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if sub != "bob" {
		t.Errorf("subject = %q, want bob", sub)
	}
}

func TestValidateRejections(t *testing.T) {
	const secret = "test-secret"
	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, "other-secret", jwt.MapClaims{"sub": "bob"})},
		{"expired", signToken(t, secret, jwt.MapClaims{"sub": "bob", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"no subject", signToken(t, secret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})},
		{"garbage", "not.a.token"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := validate(tc.token, secret); err == nil {
				t.Error("validate accepted the token")
			}
		})
	}
}
