package utils

import (
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func init() {
	os.Setenv("JWT_SECRET", "test-secret-key-for-unit-tests")
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken("6001", "tokengen@test.com", "customer")
	if err != nil {
		t.Fatalf("expected no error generating token, got: %v", err)
	}

	if token == "" {
		t.Fatal("expected non-empty token string")
	}

	// Verify the token has three parts (header.payload.signature)
	parts := 0
	for _, c := range token {
		if c == '.' {
			parts++
		}
	}
	if parts != 2 {
		t.Errorf("expected JWT with 2 dots, got %d dots", parts)
	}
}

func TestValidateToken(t *testing.T) {
	customerID := "6002"
	email := "validate@test.com"
	role := "admin"

	token, err := GenerateToken(customerID, email, role)
	if err != nil {
		t.Fatalf("expected no error generating token, got: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("expected no error validating token, got: %v", err)
	}

	if claims.CustomerID != customerID {
		t.Errorf("expected customer_id %s, got %s", customerID, claims.CustomerID)
	}
	if claims.Email != email {
		t.Errorf("expected email %s, got %s", email, claims.Email)
	}
	if claims.Role != role {
		t.Errorf("expected role %s, got %s", role, claims.Role)
	}
	if claims.Issuer != "atlas-backend" {
		t.Errorf("expected issuer 'atlas-backend', got %s", claims.Issuer)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	secret := os.Getenv("JWT_SECRET")

	claims := Claims{
		CustomerID: "6003",
		Email:      "expired@test.com",
		Role:       "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			Issuer:    "atlas-backend",
		},
	}

	tokenObj := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	expiredToken, err := tokenObj.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}

	_, err = ValidateToken(expiredToken)
	if err == nil {
		t.Fatal("expected error for expired token, got nil")
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	token, err := GenerateToken("6004", "tamper@test.com", "customer")
	if err != nil {
		t.Fatal(err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := ValidateToken(tampered); err == nil {
		t.Fatal("expected error for tampered token, got nil")
	}
}
