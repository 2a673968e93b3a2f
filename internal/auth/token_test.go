package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var secret = []byte("test-secret")

func TestIssueAndParseSessionToken(t *testing.T) {
	token, err := IssueToken(secret, Claims{
		Sub:  "user-1",
		Name: "Rin",
		JTI:  "jti-1",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Sub != "user-1" || claims.Name != "Rin" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Kind != KindSession {
		t.Fatalf("kind defaulted to %q, want session", claims.Kind)
	}
}

func TestFormPassTokenRequiresFormID(t *testing.T) {
	token, err := IssueToken(secret, Claims{
		Sub:  "anon",
		Kind: KindFormPass,
		JTI:  "jti-2",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ParseToken(secret, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("pass token without formId parsed: %v", err)
	}

	token, err = IssueToken(secret, Claims{
		Sub:    "anon",
		Kind:   KindFormPass,
		FormID: "form-9",
		JTI:    "jti-3",
		Exp:    time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.FormID != "form-9" {
		t.Fatalf("formId = %q", claims.FormID)
	}
}

func TestExpiredToken(t *testing.T) {
	token, err := IssueToken(secret, Claims{
		Sub: "user-1",
		JTI: "jti-4",
		Exp: time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ParseToken(secret, token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestTamperedToken(t *testing.T) {
	token, err := IssueToken(secret, Claims{
		Sub: "user-1",
		JTI: "jti-5",
		Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + "x." + parts[1]
	if _, err := ParseToken(secret, tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token parsed: %v", err)
	}
	if _, err := ParseToken([]byte("other-secret"), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong-secret token parsed: %v", err)
	}
}
