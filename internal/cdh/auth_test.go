package cdh

import (
	"errors"
	"testing"
	"time"

	"beepsat/internal/domain"
)

const testSecret = "ground-segment-secret"

func TestVerify_ValidToken(t *testing.T) {
	v := NewVerifier(testSecret)
	token, err := MintToken(testSecret, "operator-1", []string{ScopeCommand}, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "operator-1" {
		t.Fatalf("subject = %q", claims.Subject)
	}
}

func TestVerify_Rejections(t *testing.T) {
	v := NewVerifier(testSecret)

	wrongKey, _ := MintToken("not-the-secret", "eve", []string{ScopeCommand}, time.Minute)
	expired, _ := MintToken(testSecret, "operator-1", []string{ScopeCommand}, -time.Minute)
	noScope, _ := MintToken(testSecret, "operator-1", []string{"telemetry"}, time.Minute)

	cases := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage", "not.a.jwt"},
		{"wrong key", wrongKey},
		{"expired", expired},
		{"missing command scope", noScope},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(tc.token); !errors.Is(err, domain.ErrAuthentication) {
				t.Fatalf("err = %v, want ErrAuthentication", err)
			}
		})
	}
}

func TestVerify_NoProvisionedSecretRejectsEverything(t *testing.T) {
	v := NewVerifier("")
	token, _ := MintToken(testSecret, "operator-1", []string{ScopeCommand}, time.Minute)
	if _, err := v.Verify(token); !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
}
