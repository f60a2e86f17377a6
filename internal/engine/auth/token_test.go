package auth

import (
	"context"
	"testing"
	"time"

	"loanledger/internal/domain/account"
	"loanledger/internal/domain/apperr"
)

func TestHMACVerifier_IssueAndVerify(t *testing.T) {
	v := NewHMACVerifier("secret", time.Minute)

	token, err := v.Issue("acc-1", account.RoleBorrower)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.AccountID != "acc-1" || claims.Role != account.RoleBorrower {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestHMACVerifier_RejectsTamperedSignature(t *testing.T) {
	v := NewHMACVerifier("secret", time.Minute)
	token, _ := v.Issue("acc-2", account.RoleOperator)

	tampered := token[:len(token)-1] + "x"
	if _, err := v.Verify(context.Background(), tampered); !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("err = %v, want KindAuthentication", err)
	}
}

func TestHMACVerifier_RejectsWrongSecret(t *testing.T) {
	issuer := NewHMACVerifier("secret-a", time.Minute)
	verifier := NewHMACVerifier("secret-b", time.Minute)
	token, _ := issuer.Issue("acc-3", account.RoleBorrower)

	if _, err := verifier.Verify(context.Background(), token); !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("err = %v, want KindAuthentication", err)
	}
}

func TestHMACVerifier_RejectsExpiredToken(t *testing.T) {
	// NewHMACVerifier replaces a non-positive ttl with the default, so the
	// negative lifetime is set on the verifier directly.
	v := NewHMACVerifier("secret", time.Minute)
	v.ttl = -time.Minute
	token, _ := v.Issue("acc-4", account.RoleBorrower)

	if _, err := v.Verify(context.Background(), token); !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("err = %v, want KindAuthentication", err)
	}
}

func TestHMACVerifier_RejectsMalformedToken(t *testing.T) {
	v := NewHMACVerifier("secret", time.Minute)
	if _, err := v.Verify(context.Background(), "not-a-token"); !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("err = %v, want KindAuthentication", err)
	}
}
