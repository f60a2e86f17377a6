package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"loanledger/internal/engine/auth"
	"loanledger/internal/engine/encryption"
	"loanledger/internal/testutil/memstore"
)

const testOperatorSecret = "op-secret"

func newAccountHandler(t *testing.T) (*AccountHandler, *echo.Echo) {
	t.Helper()
	accounts := memstore.NewAccountRepo(memstore.New())
	verifier := auth.NewHMACVerifier("signing-secret", time.Hour)
	h := NewAccountHandler(accounts, encryption.NoOp{}, verifier, testOperatorSecret, NewValidator())
	e := echo.New()
	e.POST("/admin/accounts/operator", h.CreateOperator)
	return h, e
}

func provisionReq(body, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/admin/accounts/operator", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if secret != "" {
		req.Header.Set("X-Operator-Secret", secret)
	}
	return req
}

func TestCreateOperator_RequiresSharedSecret(t *testing.T) {
	_, e := newAccountHandler(t)

	for _, secret := range []string{"", "wrong"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, provisionReq(`{"email":"op@example.com"}`, secret))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("secret %q: status = %d, want 401", secret, rec.Code)
		}
	}
}

func TestCreateOperator_CreatesAccountAndIssuesToken(t *testing.T) {
	h, e := newAccountHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, provisionReq(`{"email":"op@example.com","national_id":"A123456"}`, testOperatorSecret))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			Account struct {
				AccountID string `json:"account_id"`
				Role      string `json:"role"`
				Active    bool   `json:"active"`
			} `json:"account"`
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Success || envelope.Data.Token == "" || envelope.Data.Account.Role != "operator" || !envelope.Data.Account.Active {
		t.Fatalf("unexpected payload: %+v", envelope)
	}

	// The issued token verifies against the same signer.
	claims, err := h.verifier.Verify(context.Background(), envelope.Data.Token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.AccountID != envelope.Data.Account.AccountID {
		t.Fatalf("token account %s != created account %s", claims.AccountID, envelope.Data.Account.AccountID)
	}

	// The national identifier is stored, not echoed back.
	a, err := h.accounts.GetByAccountID(context.Background(), envelope.Data.Account.AccountID)
	if err != nil || a == nil {
		t.Fatalf("reload account: %v", err)
	}
	if len(a.NationalIDEncrypted) == 0 {
		t.Fatalf("national identifier not stored")
	}
	if strings.Contains(rec.Body.String(), "A123456") {
		t.Fatalf("national identifier leaked into the response body")
	}
}

func TestCreateOperator_DuplicateEmailConflicts(t *testing.T) {
	_, e := newAccountHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, provisionReq(`{"email":"op@example.com"}`, testOperatorSecret))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, provisionReq(`{"email":"op@example.com"}`, testOperatorSecret))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create: status = %d, want 409", rec.Code)
	}
}

func TestCreateOperator_ValidatesEmail(t *testing.T) {
	_, e := newAccountHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, provisionReq(`{"email":"not-an-email"}`, testOperatorSecret))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
