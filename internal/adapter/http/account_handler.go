package http

import (
	"crypto/subtle"
	"net/http"

	"loanledger/internal/domain/account"
	"loanledger/internal/domain/apperr"
	"loanledger/internal/engine/auth"
	"loanledger/internal/engine/encryption"
	"loanledger/pkg/id"

	"github.com/labstack/echo/v4"
)

// AccountHandler serves the out-of-band operator-provisioning route.
// Borrower registration and credential verification live in an external
// collaborator; operators are provisioned here against a shared secret so a
// fresh deployment can be bootstrapped without that collaborator.
type AccountHandler struct {
	accounts       account.Repository
	encryptor      encryption.Encryptor
	verifier       auth.TokenVerifier
	operatorSecret string
	validate       *CustomValidator
}

func NewAccountHandler(accounts account.Repository, enc encryption.Encryptor, verifier auth.TokenVerifier,
	operatorSecret string, v *CustomValidator) *AccountHandler {
	return &AccountHandler{accounts: accounts, encryptor: enc, verifier: verifier, operatorSecret: operatorSecret, validate: v}
}

type createOperatorReq struct {
	Email      string `json:"email" validate:"required,email"`
	NationalID string `json:"national_id"`
}

type createOperatorResp struct {
	Account *account.Account `json:"account"`
	Token   string           `json:"token"`
}

// CreateOperator provisions an operator account, gated on the
// X-Operator-Secret header matching the configured shared secret. The
// national identifier, when supplied, is stored encrypted; the response
// carries a bearer token so the new operator can act immediately.
func (h *AccountHandler) CreateOperator(c echo.Context) error {
	secret := c.Request().Header.Get("X-Operator-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.operatorSecret)) != 1 {
		return fail(c, apperr.New(apperr.KindAuthentication, "invalid operator secret"))
	}

	var req createOperatorReq
	if err := c.Bind(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	if err := h.validate.Validate(req); err != nil {
		return fail(c, asValidationError(err))
	}

	if existing, err := h.accounts.GetByEmail(c.Request().Context(), req.Email); err == nil && existing != nil {
		return fail(c, apperr.New(apperr.KindConflict, "an account with this email already exists"))
	}

	a := &account.Account{
		AccountID: id.NewID32(),
		Email:     req.Email,
		Role:      account.RoleOperator,
		Active:    true,
	}
	if req.NationalID != "" {
		encrypted, err := h.encryptor.Encrypt(req.NationalID)
		if err != nil {
			return fail(c, apperr.Wrap(apperr.KindInternal, "encrypt national identifier", err))
		}
		a.NationalIDEncrypted = encrypted
	}
	if err := h.accounts.Create(c.Request().Context(), a); err != nil {
		return fail(c, apperr.Wrap(apperr.KindInternal, "create operator account", err))
	}

	token, err := h.verifier.Issue(a.AccountID, account.RoleOperator)
	if err != nil {
		return fail(c, apperr.Wrap(apperr.KindInternal, "issue token", err))
	}
	return ok(c, http.StatusCreated, "operator account created", createOperatorResp{Account: a, Token: token})
}
