package http

import (
	"net/http"
	"strconv"
	"time"

	"loanledger/internal/adapter/middleware"
	"loanledger/internal/domain/account"
	"loanledger/internal/domain/apperr"
	installmentDomain "loanledger/internal/domain/installment"
	loanDomain "loanledger/internal/domain/loan"
	paymentDomain "loanledger/internal/domain/payment"
	"loanledger/internal/engine/disbursement"
	"loanledger/internal/engine/loanstate"

	"github.com/labstack/echo/v4"
)

// LoanHandler serves every /loans and /admin/loans route, delegating
// state transitions to the loanstate and disbursement engines and reads
// straight to the loan/installment/payment repositories.
type LoanHandler struct {
	state        *loanstate.Engine
	disbursement *disbursement.Engine
	loans        loanDomain.Repository
	installments installmentDomain.Repository
	payments     paymentDomain.Repository
	validate     *CustomValidator
}

func NewLoanHandler(state *loanstate.Engine, disb *disbursement.Engine, loans loanDomain.Repository,
	installments installmentDomain.Repository, payments paymentDomain.Repository, v *CustomValidator) *LoanHandler {
	return &LoanHandler{state: state, disbursement: disb, loans: loans, installments: installments, payments: payments, validate: v}
}

type createLoanReq struct {
	Purpose            string  `json:"purpose" validate:"required"`
	AnnualInterestRate float64 `json:"annual_interest_rate" validate:"gte=0"`
	RequestedAmount    float64 `json:"requested_amount" validate:"gt=0"`
	TenorMonths        int     `json:"tenor_months" validate:"gte=1,lte=60"`
}

// Create submits a new loan application (borrower only).
func (h *LoanHandler) Create(c echo.Context) error {
	claims := middleware.Claims(c)
	var req createLoanReq
	if err := c.Bind(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	if err := h.validate.Validate(req); err != nil {
		return fail(c, asValidationError(err))
	}
	l, err := h.state.Create(c.Request().Context(), loanstate.CreateInput{
		BorrowerID:         claims.AccountID,
		Purpose:            req.Purpose,
		AnnualInterestRate: req.AnnualInterestRate,
		RequestedAmount:    req.RequestedAmount,
		TenorMonths:        req.TenorMonths,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, "loan application submitted", l)
}

// List returns every loan owned by the authenticated borrower.
func (h *LoanHandler) List(c echo.Context) error {
	claims := middleware.Claims(c)
	loans, err := h.loans.ListByBorrowerID(c.Request().Context(), claims.AccountID)
	if err != nil {
		return fail(c, apperr.Wrap(apperr.KindInternal, "list loans", err))
	}
	return ok(c, http.StatusOK, "loans retrieved", loans)
}

func (h *LoanHandler) loadOwned(c echo.Context) (*loanDomain.Loan, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, "invalid loan id")
	}
	l, err := h.loans.GetByID(c.Request().Context(), id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "loan not found", loanDomain.ErrNotFound)
	}
	claims := middleware.Claims(c)
	if claims.Role != account.RoleOperator && l.BorrowerID != claims.AccountID {
		return nil, apperr.New(apperr.KindAuthorization, "loan not owned by account")
	}
	return l, nil
}

// Get returns a single loan's current state.
func (h *LoanHandler) Get(c echo.Context) error {
	l, err := h.loadOwned(c)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "loan retrieved", l)
}

// History returns a loan's append-only status transition log.
func (h *LoanHandler) History(c echo.Context) error {
	l, err := h.loadOwned(c)
	if err != nil {
		return fail(c, err)
	}
	entries, err := h.loans.ListHistory(c.Request().Context(), l.ID)
	if err != nil {
		return fail(c, apperr.Wrap(apperr.KindInternal, "list history", err))
	}
	return ok(c, http.StatusOK, "history retrieved", entries)
}

// Schedule returns a loan's installment schedule.
func (h *LoanHandler) Schedule(c echo.Context) error {
	l, err := h.loadOwned(c)
	if err != nil {
		return fail(c, err)
	}
	installments, err := h.installments.ListByLoanID(c.Request().Context(), l.ID)
	if err != nil {
		return fail(c, apperr.Wrap(apperr.KindInternal, "list schedule", err))
	}
	now := time.Now().UTC()
	for _, inst := range installments {
		inst.Status = inst.DeriveStatus(now)
	}
	return ok(c, http.StatusOK, "schedule retrieved", installments)
}

// Payments returns every payment recorded against a loan.
func (h *LoanHandler) Payments(c echo.Context) error {
	l, err := h.loadOwned(c)
	if err != nil {
		return fail(c, err)
	}
	payments, err := h.payments.ListByLoanID(c.Request().Context(), l.ID)
	if err != nil {
		return fail(c, apperr.Wrap(apperr.KindInternal, "list payments", err))
	}
	return ok(c, http.StatusOK, "payments retrieved", payments)
}

// Disbursement returns a loan's disbursement sub-record, if any.
func (h *LoanHandler) Disbursement(c echo.Context) error {
	l, err := h.loadOwned(c)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "disbursement retrieved", l.DisbursementView())
}

// --- operator transitions ---

func loanIDParam(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.KindValidation, "invalid loan id")
	}
	return id, nil
}

// Review transitions pending -> under_review (operator only).
func (h *LoanHandler) Review(c echo.Context) error {
	id, err := loanIDParam(c)
	if err != nil {
		return fail(c, err)
	}
	claims := middleware.Claims(c)
	l, err := h.state.Review(c.Request().Context(), id, claims.AccountID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "loan moved to review", l)
}

type approveReq struct {
	Amount     float64 `json:"amount"`
	Conditions string  `json:"conditions"`
}

// Approve transitions under_review -> approved, optionally at a reduced
// amount (operator only).
func (h *LoanHandler) Approve(c echo.Context) error {
	id, err := loanIDParam(c)
	if err != nil {
		return fail(c, err)
	}
	var req approveReq
	if err := c.Bind(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	claims := middleware.Claims(c)
	l, err := h.state.Approve(c.Request().Context(), loanstate.ApproveInput{
		LoanID: id, OperatorID: claims.AccountID, Amount: req.Amount, Conditions: req.Conditions,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "loan approved", l)
}

type rejectReq struct {
	Reason string `json:"reason" validate:"required"`
}

// Reject transitions under_review -> rejected (operator only).
func (h *LoanHandler) Reject(c echo.Context) error {
	id, err := loanIDParam(c)
	if err != nil {
		return fail(c, err)
	}
	var req rejectReq
	if err := c.Bind(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	if err := h.validate.Validate(req); err != nil {
		return fail(c, asValidationError(err))
	}
	claims := middleware.Claims(c)
	l, err := h.state.Reject(c.Request().Context(), id, claims.AccountID, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "loan rejected", l)
}

type defaultReq struct {
	Reason string `json:"reason" validate:"required"`
}

// Default transitions active -> defaulted (operator only; there is no
// background overdue sweep, defaulting is always operator-invoked).
func (h *LoanHandler) Default(c echo.Context) error {
	id, err := loanIDParam(c)
	if err != nil {
		return fail(c, err)
	}
	var req defaultReq
	if err := c.Bind(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	if err := h.validate.Validate(req); err != nil {
		return fail(c, asValidationError(err))
	}
	claims := middleware.Claims(c)
	l, err := h.state.MarkDefaulted(c.Request().Context(), id, claims.AccountID, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "loan marked defaulted", l)
}

type disburseReq struct {
	BankAccount string `json:"bank_account" validate:"required"`
	BankCode    string `json:"bank_code" validate:"required"`
}

// Disburse runs the two-phase disbursement protocol (operator only).
func (h *LoanHandler) Disburse(c echo.Context) error {
	id, err := loanIDParam(c)
	if err != nil {
		return fail(c, err)
	}
	var req disburseReq
	if err := c.Bind(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	if err := h.validate.Validate(req); err != nil {
		return fail(c, asValidationError(err))
	}
	claims := middleware.Claims(c)
	l, err := h.disbursement.Disburse(c.Request().Context(), disbursement.Input{
		LoanID: id, OperatorID: claims.AccountID, BankAccount: req.BankAccount, BankCode: req.BankCode,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "loan disbursed", l)
}
