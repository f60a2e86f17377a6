package http

import (
	"net/http"
	"strconv"
	"time"

	"loanledger/internal/adapter/middleware"
	"loanledger/internal/domain/apperr"
	paymentDomain "loanledger/internal/domain/payment"
	"loanledger/internal/engine/refund"
	"loanledger/internal/engine/repayment"

	"github.com/labstack/echo/v4"
)

// PaymentHandler serves the repayment, manual-proof, and refund routes
// , delegating to the repayment and refund engines.
type PaymentHandler struct {
	repayment *repayment.Engine
	refund    *refund.Engine
	payments  paymentDomain.Repository
	validate  *CustomValidator
}

func NewPaymentHandler(rep *repayment.Engine, rf *refund.Engine, payments paymentDomain.Repository, v *CustomValidator) *PaymentHandler {
	return &PaymentHandler{repayment: rep, refund: rf, payments: payments, validate: v}
}

type repayReq struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

func loanIDFromParam(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.KindValidation, "invalid loan id")
	}
	return id, nil
}

// Repay processes a direct, provider-backed repayment.
func (h *PaymentHandler) Repay(c echo.Context) error {
	loanID, err := loanIDFromParam(c)
	if err != nil {
		return fail(c, err)
	}
	var req repayReq
	if err := c.Bind(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	if err := h.validate.Validate(req); err != nil {
		return fail(c, asValidationError(err))
	}
	claims := middleware.Claims(c)
	key := c.Request().Header.Get("Idempotency-Key")
	res, err := h.repayment.ProcessRepayment(c.Request().Context(), repayment.RepayInput{
		LoanID: loanID, AccountID: claims.AccountID, Amount: req.Amount, IdempotencyKey: key,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "repayment processed", res)
}

type manualSubmitReq struct {
	LoanID            uint64  `json:"loan_id" validate:"required"`
	Amount            float64 `json:"amount" validate:"gt=0"`
	SenderBank        string  `json:"sender_bank" validate:"required"`
	SenderName        string  `json:"sender_name" validate:"required"`
	TransferDate      string  `json:"transfer_date" validate:"required"`
	ExternalReference string  `json:"external_reference" validate:"required"`
	EvidenceURL       string  `json:"evidence_url"`
}

func (h *PaymentHandler) submitManual(c echo.Context, evidenceRequired bool) error {
	var req manualSubmitReq
	if err := c.Bind(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	if err := h.validate.Validate(req); err != nil {
		return fail(c, asValidationError(err))
	}
	if evidenceRequired && req.EvidenceURL == "" {
		return fail(c, apperr.Validation("evidence is required",
			apperr.FieldError{Field: "evidence_url", Message: "is required"}))
	}
	transferDate, err := time.Parse(time.RFC3339, req.TransferDate)
	if err != nil {
		return fail(c, apperr.Validation("invalid transfer_date",
			apperr.FieldError{Field: "transfer_date", Message: "must be RFC3339"}))
	}
	claims := middleware.Claims(c)
	key := c.Request().Header.Get("Idempotency-Key")
	p, err := h.repayment.SubmitManualRepayment(c.Request().Context(), repayment.ManualSubmitInput{
		LoanID: req.LoanID, AccountID: claims.AccountID, Amount: req.Amount, IdempotencyKey: key,
		SenderBank: req.SenderBank, SenderName: req.SenderName, TransferDate: transferDate,
		ExternalReference: req.ExternalReference, EvidenceURL: req.EvidenceURL,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, "proof submitted", p)
}

// ManualSubmit submits proof of an out-of-band transfer without evidence.
func (h *PaymentHandler) ManualSubmit(c echo.Context) error { return h.submitManual(c, false) }

// ManualWithReceipt submits proof of an out-of-band transfer with a
// required evidence URL (image-upload storage itself is an external
// collaborator; this route only records the resulting URL).
func (h *PaymentHandler) ManualWithReceipt(c echo.Context) error { return h.submitManual(c, true) }

// List returns every payment the authenticated borrower has made.
func (h *PaymentHandler) List(c echo.Context) error {
	claims := middleware.Claims(c)
	payments, err := h.payments.ListByAccountID(c.Request().Context(), claims.AccountID)
	if err != nil {
		return fail(c, apperr.Wrap(apperr.KindInternal, "list payments", err))
	}
	return ok(c, http.StatusOK, "payments retrieved", payments)
}

func paymentIDParam(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.KindValidation, "invalid payment id")
	}
	return id, nil
}

type verifyReq struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// Verify resolves a pending manual-proof payment (operator only).
func (h *PaymentHandler) Verify(c echo.Context) error {
	id, err := paymentIDParam(c)
	if err != nil {
		return fail(c, err)
	}
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	claims := middleware.Claims(c)
	res, err := h.repayment.VerifyRepayment(c.Request().Context(), repayment.VerifyInput{
		PaymentID: id, OperatorID: claims.AccountID, Approve: req.Approve, Reason: req.Reason,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "payment verified", res)
}

type refundReq struct {
	Reason string  `json:"reason"`
	Amount float64 `json:"amount"`
}

// Refund reverses an entire successful repayment (operator only).
func (h *PaymentHandler) Refund(c echo.Context) error {
	id, err := paymentIDParam(c)
	if err != nil {
		return fail(c, err)
	}
	var req refundReq
	if err := c.Bind(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	claims := middleware.Claims(c)
	key := c.Request().Header.Get("Idempotency-Key")
	p, err := h.refund.RefundFull(c.Request().Context(), refund.FullRefundInput{
		PaymentID: id, OperatorID: claims.AccountID, Reason: req.Reason, IdempotencyKey: key,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "refund issued", p)
}

// RefundOverpayment refunds only the recorded overpayment surplus of a
// source payment (operator only).
func (h *PaymentHandler) RefundOverpayment(c echo.Context) error {
	id, err := paymentIDParam(c)
	if err != nil {
		return fail(c, err)
	}
	var req refundReq
	if err := c.Bind(&req); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	claims := middleware.Claims(c)
	key := c.Request().Header.Get("Idempotency-Key")
	p, err := h.refund.RefundOverpayment(c.Request().Context(), refund.OverpaymentRefundInput{
		PaymentID: id, OperatorID: claims.AccountID, Amount: req.Amount, IdempotencyKey: key,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "overpayment refunded", p)
}
