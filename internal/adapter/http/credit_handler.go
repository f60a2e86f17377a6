package http

import (
	"net/http"

	"loanledger/internal/adapter/middleware"
	"loanledger/internal/engine/credit"

	"github.com/labstack/echo/v4"
)

// CreditHandler serves the advisory /credit routes, delegating to the
// credit engine. The score never gates any loan transition.
type CreditHandler struct {
	credit *credit.Engine
}

func NewCreditHandler(c *credit.Engine) *CreditHandler {
	return &CreditHandler{credit: c}
}

// Report returns the caller's advisory score, computed afresh on each call.
func (h *CreditHandler) Report(c echo.Context) error {
	claims := middleware.Claims(c)
	report, err := h.credit.Report(c.Request().Context(), claims.AccountID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "credit report retrieved", report)
}

// Check forces a recomputation of the caller's advisory score.
func (h *CreditHandler) Check(c echo.Context) error {
	claims := middleware.Claims(c)
	report, err := h.credit.Check(c.Request().Context(), claims.AccountID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, "credit check completed", report)
}
