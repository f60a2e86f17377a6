// Package http adapts the engine's protocols onto the wire:
// JSON over HTTP with a single response envelope and the error
// taxonomy mapped to status codes through apperr.ToHTTPStatus.
package http

import (
	"net/http"

	"loanledger/internal/domain/apperr"

	"github.com/labstack/echo/v4"
)

// Meta carries pagination details for list endpoints.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Envelope is the single response shape every route returns.
type Envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    any                 `json:"data,omitempty"`
	Meta    *Meta               `json:"meta,omitempty"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

func ok(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

func okPaged(c echo.Context, message string, data any, meta Meta) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Message: message, Data: data, Meta: &meta})
}

// fail renders err through the apperr taxonomy. Handlers should always
// return this value (not err itself) so HTTPErrorHandler never has to
// re-derive the status from an opaque error.
func fail(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	var fields []apperr.FieldError
	var ae *apperr.Error
	if as, ok := err.(*apperr.Error); ok {
		ae = as
		fields = ae.Fields
	}
	msg := err.Error()
	if ae != nil {
		msg = ae.Message
	}
	return c.JSON(apperr.ToHTTPStatus(kind), Envelope{Success: false, Message: msg, Errors: fields})
}

// HTTPErrorHandler replaces Echo's default handler so framework-level
// errors (404 route miss, bad JSON body, etc.) still render the envelope.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if as, ok := err.(*echo.HTTPError); ok {
		he = as
		msg, _ := he.Message.(string)
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		_ = c.JSON(he.Code, Envelope{Success: false, Message: msg})
		return
	}
	_ = fail(c, err)
}
