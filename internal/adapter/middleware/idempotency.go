package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"loanledger/internal/domain/apperr"
	"loanledger/internal/engine/coordinator"

	"github.com/labstack/echo/v4"
)

// respRecorder captures the status and body a wrapped handler writes, so
// the Coordinator can persist it verbatim for replay.
type respRecorder struct {
	http.ResponseWriter
	buf  *bytes.Buffer
	code int
}

func (r *respRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *respRecorder) WriteHeader(statusCode int) {
	r.code = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// RequireIdempotencyKey rejects mutating critical routes that omit the
// Idempotency-Key header the Coordinator needs to key its replay cache.
func RequireIdempotencyKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Idempotency-Key") == "" {
				return writeAppErr(c, apperr.Validation("missing Idempotency-Key header",
					apperr.FieldError{Field: "Idempotency-Key", Message: "is required"}))
			}
			return next(c)
		}
	}
}

// Idempotent wraps the handler in the Coordinator's transport-level replay
// cache: a repeated request carrying the same key
// short-circuits straight to the previously recorded status and body
// without re-invoking the handler at all.
func Idempotent(co *coordinator.Coordinator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get("Idempotency-Key")
			if key == "" {
				return next(c)
			}

			var accountID string
			if claims := Claims(c); claims != nil {
				accountID = claims.AccountID
			}

			rec := &respRecorder{ResponseWriter: c.Response().Writer, buf: &bytes.Buffer{}, code: http.StatusOK}

			out, replayed, err := co.Run(c.Request().Context(), key, c.Path(), c.Request().Method, accountID,
				func(ctx context.Context) (*coordinator.Outcome, error) {
					c.Response().Writer = rec
					if herr := next(c); herr != nil {
						c.Error(herr)
					}
					var body any
					if rec.buf.Len() > 0 {
						_ = json.Unmarshal(rec.buf.Bytes(), &body)
					}
					return &coordinator.Outcome{StatusCode: rec.code, Body: body}, nil
				})
			if err != nil {
				return err
			}
			if !replayed {
				return nil
			}
			return c.JSON(out.StatusCode, out.Body)
		}
	}
}
