package http

import (
	"strings"

	"loanledger/internal/domain/apperr"
)

// ---- helpers ----

func containsFieldMsg(list []apperr.FieldError, field, substr string) bool {
	for _, e := range list {
		if e.Field == field && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
