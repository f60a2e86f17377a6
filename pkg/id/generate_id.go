package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// NewID32 returns exactly 32 hex characters (no separators/prefixes).
func NewID32() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewApplicationNumber returns a human-readable, unique loan application
// number of the form LN-YYYYMMDD-XXXXXXXX.
func NewApplicationNumber() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("LN-%s-%s", time.Now().UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(b)))
}

// NewReference returns an opaque, unique transaction reference carrying the
// given prefix (e.g. "DBS" for disbursement, "PMT" for payment, "RFD" for
// refund) so log lines and provider callbacks stay human-traceable.
func NewReference(prefix string) string {
	b := make([]byte, 10)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s-%s", strings.ToUpper(prefix), strings.ToUpper(hex.EncodeToString(b)))
}
