// Package provider defines the narrow contract the engine uses to reach the
// out-of-process payment rail. Concrete transports live under
// internal/infrastructure/provider.
package provider

import (
	"context"
	"time"
)

// Result is the outcome of a transfer or debit attempt.
type Result struct {
	Success           bool
	ProviderReference string
	Latency           time.Duration
	FailureMessage    string
}

// PaymentProvider is the out-of-process transfer and debit primitive.
// Implementations MUST honor ctx's deadline and MUST treat the same reference as idempotent.
type PaymentProvider interface {
	// Transfer disburses amount to the given bank destination under
	// reference, used by the disbursement protocol.
	Transfer(ctx context.Context, reference string, amount float64, bankAccount, bankCode, narration string) (Result, error)

	// Debit pulls amount from the borrower's linked account under
	// reference, used by direct (provider-backed) repayment.
	Debit(ctx context.Context, reference string, amount float64, accountID, narration string) (Result, error)

	// Reverse refunds a prior transfer/debit identified by
	// sourceReference, used by the refund protocol.
	Reverse(ctx context.Context, reference, sourceReference string, amount float64, narration string) (Result, error)
}
