// Package provider is the in-process payment-rail simulator used in place
// of a real banking/disbursement gateway. It implements
// provider.PaymentProvider deterministically so engine tests never depend
// on wall-clock flakiness or network access.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loanledger/internal/domain/provider"
	"loanledger/pkg/id"
)

// Simulator fails a call whenever the destination bank code/account carries
// the FailureMarker suffix, or the request's context is already past its
// deadline — otherwise every call succeeds after a small simulated latency.
type Simulator struct {
	latency time.Duration
}

// FailureMarker is the reserved bank-code suffix that forces a deterministic
// provider failure, used by tests that exercise the compensating paths.
const FailureMarker = "-FAIL"

func NewSimulator(latency time.Duration) *Simulator {
	if latency <= 0 {
		latency = 50 * time.Millisecond
	}
	return &Simulator{latency: latency}
}

func (s *Simulator) Transfer(ctx context.Context, reference string, amount float64, bankAccount, bankCode, narration string) (provider.Result, error) {
	return s.simulate(ctx, reference, bankCode, fmt.Sprintf("transfer to %s/%s: %s", bankCode, bankAccount, narration))
}

func (s *Simulator) Debit(ctx context.Context, reference string, amount float64, accountID, narration string) (provider.Result, error) {
	return s.simulate(ctx, reference, accountID, fmt.Sprintf("debit %s: %s", accountID, narration))
}

func (s *Simulator) Reverse(ctx context.Context, reference, sourceReference string, amount float64, narration string) (provider.Result, error) {
	return s.simulate(ctx, reference, sourceReference, fmt.Sprintf("reverse %s: %s", sourceReference, narration))
}

func (s *Simulator) simulate(ctx context.Context, reference, marker, narration string) (provider.Result, error) {
	select {
	case <-ctx.Done():
		return provider.Result{}, ctx.Err()
	case <-time.After(s.latency):
	}

	if strings.HasSuffix(marker, FailureMarker) {
		return provider.Result{
			Success:        false,
			FailureMessage: fmt.Sprintf("rail declined %s: %s", reference, narration),
			Latency:        s.latency,
		}, nil
	}

	return provider.Result{
		Success:           true,
		ProviderReference: id.NewReference("PRV"),
		Latency:           s.latency,
	}, nil
}
