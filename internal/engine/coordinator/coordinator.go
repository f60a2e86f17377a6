// Package coordinator implements the transport-level idempotency layer: fetch
// or create an IdempotencyRecord keyed by the caller-supplied
// Idempotency-Key, replay a stored response verbatim on hit, otherwise run
// the protocol and persist (status, body) on completion. This nests around
// whatever domain-level idempotency key (e.g. Payment.idempotencyKey) the
// invoked protocol itself enforces.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"loanledger/internal/domain/apperr"
	"loanledger/internal/domain/idempotency"

	"gorm.io/gorm"
)

// Outcome is what a protocol invocation under the coordinator produced.
type Outcome struct {
	StatusCode int
	Body       any
}

// Coordinator wraps a single idempotency.Repository; each HTTP handler that
// needs replay-on-retry semantics calls Run once per request.
type Coordinator struct {
	records idempotency.Repository
	ttl     time.Duration
}

func New(records idempotency.Repository, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	return &Coordinator{records: records, ttl: ttl}
}

// Run executes fn exactly once per key: a replay request returns the stored
// status and the decoded stored body instead of re-invoking fn. The endpoint
// and method are stored on the record but not compared on lookup.
func (c *Coordinator) Run(ctx context.Context, key, endpoint, method, accountID string, fn func(ctx context.Context) (*Outcome, error)) (*Outcome, bool, error) {
	if key == "" {
		out, err := fn(ctx)
		return out, false, err
	}

	if rec, err := c.records.Get(ctx, key); err == nil && rec != nil {
		var body any
		if len(rec.ResponseBody) > 0 {
			if jerr := json.Unmarshal(rec.ResponseBody, &body); jerr != nil {
				return nil, false, apperr.Wrap(apperr.KindInternal, "decode replayed response", jerr)
			}
		}
		return &Outcome{StatusCode: rec.StatusCode, Body: body}, true, nil
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperr.Wrap(apperr.KindInternal, "idempotency lookup", err)
	}

	out, err := fn(ctx)
	if err != nil {
		return nil, false, err
	}

	payload, merr := json.Marshal(out.Body)
	if merr != nil {
		return nil, false, apperr.Wrap(apperr.KindInternal, "encode response for idempotency cache", merr)
	}
	var acctPtr *string
	if accountID != "" {
		acctPtr = &accountID
	}
	rec := &idempotency.Record{
		Key: key, Endpoint: endpoint, Method: method,
		StatusCode: out.StatusCode, ResponseBody: payload,
		AccountID: acctPtr, ExpiresAt: time.Now().UTC().Add(c.ttl),
	}
	// A concurrent duplicate insert is expected under a true retry race;
	// the inserting request wins and this one's response still reflects
	// the work it just did, so the create error is not propagated.
	_ = c.records.Create(ctx, rec)

	return out, false, nil
}
