// Package credit implements the advisory credit module: a deterministic
// scoring function that is never consulted by loan creation.
package credit

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"loanledger/internal/domain/account"
	"loanledger/internal/domain/apperr"
)

const (
	minScore = 300
	maxScore = 850
)

// Scorer produces an advisory credit score for an account. Implementations
// must be deterministic: the same accountID always yields the same score.
type Scorer interface {
	Score(accountID string) int
}

// BoundedScorer derives a score in [300, 850] from a hash of the account
// id, so the same borrower always sees a stable score without a real
// bureau integration.
type BoundedScorer struct{}

func (BoundedScorer) Score(accountID string) int {
	sum := sha256.Sum256([]byte(accountID))
	n := binary.BigEndian.Uint32(sum[:4])
	return minScore + int(n%uint32(maxScore-minScore+1))
}

// Band is the coarse risk bucket a report surfaces alongside the raw score.
type Band string

const (
	BandPoor      Band = "poor"
	BandFair      Band = "fair"
	BandGood      Band = "good"
	BandExcellent Band = "excellent"
)

func bandFor(score int) Band {
	switch {
	case score < 500:
		return BandPoor
	case score < 650:
		return BandFair
	case score < 750:
		return BandGood
	default:
		return BandExcellent
	}
}

// Report is the advisory DTO served by GET /credit/report and
// POST /credit/check.
type Report struct {
	AccountID string `json:"account_id"`
	Score     int    `json:"score"`
	Band      Band   `json:"band"`
}

type Engine struct {
	accounts account.Repository
	scorer   Scorer
}

func New(accounts account.Repository, scorer Scorer) *Engine {
	if scorer == nil {
		scorer = BoundedScorer{}
	}
	return &Engine{accounts: accounts, scorer: scorer}
}

// Report computes the advisory report for accountID on every call and
// saves the score onto the account record when it differs from the stored
// one.
func (e *Engine) Report(ctx context.Context, accountID string) (*Report, error) {
	a, err := e.accounts.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	score := e.scorer.Score(accountID)
	if a.CreditScore == nil || *a.CreditScore != score {
		s := score
		a.CreditScore = &s
		if err := e.accounts.Save(ctx, a); err != nil {
			return nil, err
		}
	}
	return &Report{AccountID: accountID, Score: score, Band: bandFor(score)}, nil
}

// Check is identical to Report; it is exposed separately because
// /credit/check is a distinct route from /credit/report.
func (e *Engine) Check(ctx context.Context, accountID string) (*Report, error) {
	return e.Report(ctx, accountID)
}
