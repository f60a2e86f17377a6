package credit

import (
	"context"
	"testing"

	"loanledger/internal/domain/account"
	"loanledger/internal/domain/apperr"
	"loanledger/internal/testutil/memstore"
)

func TestBoundedScorer_DeterministicAndInRange(t *testing.T) {
	s := BoundedScorer{}
	ids := []string{"a", "b", "borrower-1", "0123456789abcdef0123456789abcdef", ""}
	for _, id := range ids {
		first := s.Score(id)
		if first < minScore || first > maxScore {
			t.Errorf("Score(%q) = %d, outside [%d, %d]", id, first, minScore, maxScore)
		}
		for i := 0; i < 5; i++ {
			if again := s.Score(id); again != first {
				t.Errorf("Score(%q) not deterministic: %d then %d", id, first, again)
			}
		}
	}
}

func TestBandFor(t *testing.T) {
	cases := []struct {
		score int
		want  Band
	}{
		{300, BandPoor},
		{499, BandPoor},
		{500, BandFair},
		{649, BandFair},
		{650, BandGood},
		{749, BandGood},
		{750, BandExcellent},
		{850, BandExcellent},
	}
	for _, tc := range cases {
		if got := bandFor(tc.score); got != tc.want {
			t.Errorf("bandFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestReport_PersistsScoreOnAccount(t *testing.T) {
	store := memstore.New()
	accounts := memstore.NewAccountRepo(store)
	ctx := context.Background()

	if err := accounts.Create(ctx, &account.Account{AccountID: "acct-1", Email: "b@example.com", Role: account.RoleBorrower, Active: true}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	e := New(accounts, nil)
	report, err := e.Report(ctx, "acct-1")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Band != bandFor(report.Score) {
		t.Fatalf("band %s does not match score %d", report.Band, report.Score)
	}

	a, err := accounts.GetByAccountID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if a.CreditScore == nil || *a.CreditScore != report.Score {
		t.Fatalf("score not persisted on account: %+v", a.CreditScore)
	}

	// A second report returns the same figure.
	again, err := e.Check(ctx, "acct-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if again.Score != report.Score {
		t.Fatalf("score drifted across calls: %d then %d", report.Score, again.Score)
	}
}

func TestReport_UnknownAccount(t *testing.T) {
	e := New(memstore.NewAccountRepo(memstore.New()), nil)
	if _, err := e.Report(context.Background(), "nobody"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
