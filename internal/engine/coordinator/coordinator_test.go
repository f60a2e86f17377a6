package coordinator

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"loanledger/internal/testutil/memstore"
)

func newCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	return New(memstore.NewIdempotencyRepo(memstore.New()), time.Hour)
}

func TestRun_MissInvokesAndStores(t *testing.T) {
	co := newCoordinator(t)
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) (*Outcome, error) {
		calls++
		return &Outcome{StatusCode: http.StatusCreated, Body: map[string]any{"id": float64(7)}}, nil
	}

	out, replayed, err := co.Run(ctx, "key-1", "/loans", "POST", "acct-1", fn)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if replayed || calls != 1 || out.StatusCode != http.StatusCreated {
		t.Fatalf("first run: replayed=%v calls=%d out=%+v", replayed, calls, out)
	}

	out2, replayed2, err := co.Run(ctx, "key-1", "/loans", "POST", "acct-1", fn)
	if err != nil {
		t.Fatalf("replay run: %v", err)
	}
	if !replayed2 {
		t.Fatalf("expected a replay on the second run")
	}
	if calls != 1 {
		t.Fatalf("protocol re-invoked on replay, calls=%d", calls)
	}
	if out2.StatusCode != http.StatusCreated {
		t.Fatalf("replayed status = %d, want %d", out2.StatusCode, http.StatusCreated)
	}
	body, ok := out2.Body.(map[string]any)
	if !ok || body["id"] != float64(7) {
		t.Fatalf("replayed body = %#v", out2.Body)
	}
}

func TestRun_EmptyKeyBypassesCache(t *testing.T) {
	co := newCoordinator(t)
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) (*Outcome, error) {
		calls++
		return &Outcome{StatusCode: http.StatusOK}, nil
	}
	for i := 0; i < 3; i++ {
		if _, replayed, err := co.Run(ctx, "", "/loans", "POST", "", fn); err != nil || replayed {
			t.Fatalf("run %d: replayed=%v err=%v", i, replayed, err)
		}
	}
	if calls != 3 {
		t.Fatalf("expected every keyless run to invoke fn, calls=%d", calls)
	}
}

func TestRun_ErrorNotCached(t *testing.T) {
	co := newCoordinator(t)
	ctx := context.Background()

	boom := errors.New("downstream failed")
	calls := 0
	if _, _, err := co.Run(ctx, "key-err", "/loans", "POST", "", func(ctx context.Context) (*Outcome, error) {
		calls++
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected protocol error through, got %v", err)
	}

	// A failed attempt leaves no record; the retry executes the protocol.
	out, replayed, err := co.Run(ctx, "key-err", "/loans", "POST", "", func(ctx context.Context) (*Outcome, error) {
		calls++
		return &Outcome{StatusCode: http.StatusOK}, nil
	})
	if err != nil || replayed {
		t.Fatalf("retry after failure: replayed=%v err=%v", replayed, err)
	}
	if calls != 2 || out.StatusCode != http.StatusOK {
		t.Fatalf("retry did not run protocol: calls=%d out=%+v", calls, out)
	}
}

func TestRun_DistinctKeysAreIndependent(t *testing.T) {
	co := newCoordinator(t)
	ctx := context.Background()

	mk := func(status int) func(context.Context) (*Outcome, error) {
		return func(ctx context.Context) (*Outcome, error) {
			return &Outcome{StatusCode: status}, nil
		}
	}
	a, _, _ := co.Run(ctx, "key-a", "/x", "POST", "", mk(http.StatusOK))
	b, _, _ := co.Run(ctx, "key-b", "/x", "POST", "", mk(http.StatusCreated))
	if a.StatusCode == b.StatusCode {
		t.Fatalf("distinct keys collided: %d vs %d", a.StatusCode, b.StatusCode)
	}
}
