package governance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/skysurety/service_layer/internal/app/domain/airline"
	"github.com/skysurety/service_layer/internal/app/domain/ledger"
	"github.com/skysurety/service_layer/internal/app/services/operations"
	"github.com/skysurety/service_layer/internal/app/storage/memory"
)

func TestService_FastPathRegistration(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ops := operations.New("operator", nil)
	svc := New(ops, store, 4, nil)

	if _, err := svc.Bootstrap(ctx, "airline-1", "First", 10); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	for _, id := range []string{"airline-2", "airline-3", "airline-4"} {
		res, err := svc.ProposeAirline(ctx, "airline-1", id, id)
		if err != nil {
			t.Fatalf("propose %s: %v", id, err)
		}
		if !res.Registered {
			t.Fatalf("expected %s registered via fast path", id)
		}
	}

	count, err := svc.RegisteredCount(ctx)
	if err != nil {
		t.Fatalf("registered count: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 admitted airlines, got %d", count)
	}
}

func TestService_ConsensusVoting(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ops := operations.New("operator", nil)
	svc := New(ops, store, 4, nil)

	for _, id := range []string{"airline-1", "airline-2", "airline-3"} {
		if _, err := store.CreateAirline(ctx, airline.Airline{ID: id, State: airline.StateFunded, BondBalance: 10}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	if _, err := store.CreateAirline(ctx, airline.Airline{ID: "airline-4", State: airline.StateRegistered}); err != nil {
		t.Fatalf("seed airline-4: %v", err)
	}

	// Population is 4, so the fifth airline needs ceil(3/2) = 2 funded votes.
	res, err := svc.ProposeAirline(ctx, "airline-1", "airline-5", "Fifth")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if res.Registered {
		t.Fatalf("fifth airline should not be registered on a single vote")
	}
	if res.VotesLeft != 1 {
		t.Fatalf("expected 1 vote left, got %d", res.VotesLeft)
	}

	if _, err := svc.ProposeAirline(ctx, "airline-1", "airline-5", "Fifth"); !errors.Is(err, ledger.ErrDuplicateVote) {
		t.Fatalf("expected duplicate vote error, got %v", err)
	}

	// Registered but unfunded airlines hold no vote.
	if _, err := svc.ProposeAirline(ctx, "airline-4", "airline-5", "Fifth"); !errors.Is(err, ledger.ErrCallerNotEligible) {
		t.Fatalf("expected eligibility error for unfunded voter, got %v", err)
	}

	res, err = svc.ProposeAirline(ctx, "airline-2", "airline-5", "Fifth")
	if err != nil {
		t.Fatalf("second vote: %v", err)
	}
	if !res.Registered {
		t.Fatalf("expected fifth airline registered after majority")
	}
	if res.Airline.State != airline.StateRegistered {
		t.Fatalf("expected registered state, got %s", res.Airline.State)
	}

	// Voting for an admitted airline is a no-op, not an error.
	res, err = svc.ProposeAirline(ctx, "airline-3", "airline-5", "Fifth")
	if err != nil {
		t.Fatalf("post-admission vote: %v", err)
	}
	if !res.Registered {
		t.Fatalf("post-admission vote should report registered")
	}

	left, err := svc.VotesLeft(ctx, "airline-5")
	if err != nil {
		t.Fatalf("votes left: %v", err)
	}
	if left != 0 {
		t.Fatalf("expected 0 votes left, got %d", left)
	}
}

func TestService_ConcurrentVotesAdmitOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(operations.New("operator", nil), store, 4, nil)

	voters := []string{"airline-1", "airline-2", "airline-3", "airline-4"}
	for _, id := range voters {
		if _, err := store.CreateAirline(ctx, airline.Airline{ID: id, State: airline.StateFunded, BondBalance: 10}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	// Four funded voters race on the same candidate. The threshold is
	// ceil(4/2) = 2: the admission must happen exactly once and the late
	// votes must land as no-ops, not duplicates or lost updates.
	var wg sync.WaitGroup
	errCh := make(chan error, len(voters))
	for _, id := range voters {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := svc.ProposeAirline(ctx, id, "airline-5", "Fifth"); err != nil {
				errCh <- fmt.Errorf("vote by %s: %w", id, err)
			}
		}(id)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent proposal: %v", err)
	}

	candidate, err := svc.Get(ctx, "airline-5")
	if err != nil {
		t.Fatalf("get candidate: %v", err)
	}
	if candidate.State != airline.StateRegistered {
		t.Fatalf("expected registered candidate, got %s", candidate.State)
	}
	if candidate.VoteCount() != 2 {
		t.Fatalf("expected exactly 2 counted votes, got %d", candidate.VoteCount())
	}
}

func TestService_ProposalRequiresFundedCaller(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(operations.New("operator", nil), store, 4, nil)

	if _, err := svc.ProposeAirline(ctx, "nobody", "airline-2", "Second"); !errors.Is(err, ledger.ErrCallerNotEligible) {
		t.Fatalf("expected eligibility error for unknown caller, got %v", err)
	}

	if _, err := store.CreateAirline(ctx, airline.Airline{ID: "airline-1", State: airline.StateRegistered}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.ProposeAirline(ctx, "airline-1", "airline-2", "Second"); !errors.Is(err, ledger.ErrCallerNotEligible) {
		t.Fatalf("expected eligibility error for unfunded caller, got %v", err)
	}
}

func TestService_ProposalGatedByOperationalFlag(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ops := operations.New("operator", nil)
	svc := New(ops, store, 4, nil)

	if _, err := svc.Bootstrap(ctx, "airline-1", "First", 10); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := ops.SetOperational("operator", false); err != nil {
		t.Fatalf("set operational: %v", err)
	}

	if _, err := svc.ProposeAirline(ctx, "airline-1", "airline-2", "Second"); !errors.Is(err, ledger.ErrNotOperational) {
		t.Fatalf("expected not operational error, got %v", err)
	}
}

func TestService_BootstrapIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := New(operations.New("operator", nil), memory.New(), 4, nil)

	first, err := svc.Bootstrap(ctx, "airline-1", "First", 10)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	again, err := svc.Bootstrap(ctx, "airline-1", "First", 10)
	if err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if again.CreatedAt != first.CreatedAt {
		t.Fatalf("bootstrap should not recreate the seed airline")
	}
	if first.State != airline.StateFunded {
		t.Fatalf("bootstrap airline should be funded, got %s", first.State)
	}
}

func TestService_VotesLeftUnknownCandidate(t *testing.T) {
	svc := New(operations.New("operator", nil), memory.New(), 4, nil)
	if _, err := svc.VotesLeft(context.Background(), "ghost"); !errors.Is(err, ledger.ErrUnknownCandidate) {
		t.Fatalf("expected unknown candidate error, got %v", err)
	}
}
