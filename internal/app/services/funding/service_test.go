package funding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/skysurety/service_layer/internal/app/domain/airline"
	"github.com/skysurety/service_layer/internal/app/domain/flight"
	"github.com/skysurety/service_layer/internal/app/domain/insurance"
	"github.com/skysurety/service_layer/internal/app/domain/ledger"
	"github.com/skysurety/service_layer/internal/app/services/operations"
	"github.com/skysurety/service_layer/internal/app/services/registry"
	"github.com/skysurety/service_layer/internal/app/storage/memory"
)

func TestService_FundPromotesAtMinimumBond(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(operations.New("operator", nil), store, store, 10, nil)

	if _, err := store.CreateAirline(ctx, airline.Airline{ID: "airline-2", State: airline.StateRegistered}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	a, err := svc.Fund(ctx, "airline-2", 4)
	if err != nil {
		t.Fatalf("partial fund: %v", err)
	}
	if a.State != airline.StateRegistered {
		t.Fatalf("partial bond must not promote, state %s", a.State)
	}

	a, err = svc.Fund(ctx, "airline-2", 6)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if a.State != airline.StateFunded {
		t.Fatalf("expected funded state, got %s", a.State)
	}
	if a.BondBalance != 10 {
		t.Fatalf("expected bond 10, got %d", a.BondBalance)
	}

	// Later deposits grow the bond without another promotion.
	a, err = svc.Fund(ctx, "airline-2", 5)
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if a.BondBalance != 15 || a.State != airline.StateFunded {
		t.Fatalf("unexpected airline after top up: %+v", a)
	}
}

func TestService_FundRejectsProposedAirline(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(operations.New("operator", nil), store, store, 10, nil)

	if _, err := store.CreateAirline(ctx, airline.Airline{ID: "airline-5", State: airline.StateProposed}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.Fund(ctx, "airline-5", 10); !errors.Is(err, ledger.ErrCallerNotEligible) {
		t.Fatalf("expected eligibility error, got %v", err)
	}
	if _, err := svc.Fund(ctx, "ghost", 10); !errors.Is(err, ledger.ErrUnknownAirline) {
		t.Fatalf("expected unknown airline error, got %v", err)
	}
}

func TestService_FundRejectsNonPositiveAmount(t *testing.T) {
	store := memory.New()
	svc := New(operations.New("operator", nil), store, store, 10, nil)
	if _, err := svc.Fund(context.Background(), "airline-1", 0); err == nil {
		t.Fatalf("expected error for zero bond")
	}
}

func TestService_ConcurrentFundAndBookKeepEveryBondCredit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ops := operations.New("operator", nil)
	svc := New(ops, store, store, 10, nil)
	booking := registry.New(ops, store, store, store, store, 100, 150, nil)

	if _, err := store.CreateAirline(ctx, airline.Airline{ID: "airline-1", State: airline.StateFunded, BondBalance: 10}); err != nil {
		t.Fatalf("seed airline: %v", err)
	}
	key := flight.Key{AirlineID: "airline-1", Code: "SS-100", Takeoff: 1000}
	if _, err := store.CreateFlight(ctx, flight.Flight{Key: key, Landing: 2000, Price: 5}); err != nil {
		t.Fatalf("seed flight: %v", err)
	}

	// Deposits and ticket-revenue credits target the same bond from two
	// services at once; every credit must survive.
	const pairs = 50
	var wg sync.WaitGroup
	errCh := make(chan error, 2*pairs)
	for i := 0; i < pairs; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := svc.Fund(ctx, "airline-1", 10); err != nil {
				errCh <- fmt.Errorf("fund: %w", err)
			}
		}()
		go func(passenger int) {
			defer wg.Done()
			id := fmt.Sprintf("passenger-%d", passenger)
			if _, err := booking.Book(ctx, id, key, 0, 5); err != nil {
				errCh <- fmt.Errorf("book %s: %w", id, err)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent mutation: %v", err)
	}

	a, err := store.GetAirline(ctx, "airline-1")
	if err != nil {
		t.Fatalf("get airline: %v", err)
	}
	want := int64(10 + pairs*10 + pairs*5)
	if a.BondBalance != want {
		t.Fatalf("expected bond %d, got %d", want, a.BondBalance)
	}
}

func TestService_WithdrawMovesCreditIntoPendingTransfer(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(operations.New("operator", nil), store, store, 10, nil)

	if _, err := store.AddCredit(ctx, "passenger-1", 15); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	transfer, err := svc.Withdraw(ctx, "passenger-1")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if transfer.Amount != 15 {
		t.Fatalf("expected transfer of 15, got %d", transfer.Amount)
	}
	if transfer.Status != insurance.TransferPending {
		t.Fatalf("expected pending transfer, got %s", transfer.Status)
	}

	balance, err := svc.CreditBalance(ctx, "passenger-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected drained balance, got %d", balance)
	}

	// A second withdrawal has nothing left to claim.
	if _, err := svc.Withdraw(ctx, "passenger-1"); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance error, got %v", err)
	}
}

func TestService_CompleteTransfer(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(operations.New("operator", nil), store, store, 10, nil)

	if _, err := store.AddCredit(ctx, "passenger-1", 30); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
	transfer, err := svc.Withdraw(ctx, "passenger-1")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	settled, err := svc.CompleteTransfer(ctx, transfer.ID, true, "settled")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if settled.Status != insurance.TransferCompleted {
		t.Fatalf("expected completed transfer, got %s", settled.Status)
	}

	// Completion is idempotent.
	again, err := svc.CompleteTransfer(ctx, transfer.ID, false, "late failure")
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if again.Status != insurance.TransferCompleted {
		t.Fatalf("settled transfer must not change status, got %s", again.Status)
	}
}

func TestService_FailedTransferRestoresCredit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(operations.New("operator", nil), store, store, 10, nil)

	if _, err := store.AddCredit(ctx, "passenger-1", 30); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
	transfer, err := svc.Withdraw(ctx, "passenger-1")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	failed, err := svc.CompleteTransfer(ctx, transfer.ID, false, "transport rejected")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if failed.Status != insurance.TransferFailed {
		t.Fatalf("expected failed transfer, got %s", failed.Status)
	}

	balance, err := svc.CreditBalance(ctx, "passenger-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 30 {
		t.Fatalf("expected restored credit of 30, got %d", balance)
	}
}

func TestSettlementPoller_SettlesPendingTransfers(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(operations.New("operator", nil), store, store, 10, nil)

	if _, err := store.AddCredit(ctx, "passenger-1", 20); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
	transfer, err := svc.Withdraw(ctx, "passenger-1")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	poller := NewSettlementPoller(store, svc, NewImmediateResolver(0), "@every 1h", nil)
	poller.tick(ctx)

	settled, err := store.GetTransfer(ctx, transfer.ID)
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if settled.Status != insurance.TransferCompleted {
		t.Fatalf("expected the sweep to settle the transfer, got %s", settled.Status)
	}

	pending, err := store.ListPendingTransfers(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending transfers, got %d", len(pending))
	}
}

func TestSettlementPoller_StartStop(t *testing.T) {
	store := memory.New()
	svc := New(operations.New("operator", nil), store, store, 10, nil)
	poller := NewSettlementPoller(store, svc, NewImmediateResolver(0), "@every 1h", nil)

	ctx := context.Background()
	if err := poller.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := poller.Start(ctx); err != nil {
		t.Fatalf("second start should be a no-op: %v", err)
	}
	if err := poller.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := poller.Stop(ctx); err != nil {
		t.Fatalf("second stop should be a no-op: %v", err)
	}
}
