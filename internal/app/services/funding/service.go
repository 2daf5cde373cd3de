// Package funding implements the bonding gate that turns a registered
// airline into a participating one, and the passenger credit withdrawal
// path with asynchronous settlement.
package funding

import (
	"context"
	"fmt"
	"sync"

	"github.com/skysurety/service_layer/internal/app/domain/airline"
	"github.com/skysurety/service_layer/internal/app/domain/insurance"
	"github.com/skysurety/service_layer/internal/app/domain/ledger"
	"github.com/skysurety/service_layer/internal/app/metrics"
	"github.com/skysurety/service_layer/internal/app/services/operations"
	"github.com/skysurety/service_layer/internal/app/storage"
	"github.com/skysurety/service_layer/pkg/logger"
)

// Service manages airline bonds and passenger withdrawals.
type Service struct {
	ops      *operations.Service
	airlines storage.AirlineStore
	credits  storage.CreditStore
	log      *logger.Logger

	minimumBond int64

	// mu serializes bond mutations so the registered->funded promotion
	// happens exactly once under concurrent deposits.
	mu sync.Mutex
}

// New constructs the funding service.
func New(ops *operations.Service, airlines storage.AirlineStore, credits storage.CreditStore, minimumBond int64, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("funding")
	}
	return &Service{
		ops:         ops,
		airlines:    airlines,
		credits:     credits,
		minimumBond: minimumBond,
		log:         log,
	}
}

// MinimumBond returns the configured participation bond.
func (s *Service) MinimumBond() int64 { return s.minimumBond }

// Fund adds to the caller's bond. Crossing the minimum bond promotes a
// registered airline to funded; later deposits only grow the bond.
func (s *Service) Fund(ctx context.Context, caller string, amount int64) (airline.Airline, error) {
	if err := s.ops.Require(); err != nil {
		return airline.Airline{}, err
	}
	if amount <= 0 {
		return airline.Airline{}, fmt.Errorf("bond amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.airlines.GetAirline(ctx, caller)
	if err != nil {
		return airline.Airline{}, err
	}
	if a.State == airline.StateProposed {
		return airline.Airline{}, fmt.Errorf("airline %s not yet registered: %w", caller, ledger.ErrCallerNotEligible)
	}

	updated, err := s.airlines.AddBond(ctx, caller, amount)
	if err != nil {
		return airline.Airline{}, err
	}

	promoted := false
	if updated.State == airline.StateRegistered && updated.BondBalance >= s.minimumBond {
		// A registered airline cannot operate flights yet, so nothing else
		// credits its bond while this whole-record write is in flight.
		updated.State = airline.StateFunded
		promoted = true
		updated, err = s.airlines.UpdateAirline(ctx, updated)
		if err != nil {
			return airline.Airline{}, err
		}
	}

	entry := s.log.WithField("airline_id", updated.ID).
		WithField("bond", updated.BondBalance)
	if promoted {
		entry.Info("airline funded and promoted")
	} else {
		entry.Info("bond increased")
	}
	return updated, nil
}

// CreditBalance returns the passenger's withdrawable credit.
func (s *Service) CreditBalance(ctx context.Context, passengerID string) (int64, error) {
	return s.credits.CreditBalance(ctx, passengerID)
}

// Withdraw moves the caller's entire credit balance into a pending transfer
// settled asynchronously by the settlement poller. Zero balance fails with
// ErrInsufficientBalance.
func (s *Service) Withdraw(ctx context.Context, passengerID string) (insurance.Transfer, error) {
	if err := s.ops.Require(); err != nil {
		return insurance.Transfer{}, err
	}

	amount, err := s.credits.ClearCredit(ctx, passengerID)
	if err != nil {
		return insurance.Transfer{}, err
	}

	transfer, err := s.credits.CreateTransfer(ctx, insurance.Transfer{
		PassengerID: passengerID,
		Amount:      amount,
		Status:      insurance.TransferPending,
	})
	if err != nil {
		// The credit was already cleared; put it back before reporting.
		if _, restoreErr := s.credits.AddCredit(ctx, passengerID, amount); restoreErr != nil {
			s.log.WithError(restoreErr).
				WithField("passenger_id", passengerID).
				Error("failed to restore credit after transfer error")
		}
		return insurance.Transfer{}, err
	}

	s.log.WithField("passenger_id", passengerID).
		WithField("amount", amount).
		WithField("transfer_id", transfer.ID).
		Info("withdrawal requested")
	return transfer, nil
}

// CompleteTransfer finalizes a pending transfer. A failed settlement
// restores the passenger's credit.
func (s *Service) CompleteTransfer(ctx context.Context, transferID string, success bool, message string) (insurance.Transfer, error) {
	transfer, err := s.credits.GetTransfer(ctx, transferID)
	if err != nil {
		return insurance.Transfer{}, err
	}
	if transfer.Status != insurance.TransferPending {
		return transfer, nil
	}

	if success {
		transfer.Status = insurance.TransferCompleted
	} else {
		transfer.Status = insurance.TransferFailed
		if _, err := s.credits.AddCredit(ctx, transfer.PassengerID, transfer.Amount); err != nil {
			return insurance.Transfer{}, fmt.Errorf("restore credit for failed transfer %s: %w", transferID, err)
		}
	}
	transfer.Message = message

	updated, err := s.credits.UpdateTransfer(ctx, transfer)
	if err != nil {
		return insurance.Transfer{}, err
	}
	metrics.RecordWithdrawal(string(updated.Status))
	s.log.WithField("transfer_id", updated.ID).
		WithField("status", updated.Status).
		Info("withdrawal settled")
	return updated, nil
}
