// Package registry manages flights and insurance policies: registration,
// booking, and the payout applied when the oracle consensus resolves a
// flight as delayed.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/skysurety/service_layer/internal/app/domain/flight"
	"github.com/skysurety/service_layer/internal/app/domain/insurance"
	"github.com/skysurety/service_layer/internal/app/domain/ledger"
	"github.com/skysurety/service_layer/internal/app/metrics"
	"github.com/skysurety/service_layer/internal/app/services/operations"
	"github.com/skysurety/service_layer/internal/app/storage"
	"github.com/skysurety/service_layer/pkg/logger"
)

// Service implements the flight and insurance registry.
type Service struct {
	ops      *operations.Service
	airlines storage.AirlineStore
	flights  storage.FlightStore
	policies storage.PolicyStore
	credits  storage.CreditStore
	log      *logger.Logger

	insuranceCap  int64
	payoutPercent int64

	// mu serializes bookings and resolutions so duplicate-policy checks and
	// the exactly-once payout run against the latest state.
	mu sync.Mutex
}

// New constructs the registry service.
func New(ops *operations.Service, airlines storage.AirlineStore, flights storage.FlightStore, policies storage.PolicyStore, credits storage.CreditStore, insuranceCap, payoutPercent int64, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("registry")
	}
	return &Service{
		ops:           ops,
		airlines:      airlines,
		flights:       flights,
		policies:      policies,
		credits:       credits,
		insuranceCap:  insuranceCap,
		payoutPercent: payoutPercent,
		log:           log,
	}
}

// InsuranceCap returns the configured maximum insured amount.
func (s *Service) InsuranceCap() int64 { return s.insuranceCap }

// RegisterFlight creates a scheduled flight. The caller must be a funded
// airline and the (airline, code, takeoff) key must be new.
func (s *Service) RegisterFlight(ctx context.Context, caller string, takeoff, landing int64, code string, price int64, from, to string) (flight.Flight, error) {
	if err := s.ops.Require(); err != nil {
		return flight.Flight{}, err
	}

	a, err := s.airlines.GetAirline(ctx, caller)
	if err != nil || !a.CanParticipate() {
		return flight.Flight{}, fmt.Errorf("caller %s: %w", caller, ledger.ErrCallerNotEligible)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return flight.Flight{}, fmt.Errorf("flight code is required")
	}
	if takeoff <= 0 || landing <= takeoff {
		return flight.Flight{}, fmt.Errorf("takeoff and landing times are inconsistent")
	}
	if price <= 0 {
		return flight.Flight{}, fmt.Errorf("ticket price must be positive")
	}

	f := flight.Flight{
		Key:     flight.Key{AirlineID: caller, Code: code, Takeoff: takeoff},
		Landing: landing,
		Price:   price,
		From:    strings.TrimSpace(from),
		To:      strings.TrimSpace(to),
		Status:  flight.StatusUnknown,
	}
	created, err := s.flights.CreateFlight(ctx, f)
	if err != nil {
		return flight.Flight{}, err
	}

	s.log.WithField("flight", created.Key.String()).
		WithField("price", price).
		Info("flight registered")
	return created, nil
}

// Book purchases insurance on a scheduled flight. The attached payment must
// equal the ticket price plus the insured amount; the ticket portion is
// credited to the airline's bond and the premium stays in escrow.
func (s *Service) Book(ctx context.Context, passengerID string, key flight.Key, insuredAmount, payment int64) (insurance.Policy, error) {
	if err := s.ops.Require(); err != nil {
		return insurance.Policy{}, err
	}
	if passengerID == "" {
		return insurance.Policy{}, fmt.Errorf("passenger id is required")
	}
	if insuredAmount < 0 {
		return insurance.Policy{}, fmt.Errorf("insured amount cannot be negative")
	}
	if insuredAmount > s.insuranceCap {
		return insurance.Policy{}, fmt.Errorf("insured amount %d over cap %d: %w", insuredAmount, s.insuranceCap, ledger.ErrCapExceeded)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.flights.GetFlight(ctx, key)
	if err != nil {
		return insurance.Policy{}, err
	}
	if !f.Scheduled() {
		return insurance.Policy{}, fmt.Errorf("flight %s: %w", key, ledger.ErrFlightFinalized)
	}

	required := f.Price + insuredAmount
	if payment < required {
		return insurance.Policy{}, fmt.Errorf("payment %d below required %d: %w", payment, required, ledger.ErrInsufficientFunds)
	}
	if payment > required {
		return insurance.Policy{}, fmt.Errorf("payment %d exceeds required %d", payment, required)
	}

	existing, err := s.policies.ListPoliciesByFlight(ctx, key)
	if err != nil {
		return insurance.Policy{}, err
	}
	for _, p := range existing {
		if p.PassengerID == passengerID && p.State == insurance.PolicyActive {
			return insurance.Policy{}, fmt.Errorf("flight %s: %w", key, ledger.ErrDuplicatePolicy)
		}
	}

	policy := insurance.Policy{
		PassengerID:   passengerID,
		FlightKey:     key,
		Premium:       insuredAmount,
		InsuredAmount: insuredAmount,
		State:         insurance.PolicyActive,
	}
	policy, err = s.policies.CreatePolicy(ctx, policy)
	if err != nil {
		return insurance.Policy{}, err
	}

	// Ticket revenue goes to the operating airline's bond.
	if _, err := s.airlines.AddBond(ctx, key.AirlineID, f.Price); err != nil {
		// The policy was already issued; void it before reporting.
		policy.State = insurance.PolicyExpired
		if _, voidErr := s.policies.UpdatePolicy(ctx, policy); voidErr != nil {
			s.log.WithError(voidErr).
				WithField("policy_id", policy.ID).
				Error("failed to void policy after bond credit error")
		}
		return insurance.Policy{}, fmt.Errorf("credit ticket revenue to airline %s: %w", key.AirlineID, err)
	}

	s.log.WithField("flight", key.String()).
		WithField("passenger_id", passengerID).
		WithField("insured", insuredAmount).
		Info("policy issued")
	return policy, nil
}

// ProcessResolution applies a resolved flight status. A delayed resolution
// pays every active policy at the configured multiplier; a landed one
// expires them. The flight is finalized so the payout can run only once.
func (s *Service) ProcessResolution(ctx context.Context, key flight.Key, status flight.StatusCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.flights.GetFlight(ctx, key)
	if err != nil {
		return err
	}
	if f.Finalized {
		return fmt.Errorf("flight %s: %w", key, ledger.ErrFlightFinalized)
	}

	f.Status = status
	f.Finalized = true
	if _, err := s.flights.UpdateFlight(ctx, f); err != nil {
		return err
	}

	policies, err := s.policies.ListPoliciesByFlight(ctx, key)
	if err != nil {
		return err
	}

	for _, p := range policies {
		if p.State != insurance.PolicyActive {
			continue
		}
		if status.Delayed() {
			credit := p.InsuredAmount * s.payoutPercent / 100
			if _, err := s.credits.AddCredit(ctx, p.PassengerID, credit); err != nil {
				return fmt.Errorf("credit passenger %s: %w", p.PassengerID, err)
			}
			p.State = insurance.PolicyPaid
			metrics.RecordPayout(credit)
		} else {
			p.State = insurance.PolicyExpired
		}
		if _, err := s.policies.UpdatePolicy(ctx, p); err != nil {
			return err
		}
	}

	s.log.WithField("flight", key.String()).
		WithField("status", int(status)).
		WithField("policies", len(policies)).
		Info("flight resolution processed")
	return nil
}

// GetFlight returns a flight by key.
func (s *Service) GetFlight(ctx context.Context, key flight.Key) (flight.Flight, error) {
	return s.flights.GetFlight(ctx, key)
}

// ListFlights returns flights, optionally filtered by airline.
func (s *Service) ListFlights(ctx context.Context, airlineID string) ([]flight.Flight, error) {
	return s.flights.ListFlights(ctx, airlineID)
}

// ListPolicies returns the policies held against a flight.
func (s *Service) ListPolicies(ctx context.Context, key flight.Key) ([]insurance.Policy, error) {
	return s.policies.ListPoliciesByFlight(ctx, key)
}

// ListPassengerPolicies returns every policy a passenger holds.
func (s *Service) ListPassengerPolicies(ctx context.Context, passengerID string) ([]insurance.Policy, error) {
	return s.policies.ListPoliciesByPassenger(ctx, passengerID)
}
