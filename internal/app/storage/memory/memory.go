// Package memory provides a thread-safe in-memory persistence layer
// implementing the storage interfaces. It is intended for tests and
// prototyping and deliberately keeps the implementation simple.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skysurety/service_layer/internal/app/domain/airline"
	"github.com/skysurety/service_layer/internal/app/domain/flight"
	"github.com/skysurety/service_layer/internal/app/domain/insurance"
	"github.com/skysurety/service_layer/internal/app/domain/ledger"
	"github.com/skysurety/service_layer/internal/app/domain/oracle"
)

// Store is the in-memory implementation of every storage interface.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	airlines  map[string]airline.Airline
	flights   map[string]flight.Flight
	policies  map[string]insurance.Policy
	credits   map[string]int64
	transfers map[string]insurance.Transfer
	reporters map[string]oracle.Reporter
	requests  map[string]oracle.Request
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nextID:    1,
		airlines:  make(map[string]airline.Airline),
		flights:   make(map[string]flight.Flight),
		policies:  make(map[string]insurance.Policy),
		credits:   make(map[string]int64),
		transfers: make(map[string]insurance.Transfer),
		reporters: make(map[string]oracle.Reporter),
		requests:  make(map[string]oracle.Request),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// AirlineStore implementation -------------------------------------------------

func (s *Store) CreateAirline(_ context.Context, a airline.Airline) (airline.Airline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		return airline.Airline{}, fmt.Errorf("airline id is required")
	}
	if _, exists := s.airlines[a.ID]; exists {
		return airline.Airline{}, fmt.Errorf("airline %s already exists", a.ID)
	}

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Votes = copyVotes(a.Votes)

	s.airlines[a.ID] = a
	return cloneAirline(a), nil
}

func (s *Store) UpdateAirline(_ context.Context, a airline.Airline) (airline.Airline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.airlines[a.ID]
	if !ok {
		return airline.Airline{}, fmt.Errorf("airline %s: %w", a.ID, ledger.ErrUnknownAirline)
	}

	a.CreatedAt = original.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	a.Votes = copyVotes(a.Votes)

	s.airlines[a.ID] = a
	return cloneAirline(a), nil
}

func (s *Store) AddBond(_ context.Context, id string, amount int64) (airline.Airline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.airlines[id]
	if !ok {
		return airline.Airline{}, fmt.Errorf("airline %s: %w", id, ledger.ErrUnknownAirline)
	}

	a.BondBalance += amount
	a.UpdatedAt = time.Now().UTC()
	s.airlines[id] = a
	return cloneAirline(a), nil
}

func (s *Store) GetAirline(_ context.Context, id string) (airline.Airline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.airlines[id]
	if !ok {
		return airline.Airline{}, fmt.Errorf("airline %s: %w", id, ledger.ErrUnknownAirline)
	}
	return cloneAirline(a), nil
}

func (s *Store) ListAirlines(_ context.Context) ([]airline.Airline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]airline.Airline, 0, len(s.airlines))
	for _, a := range s.airlines {
		result = append(result, cloneAirline(a))
	}
	return result, nil
}

func (s *Store) CountAirlines(_ context.Context, states ...airline.State) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(states) == 0 {
		return len(s.airlines), nil
	}
	count := 0
	for _, a := range s.airlines {
		for _, st := range states {
			if a.State == st {
				count++
				break
			}
		}
	}
	return count, nil
}

// FlightStore implementation --------------------------------------------------

func (s *Store) CreateFlight(_ context.Context, f flight.Flight) (flight.Flight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := f.Key.String()
	if _, exists := s.flights[key]; exists {
		return flight.Flight{}, fmt.Errorf("flight %s: %w", key, ledger.ErrDuplicateFlight)
	}

	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	s.flights[key] = f
	return f, nil
}

func (s *Store) UpdateFlight(_ context.Context, f flight.Flight) (flight.Flight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := f.Key.String()
	original, ok := s.flights[key]
	if !ok {
		return flight.Flight{}, fmt.Errorf("flight %s: %w", key, ledger.ErrUnknownFlight)
	}

	f.CreatedAt = original.CreatedAt
	f.UpdatedAt = time.Now().UTC()

	s.flights[key] = f
	return f, nil
}

func (s *Store) GetFlight(_ context.Context, key flight.Key) (flight.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flights[key.String()]
	if !ok {
		return flight.Flight{}, fmt.Errorf("flight %s: %w", key, ledger.ErrUnknownFlight)
	}
	return f, nil
}

func (s *Store) ListFlights(_ context.Context, airlineID string) ([]flight.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]flight.Flight, 0)
	for _, f := range s.flights {
		if airlineID == "" || f.Key.AirlineID == airlineID {
			result = append(result, f)
		}
	}
	return result, nil
}

// PolicyStore implementation --------------------------------------------------

func (s *Store) CreatePolicy(_ context.Context, p insurance.Policy) (insurance.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.policies[p.ID]; exists {
		return insurance.Policy{}, fmt.Errorf("policy %s already exists", p.ID)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.policies[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePolicy(_ context.Context, p insurance.Policy) (insurance.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.policies[p.ID]
	if !ok {
		return insurance.Policy{}, fmt.Errorf("policy %s not found", p.ID)
	}

	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	s.policies[p.ID] = p
	return p, nil
}

func (s *Store) GetPolicy(_ context.Context, id string) (insurance.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return insurance.Policy{}, fmt.Errorf("policy %s not found", id)
	}
	return p, nil
}

func (s *Store) ListPoliciesByFlight(_ context.Context, key flight.Key) ([]insurance.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]insurance.Policy, 0)
	for _, p := range s.policies {
		if p.FlightKey == key {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *Store) ListPoliciesByPassenger(_ context.Context, passengerID string) ([]insurance.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]insurance.Policy, 0)
	for _, p := range s.policies {
		if p.PassengerID == passengerID {
			result = append(result, p)
		}
	}
	return result, nil
}

// CreditStore implementation --------------------------------------------------

func (s *Store) AddCredit(_ context.Context, passengerID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive")
	}
	s.credits[passengerID] += amount
	return s.credits[passengerID], nil
}

func (s *Store) CreditBalance(_ context.Context, passengerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credits[passengerID], nil
}

func (s *Store) ClearCredit(_ context.Context, passengerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	amount := s.credits[passengerID]
	if amount <= 0 {
		return 0, fmt.Errorf("passenger %s: %w", passengerID, ledger.ErrInsufficientBalance)
	}
	delete(s.credits, passengerID)
	return amount, nil
}

func (s *Store) CreateTransfer(_ context.Context, t insurance.Transfer) (insurance.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = s.nextIDLocked()
	} else if _, exists := s.transfers[t.ID]; exists {
		return insurance.Transfer{}, fmt.Errorf("transfer %s already exists", t.ID)
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	s.transfers[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTransfer(_ context.Context, t insurance.Transfer) (insurance.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.transfers[t.ID]
	if !ok {
		return insurance.Transfer{}, fmt.Errorf("transfer %s not found", t.ID)
	}

	t.CreatedAt = original.CreatedAt
	t.UpdatedAt = time.Now().UTC()

	s.transfers[t.ID] = t
	return t, nil
}

func (s *Store) GetTransfer(_ context.Context, id string) (insurance.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transfers[id]
	if !ok {
		return insurance.Transfer{}, fmt.Errorf("transfer %s not found", id)
	}
	return t, nil
}

func (s *Store) ListPendingTransfers(_ context.Context) ([]insurance.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]insurance.Transfer, 0)
	for _, t := range s.transfers {
		if t.Status == insurance.TransferPending {
			result = append(result, t)
		}
	}
	return result, nil
}

// OracleStore implementation --------------------------------------------------

func (s *Store) CreateReporter(_ context.Context, r oracle.Reporter) (oracle.Reporter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		return oracle.Reporter{}, fmt.Errorf("reporter id is required")
	}
	if _, exists := s.reporters[r.ID]; exists {
		return oracle.Reporter{}, fmt.Errorf("reporter %s already exists", r.ID)
	}

	r.CreatedAt = time.Now().UTC()
	s.reporters[r.ID] = r
	return r, nil
}

func (s *Store) GetReporter(_ context.Context, id string) (oracle.Reporter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reporters[id]
	if !ok {
		return oracle.Reporter{}, fmt.Errorf("reporter %s: %w", id, ledger.ErrUnknownReporter)
	}
	return r, nil
}

func (s *Store) ListReporters(_ context.Context) ([]oracle.Reporter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]oracle.Reporter, 0, len(s.reporters))
	for _, r := range s.reporters {
		result = append(result, r)
	}
	return result, nil
}

func (s *Store) CreateRequest(_ context.Context, req oracle.Request) (oracle.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := req.FlightKey.String()
	if _, exists := s.requests[key]; exists {
		return oracle.Request{}, fmt.Errorf("request %s already exists", key)
	}

	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	req.Submissions = cloneSubmissions(req.Submissions)

	s.requests[key] = req
	return cloneRequest(req), nil
}

func (s *Store) UpdateRequest(_ context.Context, req oracle.Request) (oracle.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := req.FlightKey.String()
	original, ok := s.requests[key]
	if !ok {
		return oracle.Request{}, fmt.Errorf("request %s: %w", key, ledger.ErrUnknownRequest)
	}

	req.CreatedAt = original.CreatedAt
	req.UpdatedAt = time.Now().UTC()
	req.Submissions = cloneSubmissions(req.Submissions)

	s.requests[key] = req
	return cloneRequest(req), nil
}

func (s *Store) GetRequest(_ context.Context, key flight.Key) (oracle.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[key.String()]
	if !ok {
		return oracle.Request{}, fmt.Errorf("request %s: %w", key, ledger.ErrUnknownRequest)
	}
	return cloneRequest(req), nil
}

func (s *Store) ListOpenRequests(_ context.Context) ([]oracle.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]oracle.Request, 0)
	for _, req := range s.requests {
		if !req.Resolved {
			result = append(result, cloneRequest(req))
		}
	}
	return result, nil
}

// Helpers ---------------------------------------------------------------------

func copyVotes(src map[string]bool) map[string]bool {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneAirline(a airline.Airline) airline.Airline {
	a.Votes = copyVotes(a.Votes)
	return a
}

func cloneSubmissions(src []oracle.Submission) []oracle.Submission {
	if len(src) == 0 {
		return nil
	}
	return append([]oracle.Submission(nil), src...)
}

func cloneRequest(req oracle.Request) oracle.Request {
	req.Submissions = cloneSubmissions(req.Submissions)
	return req
}
