// Package governance implements airline admission: a fast path while the
// network is small and multiparty voting once it crosses the consensus
// threshold.
package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/skysurety/service_layer/internal/app/domain/airline"
	"github.com/skysurety/service_layer/internal/app/domain/ledger"
	"github.com/skysurety/service_layer/internal/app/metrics"
	"github.com/skysurety/service_layer/internal/app/services/operations"
	"github.com/skysurety/service_layer/internal/app/storage"
	"github.com/skysurety/service_layer/pkg/logger"
)

// Result reports the outcome of a proposal.
type Result struct {
	Airline    airline.Airline
	Registered bool
	VotesLeft  int
}

// Service runs the admission state machine.
type Service struct {
	ops   *operations.Service
	store storage.AirlineStore
	log   *logger.Logger

	// consensusCount is the Registered+Funded population at which admission
	// switches from the fast path to voting.
	consensusCount int

	// mu serializes proposals so concurrent votes for the same candidate
	// re-check duplicates against the latest state.
	mu sync.Mutex
}

// New constructs the governance service.
func New(ops *operations.Service, store storage.AirlineStore, consensusCount int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("governance")
	}
	if consensusCount < 2 {
		consensusCount = 4
	}
	return &Service{
		ops:            ops,
		store:          store,
		consensusCount: consensusCount,
		log:            log,
	}
}

// Bootstrap seeds the first airline as funded so the network can start
// without a quorum. Idempotent.
func (s *Service) Bootstrap(ctx context.Context, id, name string, bond int64) (airline.Airline, error) {
	if existing, err := s.store.GetAirline(ctx, id); err == nil {
		return existing, nil
	}
	a := airline.Airline{
		ID:          id,
		Name:        name,
		State:       airline.StateFunded,
		BondBalance: bond,
	}
	a, err := s.store.CreateAirline(ctx, a)
	if err != nil {
		return airline.Airline{}, fmt.Errorf("seed bootstrap airline: %w", err)
	}
	s.log.WithField("airline_id", id).Info("bootstrap airline seeded")
	return a, nil
}

// ProposeAirline registers a candidate directly while the network is below
// the consensus threshold, or records the caller's vote otherwise. The
// caller must be a funded airline.
func (s *Service) ProposeAirline(ctx context.Context, caller, candidateID, name string) (Result, error) {
	if err := s.ops.Require(); err != nil {
		return Result{}, err
	}
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return Result{}, fmt.Errorf("candidate id is required")
	}

	voter, err := s.store.GetAirline(ctx, caller)
	if err != nil || !voter.CanParticipate() {
		return Result{}, fmt.Errorf("caller %s: %w", caller, ledger.ErrCallerNotEligible)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	population, err := s.store.CountAirlines(ctx, airline.StateRegistered, airline.StateFunded)
	if err != nil {
		return Result{}, err
	}

	candidate, err := s.store.GetAirline(ctx, candidateID)
	switch {
	case err != nil && errors.Is(err, ledger.ErrUnknownAirline):
		return s.proposeNew(ctx, voter, candidateID, name, population)
	case err != nil:
		return Result{}, err
	default:
		return s.vote(ctx, voter, candidate)
	}
}

func (s *Service) proposeNew(ctx context.Context, voter airline.Airline, candidateID, name string, population int) (Result, error) {
	candidate := airline.Airline{ID: candidateID, Name: name}

	if population < s.consensusCount {
		candidate.State = airline.StateRegistered
		created, err := s.store.CreateAirline(ctx, candidate)
		if err != nil {
			return Result{}, err
		}
		metrics.RecordAirlineRegistered("fast_path")
		s.log.WithField("airline_id", candidateID).
			WithField("population", population).
			Info("airline registered via fast path")
		return Result{Airline: created, Registered: true}, nil
	}

	candidate.State = airline.StateProposed
	candidate.Votes = map[string]bool{voter.ID: true}
	created, err := s.store.CreateAirline(ctx, candidate)
	if err != nil {
		return Result{}, err
	}
	metrics.RecordVote()

	required, err := s.requiredVotes(ctx)
	if err != nil {
		return Result{}, err
	}
	if created.VoteCount() >= required {
		return s.promote(ctx, created)
	}
	s.log.WithField("airline_id", candidateID).
		WithField("votes", created.VoteCount()).
		WithField("required", required).
		Info("airline proposed, awaiting consensus")
	return Result{Airline: created, VotesLeft: required - created.VoteCount()}, nil
}

func (s *Service) vote(ctx context.Context, voter airline.Airline, candidate airline.Airline) (Result, error) {
	if candidate.State != airline.StateProposed {
		// Already admitted; nothing left to vote on.
		return Result{Airline: candidate, Registered: true}, nil
	}
	if candidate.HasVote(voter.ID) {
		return Result{}, fmt.Errorf("candidate %s: %w", candidate.ID, ledger.ErrDuplicateVote)
	}

	if candidate.Votes == nil {
		candidate.Votes = make(map[string]bool)
	}
	candidate.Votes[voter.ID] = true
	updated, err := s.store.UpdateAirline(ctx, candidate)
	if err != nil {
		return Result{}, err
	}
	metrics.RecordVote()

	required, err := s.requiredVotes(ctx)
	if err != nil {
		return Result{}, err
	}
	if updated.VoteCount() >= required {
		return s.promote(ctx, updated)
	}
	s.log.WithField("airline_id", updated.ID).
		WithField("votes", updated.VoteCount()).
		WithField("required", required).
		Info("vote recorded")
	return Result{Airline: updated, VotesLeft: required - updated.VoteCount()}, nil
}

func (s *Service) promote(ctx context.Context, candidate airline.Airline) (Result, error) {
	candidate.State = airline.StateRegistered
	updated, err := s.store.UpdateAirline(ctx, candidate)
	if err != nil {
		return Result{}, err
	}
	metrics.RecordAirlineRegistered("consensus")
	s.log.WithField("airline_id", updated.ID).
		WithField("votes", updated.VoteCount()).
		Info("airline registered by consensus")
	return Result{Airline: updated, Registered: true}, nil
}

// requiredVotes is ceil(fundedCount/2): a strict majority of the airlines
// eligible to vote. The denominator deliberately counts funded airlines
// only; registered-but-unfunded airlines widen the fast-path population but
// hold no vote.
func (s *Service) requiredVotes(ctx context.Context) (int, error) {
	funded, err := s.store.CountAirlines(ctx, airline.StateFunded)
	if err != nil {
		return 0, err
	}
	required := (funded + 1) / 2
	if required < 1 {
		required = 1
	}
	return required, nil
}

// VotesLeft returns how many additional votes the candidate needs. Zero for
// admitted airlines; ErrUnknownCandidate when it was never proposed.
func (s *Service) VotesLeft(ctx context.Context, candidateID string) (int, error) {
	candidate, err := s.store.GetAirline(ctx, candidateID)
	if err != nil {
		return 0, fmt.Errorf("candidate %s: %w", candidateID, ledger.ErrUnknownCandidate)
	}
	if candidate.State != airline.StateProposed {
		return 0, nil
	}
	required, err := s.requiredVotes(ctx)
	if err != nil {
		return 0, err
	}
	left := required - candidate.VoteCount()
	if left < 0 {
		left = 0
	}
	return left, nil
}

// IsRegistered reports whether the airline has been admitted.
func (s *Service) IsRegistered(ctx context.Context, id string) (bool, error) {
	a, err := s.store.GetAirline(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownAirline) {
			return false, nil
		}
		return false, err
	}
	return a.State == airline.StateRegistered || a.State == airline.StateFunded, nil
}

// RegisteredCount returns the admitted population (registered plus funded).
func (s *Service) RegisteredCount(ctx context.Context) (int, error) {
	return s.store.CountAirlines(ctx, airline.StateRegistered, airline.StateFunded)
}

// Get returns an airline record.
func (s *Service) Get(ctx context.Context, id string) (airline.Airline, error) {
	return s.store.GetAirline(ctx, id)
}

// List returns all airlines.
func (s *Service) List(ctx context.Context) ([]airline.Airline, error) {
	return s.store.ListAirlines(ctx)
}
