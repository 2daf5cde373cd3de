// Package oracle implements the multi-reporter flight-status consensus
// protocol: sharded reporters submit observations and a quorum of matching
// submissions resolves the request exactly once.
package oracle

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/skysurety/service_layer/internal/app/domain/flight"
	"github.com/skysurety/service_layer/internal/app/domain/ledger"
	"github.com/skysurety/service_layer/internal/app/domain/oracle"
	"github.com/skysurety/service_layer/internal/app/events"
	"github.com/skysurety/service_layer/internal/app/metrics"
	"github.com/skysurety/service_layer/internal/app/services/operations"
	"github.com/skysurety/service_layer/internal/app/storage"
	"github.com/skysurety/service_layer/pkg/logger"
)

// Payouter is the registry callback fired exactly once per resolution.
type Payouter interface {
	ProcessResolution(ctx context.Context, key flight.Key, status flight.StatusCode) error
}

// Service runs the per-request consensus state machine.
type Service struct {
	ops     *operations.Service
	store   storage.OracleStore
	flights storage.FlightStore
	payout  Payouter
	bus     *events.Bus
	log     *logger.Logger

	quorum int

	// mu serializes submissions so duplicate and quorum checks always see
	// the latest request state.
	mu sync.Mutex
}

// New constructs the oracle service.
func New(ops *operations.Service, store storage.OracleStore, flights storage.FlightStore, payout Payouter, bus *events.Bus, quorum int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("oracle")
	}
	if quorum < 1 {
		quorum = 3
	}
	return &Service{
		ops:     ops,
		store:   store,
		flights: flights,
		payout:  payout,
		bus:     bus,
		log:     log,
		quorum:  quorum,
	}
}

// Quorum returns the configured resolution quorum.
func (s *Service) Quorum() int { return s.quorum }

// RegisterReporter admits a status reporter and assigns its fixed shard
// index set.
func (s *Service) RegisterReporter(ctx context.Context, reporterID string) (oracle.Reporter, error) {
	if err := s.ops.Require(); err != nil {
		return oracle.Reporter{}, err
	}
	reporterID = strings.TrimSpace(reporterID)
	if reporterID == "" {
		return oracle.Reporter{}, fmt.Errorf("reporter id is required")
	}

	if existing, err := s.store.GetReporter(ctx, reporterID); err == nil {
		return existing, nil
	}

	reporter := oracle.Reporter{ID: reporterID, Indexes: assignIndexes()}
	created, err := s.store.CreateReporter(ctx, reporter)
	if err != nil {
		return oracle.Reporter{}, err
	}

	s.log.WithField("reporter_id", reporterID).
		WithField("indexes", created.Indexes).
		Info("reporter registered")
	return created, nil
}

// assignIndexes picks IndexCount distinct values from [0, IndexRange).
func assignIndexes() [oracle.IndexCount]int {
	perm := rand.Perm(oracle.IndexRange)
	var idx [oracle.IndexCount]int
	copy(idx[:], perm[:oracle.IndexCount])
	return idx
}

// FetchFlightStatus opens a consensus request for the flight, or returns the
// existing one. Resolved requests are returned as-is; the resolved status is
// immutable.
func (s *Service) FetchFlightStatus(ctx context.Context, key flight.Key) (oracle.Request, error) {
	if err := s.ops.Require(); err != nil {
		return oracle.Request{}, err
	}

	if _, err := s.flights.GetFlight(ctx, key); err != nil {
		return oracle.Request{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.store.GetRequest(ctx, key); err == nil {
		return existing, nil
	}

	req := oracle.Request{
		FlightKey: key,
		Index:     rand.Intn(oracle.IndexRange),
	}
	created, err := s.store.CreateRequest(ctx, req)
	if err != nil {
		return oracle.Request{}, err
	}

	s.log.WithField("flight", key.String()).
		WithField("index", created.Index).
		Info("status request opened")
	return created, nil
}

// SubmitResponse records a reporter's observation. At quorum the request
// resolves exactly once, the payout trigger fires, and a status event is
// published. Submissions after resolution are kept for audit only.
func (s *Service) SubmitResponse(ctx context.Context, reporterID string, key flight.Key, status flight.StatusCode) (oracle.Request, error) {
	if err := s.ops.Require(); err != nil {
		return oracle.Request{}, err
	}

	reporter, err := s.store.GetReporter(ctx, reporterID)
	if err != nil {
		return oracle.Request{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.store.GetRequest(ctx, key)
	if err != nil {
		return oracle.Request{}, err
	}

	if !reporter.HasIndex(req.Index) {
		metrics.RecordOracleSubmission("rejected")
		return oracle.Request{}, fmt.Errorf("reporter %s on request %s: %w", reporterID, key, ledger.ErrIndexMismatch)
	}
	if req.HasSubmission(reporterID) {
		metrics.RecordOracleSubmission("rejected")
		return oracle.Request{}, fmt.Errorf("reporter %s on request %s: %w", reporterID, key, ledger.ErrDuplicateSubmission)
	}

	submission := oracle.Submission{
		ReporterID:  reporterID,
		Status:      status,
		Counted:     !req.Resolved,
		SubmittedAt: time.Now().UTC(),
	}
	req.Submissions = append(req.Submissions, submission)

	if req.Resolved {
		metrics.RecordOracleSubmission("audit")
		return s.store.UpdateRequest(ctx, req)
	}
	metrics.RecordOracleSubmission("counted")

	if req.Agreement(status) < s.quorum {
		return s.store.UpdateRequest(ctx, req)
	}

	// Quorum reached: resolve, then trigger the payout exactly once.
	req.Resolved = true
	req.Status = status
	updated, err := s.store.UpdateRequest(ctx, req)
	if err != nil {
		return oracle.Request{}, err
	}
	metrics.RecordOracleResolution()

	if err := s.payout.ProcessResolution(ctx, key, status); err != nil {
		s.log.WithError(err).
			WithField("flight", key.String()).
			Warn("payout trigger failed")
	}

	if s.bus != nil {
		s.bus.Publish(events.FlightStatus{
			Flight:     key,
			Status:     status,
			Delayed:    status.Delayed(),
			ResolvedAt: time.Now().UTC(),
		})
	}

	s.log.WithField("flight", key.String()).
		WithField("status", int(status)).
		WithField("submissions", len(updated.Submissions)).
		Info("status request resolved")
	return updated, nil
}

// GetRequest returns the consensus state for a flight.
func (s *Service) GetRequest(ctx context.Context, key flight.Key) (oracle.Request, error) {
	return s.store.GetRequest(ctx, key)
}

// ListOpenRequests returns requests still awaiting quorum.
func (s *Service) ListOpenRequests(ctx context.Context) ([]oracle.Request, error) {
	return s.store.ListOpenRequests(ctx)
}

// GetReporter returns a reporter record.
func (s *Service) GetReporter(ctx context.Context, id string) (oracle.Reporter, error) {
	return s.store.GetReporter(ctx, id)
}
