// Package operations owns the process-wide operational flag. Every mutating
// entry point of the other services consults it; only the designated
// operator may toggle it.
package operations

import (
	"fmt"
	"sync"

	"github.com/skysurety/service_layer/internal/app/domain/ledger"
	"github.com/skysurety/service_layer/pkg/logger"
)

// Service guards the operational flag.
type Service struct {
	operatorID string
	log        *logger.Logger

	mu          sync.RWMutex
	operational bool
}

// New constructs the operations service with the flag enabled.
func New(operatorID string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("operations")
	}
	return &Service{
		operatorID:  operatorID,
		log:         log,
		operational: true,
	}
}

// IsOperational reports the current flag. Read-only; never gated.
func (s *Service) IsOperational() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operational
}

// SetOperational toggles the flag. Operator-only.
func (s *Service) SetOperational(caller string, operational bool) error {
	if caller != s.operatorID {
		return fmt.Errorf("caller %s: %w", caller, ledger.ErrUnauthorized)
	}

	s.mu.Lock()
	changed := s.operational != operational
	s.operational = operational
	s.mu.Unlock()

	if changed {
		s.log.WithField("operational", operational).Warn("operational status changed")
	}
	return nil
}

// Require returns ErrNotOperational when mutations are disabled.
func (s *Service) Require() error {
	if !s.IsOperational() {
		return ledger.ErrNotOperational
	}
	return nil
}
