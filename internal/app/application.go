// Package app wires the surety services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/skysurety/service_layer/internal/app/events"
	fundingsvc "github.com/skysurety/service_layer/internal/app/services/funding"
	governancesvc "github.com/skysurety/service_layer/internal/app/services/governance"
	"github.com/skysurety/service_layer/internal/app/services/operations"
	oraclesvc "github.com/skysurety/service_layer/internal/app/services/oracle"
	registrysvc "github.com/skysurety/service_layer/internal/app/services/registry"
	"github.com/skysurety/service_layer/internal/app/storage"
	"github.com/skysurety/service_layer/internal/app/storage/memory"
	"github.com/skysurety/service_layer/internal/app/system"
	"github.com/skysurety/service_layer/internal/config"
	"github.com/skysurety/service_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Airlines storage.AirlineStore
	Flights  storage.FlightStore
	Policies storage.PolicyStore
	Credits  storage.CreditStore
	Oracle   storage.OracleStore
}

// Application ties the domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	cfg     config.SuretyConfig

	Operations *operations.Service
	Governance *governancesvc.Service
	Funding    *fundingsvc.Service
	Registry   *registrysvc.Service
	Oracle     *oraclesvc.Service
	Events     *events.Bus
}

// New builds a fully initialised application with the provided stores and
// seeds the bootstrap airline.
func New(stores Stores, cfg config.SuretyConfig, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Airlines == nil {
		stores.Airlines = mem
	}
	if stores.Flights == nil {
		stores.Flights = mem
	}
	if stores.Policies == nil {
		stores.Policies = mem
	}
	if stores.Credits == nil {
		stores.Credits = mem
	}
	if stores.Oracle == nil {
		stores.Oracle = mem
	}

	manager := system.NewManager()
	bus := events.NewBus()

	opsService := operations.New(cfg.OperatorID, log)
	governanceService := governancesvc.New(opsService, stores.Airlines, cfg.ConsensusAirlineCount, log)
	fundingService := fundingsvc.New(opsService, stores.Airlines, stores.Credits, cfg.MinimumBond, log)
	registryService := registrysvc.New(opsService, stores.Airlines, stores.Flights, stores.Policies, stores.Credits, cfg.InsuranceCap, cfg.PayoutPercent, log)
	oracleService := oraclesvc.New(opsService, stores.Oracle, stores.Flights, registryService, bus, cfg.OracleQuorum, log)

	if _, err := governanceService.Bootstrap(context.Background(), cfg.BootstrapAirlineID, cfg.BootstrapAirlineName, cfg.MinimumBond); err != nil {
		return nil, err
	}

	for _, name := range []string{"operations", "governance", "registry", "oracle"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	settlement := fundingsvc.NewSettlementPoller(stores.Credits, fundingService, nil, cfg.SettlementSchedule, log)
	if err := manager.Register(settlement); err != nil {
		return nil, fmt.Errorf("register %s: %w", settlement.Name(), err)
	}

	return &Application{
		manager:    manager,
		log:        log,
		cfg:        cfg,
		Operations: opsService,
		Governance: governanceService,
		Funding:    fundingService,
		Registry:   registryService,
		Oracle:     oracleService,
		Events:     bus,
	}, nil
}

// Config returns the domain configuration the application was built with.
func (a *Application) Config() config.SuretyConfig { return a.cfg }

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
