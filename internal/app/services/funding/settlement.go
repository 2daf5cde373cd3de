package funding

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skysurety/service_layer/internal/app/domain/insurance"
	"github.com/skysurety/service_layer/internal/app/storage"
	"github.com/skysurety/service_layer/internal/app/system"
	"github.com/skysurety/service_layer/pkg/logger"
)

// TransferResolver decides whether a pending withdrawal has been settled by
// the external transport.
type TransferResolver interface {
	Resolve(ctx context.Context, t insurance.Transfer) (done bool, success bool, message string, err error)
}

// ImmediateResolver settles every transfer successfully after a grace
// period. It stands in for the external transport in deployments without
// one.
type ImmediateResolver struct {
	grace time.Duration
	seen  sync.Map // transferID -> time.Time
}

// NewImmediateResolver creates a resolver with the given grace period.
func NewImmediateResolver(grace time.Duration) *ImmediateResolver {
	if grace < 0 {
		grace = 0
	}
	return &ImmediateResolver{grace: grace}
}

func (r *ImmediateResolver) Resolve(_ context.Context, t insurance.Transfer) (bool, bool, string, error) {
	if value, ok := r.seen.Load(t.ID); ok {
		if time.Since(value.(time.Time)) >= r.grace {
			r.seen.Delete(t.ID)
			return true, true, "settled", nil
		}
		return false, false, "", nil
	}
	r.seen.Store(t.ID, time.Now())
	if r.grace == 0 {
		return true, true, "settled", nil
	}
	return false, false, "", nil
}

// SettlementPoller sweeps pending withdrawal transfers on a cron schedule
// and settles them through the resolver.
type SettlementPoller struct {
	store    storage.CreditStore
	service  *Service
	resolver TransferResolver
	schedule cron.Schedule
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*SettlementPoller)(nil)

// NewSettlementPoller builds the poller. The schedule expression accepts
// standard cron specs and descriptors such as "@every 15s"; invalid specs
// fall back to a 15 second sweep.
func NewSettlementPoller(store storage.CreditStore, service *Service, resolver TransferResolver, scheduleSpec string, log *logger.Logger) *SettlementPoller {
	if log == nil {
		log = logger.NewDefault("funding-settlement")
	}
	if resolver == nil {
		resolver = NewImmediateResolver(0)
	}
	schedule, err := cron.ParseStandard(scheduleSpec)
	if err != nil {
		log.WithError(err).Warnf("invalid settlement schedule %q, using @every 15s", scheduleSpec)
		schedule, _ = cron.ParseStandard("@every 15s")
	}
	return &SettlementPoller{
		store:    store,
		service:  service,
		resolver: resolver,
		schedule: schedule,
		log:      log,
	}
}

func (p *SettlementPoller) Name() string { return "funding-settlement" }

func (p *SettlementPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			next := p.schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-runCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				p.tick(runCtx)
			}
		}
	}()

	p.log.Info("settlement poller started")
	return nil
}

func (p *SettlementPoller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.log.Info("settlement poller stopped")
	return nil
}

func (p *SettlementPoller) tick(ctx context.Context) {
	transfers, err := p.store.ListPendingTransfers(ctx)
	if err != nil {
		p.log.WithError(err).Warn("list pending transfers failed")
		return
	}

	for _, transfer := range transfers {
		done, success, message, err := p.resolver.Resolve(ctx, transfer)
		if err != nil {
			p.log.WithError(err).Warnf("resolver error for transfer %s", transfer.ID)
			continue
		}
		if !done {
			continue
		}

		if _, err := p.service.CompleteTransfer(ctx, transfer.ID, success, message); err != nil {
			p.log.WithError(err).Warnf("complete transfer %s failed", transfer.ID)
		}
	}
}
