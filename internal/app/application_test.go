package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skysurety/service_layer/internal/app/domain/flight"
	"github.com/skysurety/service_layer/internal/app/domain/insurance"
	"github.com/skysurety/service_layer/internal/app/domain/ledger"
	"github.com/skysurety/service_layer/internal/config"
)

// TestLedgerEndToEnd walks the whole lifecycle on the in-memory store:
// admission through fast path and voting, bonding, flight registration,
// insurance purchase, oracle consensus, payout, and withdrawal.
func TestLedgerEndToEnd(t *testing.T) {
	ctx := context.Background()
	application, err := New(Stores{}, config.Default().Surety, nil)
	require.NoError(t, err)

	require.NoError(t, application.Start(ctx))
	defer func() { require.NoError(t, application.Stop(ctx)) }()

	// The bootstrap airline seeds the network funded.
	first, err := application.Governance.Get(ctx, "airline-1")
	require.NoError(t, err)
	require.True(t, first.CanParticipate())

	// Airlines two through four ride the fast path.
	for _, id := range []string{"airline-2", "airline-3", "airline-4"} {
		res, err := application.Governance.ProposeAirline(ctx, "airline-1", id, id)
		require.NoError(t, err)
		require.True(t, res.Registered, "expected %s via fast path", id)
	}
	for _, id := range []string{"airline-2", "airline-3"} {
		a, err := application.Funding.Fund(ctx, id, application.Funding.MinimumBond())
		require.NoError(t, err)
		require.True(t, a.CanParticipate())
	}

	// The fifth airline needs a majority of the three funded voters.
	res, err := application.Governance.ProposeAirline(ctx, "airline-1", "airline-5", "Fifth")
	require.NoError(t, err)
	require.False(t, res.Registered)
	require.Equal(t, 1, res.VotesLeft)

	_, err = application.Governance.ProposeAirline(ctx, "airline-1", "airline-5", "Fifth")
	require.ErrorIs(t, err, ledger.ErrDuplicateVote)

	res, err = application.Governance.ProposeAirline(ctx, "airline-2", "airline-5", "Fifth")
	require.NoError(t, err)
	require.True(t, res.Registered)

	// A registered airline cannot operate flights until it posts the bond.
	_, err = application.Registry.RegisterFlight(ctx, "airline-5", 1000, 2000, "FA-500", 20, "OSL", "CDG")
	require.ErrorIs(t, err, ledger.ErrCallerNotEligible)

	_, err = application.Funding.Fund(ctx, "airline-5", application.Funding.MinimumBond())
	require.NoError(t, err)

	f, err := application.Registry.RegisterFlight(ctx, "airline-5", 1000, 2000, "FA-500", 20, "OSL", "CDG")
	require.NoError(t, err)

	// A passenger insures the flight at the cap.
	insuredCap := application.Registry.InsuranceCap()
	policy, err := application.Registry.Book(ctx, "passenger-1", f.Key, insuredCap, f.Price+insuredCap)
	require.NoError(t, err)
	require.Equal(t, insurance.PolicyActive, policy.State)

	// Open a consensus request and gather enough sharded reporters to reach
	// quorum on its index.
	req, err := application.Oracle.FetchFlightStatus(ctx, f.Key)
	require.NoError(t, err)

	matching := make([]string, 0, application.Oracle.Quorum())
	for i := 0; len(matching) < application.Oracle.Quorum(); i++ {
		require.Less(t, i, 500, "could not gather matching reporters")
		id := fmt.Sprintf("reporter-%d", i)
		reporter, err := application.Oracle.RegisterReporter(ctx, id)
		require.NoError(t, err)
		if reporter.HasIndex(req.Index) {
			matching = append(matching, id)
		}
	}

	eventCh, cancel := application.Events.Subscribe()
	defer cancel()

	for i, id := range matching {
		req, err = application.Oracle.SubmitResponse(ctx, id, f.Key, flight.StatusLateAirline)
		require.NoError(t, err)
		wantResolved := i == len(matching)-1
		require.Equal(t, wantResolved, req.Resolved, "after submission %d", i+1)
	}
	require.Equal(t, flight.StatusLateAirline, req.Status)

	select {
	case evt := <-eventCh:
		require.Equal(t, f.Key, evt.Flight)
		require.True(t, evt.Delayed)
	default:
		t.Fatal("expected a flight status event")
	}

	// The payout landed at 1.5x and the flight is closed for booking.
	wantPayout := insuredCap * 150 / 100
	balance, err := application.Funding.CreditBalance(ctx, "passenger-1")
	require.NoError(t, err)
	require.Equal(t, wantPayout, balance)

	_, err = application.Registry.Book(ctx, "passenger-2", f.Key, 10, 30)
	require.ErrorIs(t, err, ledger.ErrFlightFinalized)

	// Withdrawal drains the credit into a pending transfer, which settles.
	transfer, err := application.Funding.Withdraw(ctx, "passenger-1")
	require.NoError(t, err)
	require.Equal(t, wantPayout, transfer.Amount)
	require.Equal(t, insurance.TransferPending, transfer.Status)

	settled, err := application.Funding.CompleteTransfer(ctx, transfer.ID, true, "settled")
	require.NoError(t, err)
	require.Equal(t, insurance.TransferCompleted, settled.Status)

	balance, err = application.Funding.CreditBalance(ctx, "passenger-1")
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestBootstrapSeedsSingleAirline(t *testing.T) {
	application, err := New(Stores{}, config.Default().Surety, nil)
	require.NoError(t, err)

	count, err := application.Governance.RegisteredCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestApplicationAttachAfterStart(t *testing.T) {
	ctx := context.Background()
	application, err := New(Stores{}, config.Default().Surety, nil)
	require.NoError(t, err)

	require.NoError(t, application.Start(ctx))
	defer func() { require.NoError(t, application.Stop(ctx)) }()

	require.Error(t, application.Attach(noopProbe{}))
}

type noopProbe struct{}

func (noopProbe) Name() string                { return "probe" }
func (noopProbe) Start(context.Context) error { return nil }
func (noopProbe) Stop(context.Context) error  { return nil }
