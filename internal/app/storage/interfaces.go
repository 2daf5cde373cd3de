package storage

import (
	"context"

	"github.com/skysurety/service_layer/internal/app/domain/airline"
	"github.com/skysurety/service_layer/internal/app/domain/flight"
	"github.com/skysurety/service_layer/internal/app/domain/insurance"
	"github.com/skysurety/service_layer/internal/app/domain/oracle"
)

// AirlineStore persists airline records and vote tallies. AddBond is atomic
// so bond deposits and ticket-revenue credits from concurrent callers never
// overwrite each other.
type AirlineStore interface {
	CreateAirline(ctx context.Context, a airline.Airline) (airline.Airline, error)
	UpdateAirline(ctx context.Context, a airline.Airline) (airline.Airline, error)
	AddBond(ctx context.Context, id string, amount int64) (airline.Airline, error)
	GetAirline(ctx context.Context, id string) (airline.Airline, error)
	ListAirlines(ctx context.Context) ([]airline.Airline, error)
	CountAirlines(ctx context.Context, states ...airline.State) (int, error)
}

// FlightStore persists registered flights.
type FlightStore interface {
	CreateFlight(ctx context.Context, f flight.Flight) (flight.Flight, error)
	UpdateFlight(ctx context.Context, f flight.Flight) (flight.Flight, error)
	GetFlight(ctx context.Context, key flight.Key) (flight.Flight, error)
	ListFlights(ctx context.Context, airlineID string) ([]flight.Flight, error)
}

// PolicyStore persists insurance policies.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, p insurance.Policy) (insurance.Policy, error)
	UpdatePolicy(ctx context.Context, p insurance.Policy) (insurance.Policy, error)
	GetPolicy(ctx context.Context, id string) (insurance.Policy, error)
	ListPoliciesByFlight(ctx context.Context, key flight.Key) ([]insurance.Policy, error)
	ListPoliciesByPassenger(ctx context.Context, passengerID string) ([]insurance.Policy, error)
}

// CreditStore persists the passenger credit ledger and withdrawal transfers.
// AddCredit and ClearCredit are atomic so a payout and a withdrawal against
// the same passenger always observe a consistent total.
type CreditStore interface {
	AddCredit(ctx context.Context, passengerID string, amount int64) (int64, error)
	CreditBalance(ctx context.Context, passengerID string) (int64, error)
	ClearCredit(ctx context.Context, passengerID string) (int64, error)

	CreateTransfer(ctx context.Context, t insurance.Transfer) (insurance.Transfer, error)
	UpdateTransfer(ctx context.Context, t insurance.Transfer) (insurance.Transfer, error)
	GetTransfer(ctx context.Context, id string) (insurance.Transfer, error)
	ListPendingTransfers(ctx context.Context) ([]insurance.Transfer, error)
}

// OracleStore persists reporters and consensus requests.
type OracleStore interface {
	CreateReporter(ctx context.Context, r oracle.Reporter) (oracle.Reporter, error)
	GetReporter(ctx context.Context, id string) (oracle.Reporter, error)
	ListReporters(ctx context.Context) ([]oracle.Reporter, error)

	CreateRequest(ctx context.Context, req oracle.Request) (oracle.Request, error)
	UpdateRequest(ctx context.Context, req oracle.Request) (oracle.Request, error)
	GetRequest(ctx context.Context, key flight.Key) (oracle.Request, error)
	ListOpenRequests(ctx context.Context) ([]oracle.Request, error)
}
