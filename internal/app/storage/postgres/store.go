// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/skysurety/service_layer/internal/app/domain/airline"
	"github.com/skysurety/service_layer/internal/app/domain/flight"
	"github.com/skysurety/service_layer/internal/app/domain/insurance"
	"github.com/skysurety/service_layer/internal/app/domain/ledger"
	"github.com/skysurety/service_layer/internal/app/domain/oracle"
	"github.com/skysurety/service_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.AirlineStore = (*Store)(nil)
var _ storage.FlightStore = (*Store)(nil)
var _ storage.PolicyStore = (*Store)(nil)
var _ storage.CreditStore = (*Store)(nil)
var _ storage.OracleStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS surety_airlines (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	bond        BIGINT NOT NULL DEFAULT 0,
	votes       JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS surety_flights (
	airline_id   TEXT NOT NULL,
	code         TEXT NOT NULL,
	takeoff      BIGINT NOT NULL,
	landing      BIGINT NOT NULL,
	price        BIGINT NOT NULL,
	from_airport TEXT NOT NULL DEFAULT '',
	to_airport   TEXT NOT NULL DEFAULT '',
	status       INT NOT NULL DEFAULT 0,
	finalized    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (airline_id, code, takeoff)
);

CREATE TABLE IF NOT EXISTS surety_policies (
	id           TEXT PRIMARY KEY,
	passenger_id TEXT NOT NULL,
	airline_id   TEXT NOT NULL,
	code         TEXT NOT NULL,
	takeoff      BIGINT NOT NULL,
	premium      BIGINT NOT NULL,
	insured      BIGINT NOT NULL,
	state        TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS surety_credits (
	passenger_id TEXT PRIMARY KEY,
	balance      BIGINT NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS surety_transfers (
	id           TEXT PRIMARY KEY,
	passenger_id TEXT NOT NULL,
	amount       BIGINT NOT NULL,
	status       TEXT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS surety_reporters (
	id         TEXT PRIMARY KEY,
	indexes    BIGINT[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS surety_requests (
	airline_id  TEXT NOT NULL,
	code        TEXT NOT NULL,
	takeoff     BIGINT NOT NULL,
	shard_index INT NOT NULL,
	resolved    BOOLEAN NOT NULL DEFAULT FALSE,
	status      INT NOT NULL DEFAULT 0,
	submissions JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (airline_id, code, takeoff)
);
`

// --- AirlineStore -----------------------------------------------------------

func (s *Store) CreateAirline(ctx context.Context, a airline.Airline) (airline.Airline, error) {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	votesJSON, err := json.Marshal(votesOrEmpty(a.Votes))
	if err != nil {
		return airline.Airline{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO surety_airlines (id, name, state, bond, votes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Name, string(a.State), a.BondBalance, votesJSON, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return airline.Airline{}, err
	}
	return a, nil
}

func (s *Store) UpdateAirline(ctx context.Context, a airline.Airline) (airline.Airline, error) {
	a.UpdatedAt = time.Now().UTC()

	votesJSON, err := json.Marshal(votesOrEmpty(a.Votes))
	if err != nil {
		return airline.Airline{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE surety_airlines
		SET name = $2, state = $3, bond = $4, votes = $5, updated_at = $6
		WHERE id = $1
	`, a.ID, a.Name, string(a.State), a.BondBalance, votesJSON, a.UpdatedAt)
	if err != nil {
		return airline.Airline{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return airline.Airline{}, fmt.Errorf("airline %s: %w", a.ID, ledger.ErrUnknownAirline)
	}
	return a, nil
}

func (s *Store) AddBond(ctx context.Context, id string, amount int64) (airline.Airline, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE surety_airlines
		SET bond = bond + $2, updated_at = $3
		WHERE id = $1
		RETURNING id, name, state, bond, votes, created_at, updated_at
	`, id, amount, time.Now().UTC())

	a, err := scanAirline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return airline.Airline{}, fmt.Errorf("airline %s: %w", id, ledger.ErrUnknownAirline)
	}
	return a, err
}

func (s *Store) GetAirline(ctx context.Context, id string) (airline.Airline, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, state, bond, votes, created_at, updated_at
		FROM surety_airlines
		WHERE id = $1
	`, id)

	a, err := scanAirline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return airline.Airline{}, fmt.Errorf("airline %s: %w", id, ledger.ErrUnknownAirline)
	}
	return a, err
}

func (s *Store) ListAirlines(ctx context.Context) ([]airline.Airline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, state, bond, votes, created_at, updated_at
		FROM surety_airlines
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []airline.Airline
	for rows.Next() {
		a, err := scanAirline(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) CountAirlines(ctx context.Context, states ...airline.State) (int, error) {
	if len(states) == 0 {
		var count int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM surety_airlines`).Scan(&count)
		return count, err
	}

	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM surety_airlines WHERE state = ANY($1)
	`, pq.Array(names)).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAirline(row rowScanner) (airline.Airline, error) {
	var (
		a        airline.Airline
		state    string
		votesRaw []byte
	)
	if err := row.Scan(&a.ID, &a.Name, &state, &a.BondBalance, &votesRaw, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return airline.Airline{}, err
	}
	a.State = airline.State(state)
	if len(votesRaw) > 0 {
		_ = json.Unmarshal(votesRaw, &a.Votes)
	}
	if len(a.Votes) == 0 {
		a.Votes = nil
	}
	return a, nil
}

func votesOrEmpty(votes map[string]bool) map[string]bool {
	if votes == nil {
		return map[string]bool{}
	}
	return votes
}

// --- FlightStore ------------------------------------------------------------

func (s *Store) CreateFlight(ctx context.Context, f flight.Flight) (flight.Flight, error) {
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO surety_flights (airline_id, code, takeoff, landing, price, from_airport, to_airport, status, finalized, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, f.Key.AirlineID, f.Key.Code, f.Key.Takeoff, f.Landing, f.Price, f.From, f.To, int(f.Status), f.Finalized, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return flight.Flight{}, fmt.Errorf("flight %s: %w", f.Key, ledger.ErrDuplicateFlight)
		}
		return flight.Flight{}, err
	}
	return f, nil
}

func (s *Store) UpdateFlight(ctx context.Context, f flight.Flight) (flight.Flight, error) {
	f.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE surety_flights
		SET landing = $4, price = $5, from_airport = $6, to_airport = $7, status = $8, finalized = $9, updated_at = $10
		WHERE airline_id = $1 AND code = $2 AND takeoff = $3
	`, f.Key.AirlineID, f.Key.Code, f.Key.Takeoff, f.Landing, f.Price, f.From, f.To, int(f.Status), f.Finalized, f.UpdatedAt)
	if err != nil {
		return flight.Flight{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return flight.Flight{}, fmt.Errorf("flight %s: %w", f.Key, ledger.ErrUnknownFlight)
	}
	return f, nil
}

func (s *Store) GetFlight(ctx context.Context, key flight.Key) (flight.Flight, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT airline_id, code, takeoff, landing, price, from_airport, to_airport, status, finalized, created_at, updated_at
		FROM surety_flights
		WHERE airline_id = $1 AND code = $2 AND takeoff = $3
	`, key.AirlineID, key.Code, key.Takeoff)

	f, err := scanFlight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return flight.Flight{}, fmt.Errorf("flight %s: %w", key, ledger.ErrUnknownFlight)
	}
	return f, err
}

func (s *Store) ListFlights(ctx context.Context, airlineID string) ([]flight.Flight, error) {
	query := `
		SELECT airline_id, code, takeoff, landing, price, from_airport, to_airport, status, finalized, created_at, updated_at
		FROM surety_flights`
	args := []any{}
	if airlineID != "" {
		query += ` WHERE airline_id = $1`
		args = append(args, airlineID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]flight.Flight, 0)
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func scanFlight(row rowScanner) (flight.Flight, error) {
	var (
		f      flight.Flight
		status int
	)
	err := row.Scan(&f.Key.AirlineID, &f.Key.Code, &f.Key.Takeoff, &f.Landing, &f.Price, &f.From, &f.To, &status, &f.Finalized, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return flight.Flight{}, err
	}
	f.Status = flight.StatusCode(status)
	return f, nil
}

// --- PolicyStore ------------------------------------------------------------

func (s *Store) CreatePolicy(ctx context.Context, p insurance.Policy) (insurance.Policy, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO surety_policies (id, passenger_id, airline_id, code, takeoff, premium, insured, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.PassengerID, p.FlightKey.AirlineID, p.FlightKey.Code, p.FlightKey.Takeoff, p.Premium, p.InsuredAmount, string(p.State), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return insurance.Policy{}, err
	}
	return p, nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p insurance.Policy) (insurance.Policy, error) {
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE surety_policies
		SET state = $2, updated_at = $3
		WHERE id = $1
	`, p.ID, string(p.State), p.UpdatedAt)
	if err != nil {
		return insurance.Policy{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return insurance.Policy{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetPolicy(ctx context.Context, id string) (insurance.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, passenger_id, airline_id, code, takeoff, premium, insured, state, created_at, updated_at
		FROM surety_policies
		WHERE id = $1
	`, id)
	return scanPolicy(row)
}

func (s *Store) ListPoliciesByFlight(ctx context.Context, key flight.Key) ([]insurance.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, passenger_id, airline_id, code, takeoff, premium, insured, state, created_at, updated_at
		FROM surety_policies
		WHERE airline_id = $1 AND code = $2 AND takeoff = $3
		ORDER BY created_at
	`, key.AirlineID, key.Code, key.Takeoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPolicies(rows)
}

func (s *Store) ListPoliciesByPassenger(ctx context.Context, passengerID string) ([]insurance.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, passenger_id, airline_id, code, takeoff, premium, insured, state, created_at, updated_at
		FROM surety_policies
		WHERE passenger_id = $1
		ORDER BY created_at
	`, passengerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPolicies(rows)
}

func collectPolicies(rows *sql.Rows) ([]insurance.Policy, error) {
	result := make([]insurance.Policy, 0)
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanPolicy(row rowScanner) (insurance.Policy, error) {
	var (
		p     insurance.Policy
		state string
	)
	err := row.Scan(&p.ID, &p.PassengerID, &p.FlightKey.AirlineID, &p.FlightKey.Code, &p.FlightKey.Takeoff, &p.Premium, &p.InsuredAmount, &state, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return insurance.Policy{}, err
	}
	p.State = insurance.PolicyState(state)
	return p, nil
}

// --- CreditStore ------------------------------------------------------------

func (s *Store) AddCredit(ctx context.Context, passengerID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive")
	}
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO surety_credits (passenger_id, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (passenger_id)
		DO UPDATE SET balance = surety_credits.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		RETURNING balance
	`, passengerID, amount, time.Now().UTC()).Scan(&balance)
	return balance, err
}

func (s *Store) CreditBalance(ctx context.Context, passengerID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT balance FROM surety_credits WHERE passenger_id = $1
	`, passengerID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func (s *Store) ClearCredit(ctx context.Context, passengerID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM surety_credits WHERE passenger_id = $1 FOR UPDATE
	`, passengerID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && balance <= 0) {
		return 0, fmt.Errorf("passenger %s: %w", passengerID, ledger.ErrInsufficientBalance)
	}
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE surety_credits SET balance = 0, updated_at = $2 WHERE passenger_id = $1
	`, passengerID, time.Now().UTC()); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) CreateTransfer(ctx context.Context, t insurance.Transfer) (insurance.Transfer, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO surety_transfers (id, passenger_id, amount, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.PassengerID, t.Amount, string(t.Status), t.Message, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return insurance.Transfer{}, err
	}
	return t, nil
}

func (s *Store) UpdateTransfer(ctx context.Context, t insurance.Transfer) (insurance.Transfer, error) {
	t.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE surety_transfers
		SET status = $2, message = $3, updated_at = $4
		WHERE id = $1
	`, t.ID, string(t.Status), t.Message, t.UpdatedAt)
	if err != nil {
		return insurance.Transfer{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return insurance.Transfer{}, sql.ErrNoRows
	}
	return t, nil
}

func (s *Store) GetTransfer(ctx context.Context, id string) (insurance.Transfer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, passenger_id, amount, status, message, created_at, updated_at
		FROM surety_transfers
		WHERE id = $1
	`, id)
	return scanTransfer(row)
}

func (s *Store) ListPendingTransfers(ctx context.Context) ([]insurance.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, passenger_id, amount, status, message, created_at, updated_at
		FROM surety_transfers
		WHERE status = $1
		ORDER BY created_at
	`, string(insurance.TransferPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]insurance.Transfer, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func scanTransfer(row rowScanner) (insurance.Transfer, error) {
	var (
		t      insurance.Transfer
		status string
	)
	err := row.Scan(&t.ID, &t.PassengerID, &t.Amount, &status, &t.Message, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return insurance.Transfer{}, err
	}
	t.Status = insurance.TransferStatus(status)
	return t, nil
}

// --- OracleStore ------------------------------------------------------------

func (s *Store) CreateReporter(ctx context.Context, r oracle.Reporter) (oracle.Reporter, error) {
	r.CreatedAt = time.Now().UTC()

	indexes := make([]int64, oracle.IndexCount)
	for i, v := range r.Indexes {
		indexes[i] = int64(v)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO surety_reporters (id, indexes, created_at)
		VALUES ($1, $2, $3)
	`, r.ID, pq.Array(indexes), r.CreatedAt)
	if err != nil {
		return oracle.Reporter{}, err
	}
	return r, nil
}

func (s *Store) GetReporter(ctx context.Context, id string) (oracle.Reporter, error) {
	var (
		r       oracle.Reporter
		indexes pq.Int64Array
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, indexes, created_at FROM surety_reporters WHERE id = $1
	`, id).Scan(&r.ID, &indexes, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return oracle.Reporter{}, fmt.Errorf("reporter %s: %w", id, ledger.ErrUnknownReporter)
	}
	if err != nil {
		return oracle.Reporter{}, err
	}
	for i := 0; i < oracle.IndexCount && i < len(indexes); i++ {
		r.Indexes[i] = int(indexes[i])
	}
	return r, nil
}

func (s *Store) ListReporters(ctx context.Context) ([]oracle.Reporter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, indexes, created_at FROM surety_reporters ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]oracle.Reporter, 0)
	for rows.Next() {
		var (
			r       oracle.Reporter
			indexes pq.Int64Array
		)
		if err := rows.Scan(&r.ID, &indexes, &r.CreatedAt); err != nil {
			return nil, err
		}
		for i := 0; i < oracle.IndexCount && i < len(indexes); i++ {
			r.Indexes[i] = int(indexes[i])
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) CreateRequest(ctx context.Context, req oracle.Request) (oracle.Request, error) {
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	subsJSON, err := json.Marshal(submissionsOrEmpty(req.Submissions))
	if err != nil {
		return oracle.Request{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO surety_requests (airline_id, code, takeoff, shard_index, resolved, status, submissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, req.FlightKey.AirlineID, req.FlightKey.Code, req.FlightKey.Takeoff, req.Index, req.Resolved, int(req.Status), subsJSON, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return oracle.Request{}, err
	}
	return req, nil
}

func (s *Store) UpdateRequest(ctx context.Context, req oracle.Request) (oracle.Request, error) {
	req.UpdatedAt = time.Now().UTC()

	subsJSON, err := json.Marshal(submissionsOrEmpty(req.Submissions))
	if err != nil {
		return oracle.Request{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE surety_requests
		SET shard_index = $4, resolved = $5, status = $6, submissions = $7, updated_at = $8
		WHERE airline_id = $1 AND code = $2 AND takeoff = $3
	`, req.FlightKey.AirlineID, req.FlightKey.Code, req.FlightKey.Takeoff, req.Index, req.Resolved, int(req.Status), subsJSON, req.UpdatedAt)
	if err != nil {
		return oracle.Request{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return oracle.Request{}, fmt.Errorf("request %s: %w", req.FlightKey, ledger.ErrUnknownRequest)
	}
	return req, nil
}

func (s *Store) GetRequest(ctx context.Context, key flight.Key) (oracle.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT airline_id, code, takeoff, shard_index, resolved, status, submissions, created_at, updated_at
		FROM surety_requests
		WHERE airline_id = $1 AND code = $2 AND takeoff = $3
	`, key.AirlineID, key.Code, key.Takeoff)

	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return oracle.Request{}, fmt.Errorf("request %s: %w", key, ledger.ErrUnknownRequest)
	}
	return req, err
}

func (s *Store) ListOpenRequests(ctx context.Context) ([]oracle.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT airline_id, code, takeoff, shard_index, resolved, status, submissions, created_at, updated_at
		FROM surety_requests
		WHERE resolved = FALSE
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]oracle.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func scanRequest(row rowScanner) (oracle.Request, error) {
	var (
		req     oracle.Request
		status  int
		subsRaw []byte
	)
	err := row.Scan(&req.FlightKey.AirlineID, &req.FlightKey.Code, &req.FlightKey.Takeoff, &req.Index, &req.Resolved, &status, &subsRaw, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return oracle.Request{}, err
	}
	req.Status = flight.StatusCode(status)
	if len(subsRaw) > 0 {
		_ = json.Unmarshal(subsRaw, &req.Submissions)
	}
	return req, nil
}

func submissionsOrEmpty(subs []oracle.Submission) []oracle.Submission {
	if subs == nil {
		return []oracle.Submission{}
	}
	return subs
}
