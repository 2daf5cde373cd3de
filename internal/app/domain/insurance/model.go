package insurance

import (
	"time"

	"github.com/skysurety/service_layer/internal/app/domain/flight"
)

// PolicyState tracks a policy from purchase to settlement.
type PolicyState string

const (
	PolicyActive  PolicyState = "active"
	PolicyPaid    PolicyState = "paid"
	PolicyExpired PolicyState = "expired"
)

// Policy is a passenger's insurance claim against a flight's delay outcome.
type Policy struct {
	ID            string      `json:"id"`
	PassengerID   string      `json:"passenger_id"`
	FlightKey     flight.Key  `json:"flight_key"`
	Premium       int64       `json:"premium"`
	InsuredAmount int64       `json:"insured_amount"`
	State         PolicyState `json:"state"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TransferStatus tracks a withdrawal through external settlement.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// Transfer is a withdrawal of accumulated payout credit, settled
// asynchronously against the external transport.
type Transfer struct {
	ID          string         `json:"id"`
	PassengerID string         `json:"passenger_id"`
	Amount      int64          `json:"amount"`
	Status      TransferStatus `json:"status"`
	Message     string         `json:"message,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
