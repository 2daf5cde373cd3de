package airline

import "time"

// State tracks an airline through the admission pipeline. Transitions only
// move forward: Proposed -> Registered -> Funded.
type State string

const (
	StateProposed   State = "proposed"
	StateRegistered State = "registered"
	StateFunded     State = "funded"
)

// Airline represents a participant in the surety network.
type Airline struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	State       State  `json:"state"`
	BondBalance int64  `json:"bond_balance"`
	// Votes holds the identities of funded airlines that approved this
	// candidate while it was in the proposed state. Membership is checked
	// before insertion so the same voter never counts twice.
	Votes     map[string]bool `json:"votes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HasVote reports whether the voter already approved this candidate.
func (a Airline) HasVote(voter string) bool {
	return a.Votes[voter]
}

// VoteCount returns the number of distinct approvals received.
func (a Airline) VoteCount() int {
	return len(a.Votes)
}

// CanParticipate reports whether the airline may vote or register others.
func (a Airline) CanParticipate() bool {
	return a.State == StateFunded
}
