// Package ledger defines the error taxonomy shared by every service. All
// validation failures surface as one of these sentinels, possibly wrapped
// with call context; callers discriminate with errors.Is.
package ledger

import "errors"

// Common errors
var (
	ErrNotOperational      = errors.New("ledger is not operational")
	ErrUnauthorized        = errors.New("caller is not the operator")
	ErrCallerNotEligible   = errors.New("caller is not a funded airline")
	ErrDuplicateVote       = errors.New("caller already voted for candidate")
	ErrDuplicateSubmission = errors.New("reporter already submitted for request")
	ErrDuplicateFlight     = errors.New("flight already registered")
	ErrDuplicatePolicy     = errors.New("passenger already holds an active policy for flight")
	ErrUnknownAirline      = errors.New("airline not found")
	ErrUnknownCandidate    = errors.New("candidate was never proposed")
	ErrUnknownFlight       = errors.New("flight not found")
	ErrUnknownRequest      = errors.New("oracle request not found")
	ErrUnknownReporter     = errors.New("reporter not registered")
	ErrInsufficientFunds   = errors.New("payment below required amount")
	ErrInsufficientBalance = errors.New("no withdrawable balance")
	ErrIndexMismatch       = errors.New("request index outside reporter's assigned indexes")
	ErrCapExceeded         = errors.New("insurance amount exceeds cap")
	ErrFlightFinalized     = errors.New("flight status already finalized")
)
