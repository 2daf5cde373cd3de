package flight

import (
	"fmt"
	"time"
)

// StatusCode mirrors the on-the-wire flight status codes reported by
// oracles. Anything at or above StatusLateAirline counts as delayed.
type StatusCode int

const (
	StatusUnknown       StatusCode = 0
	StatusOnTime        StatusCode = 10
	StatusLateAirline   StatusCode = 20
	StatusLateWeather   StatusCode = 30
	StatusLateTechnical StatusCode = 40
	StatusLateOther     StatusCode = 50
)

// Delayed reports whether a resolved status entitles passengers to a payout.
func (c StatusCode) Delayed() bool {
	return c >= StatusLateAirline
}

// Landed reports whether the flight arrived without a compensable delay.
func (c StatusCode) Landed() bool {
	return c == StatusOnTime
}

// Key uniquely identifies a flight: the operating airline, the flight code
// and the scheduled takeoff time.
type Key struct {
	AirlineID string `json:"airline_id"`
	Code      string `json:"code"`
	Takeoff   int64  `json:"takeoff"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.AirlineID, k.Code, k.Takeoff)
}

// Flight is an insurable scheduled flight.
type Flight struct {
	Key       Key        `json:"key"`
	Landing   int64      `json:"landing"`
	Price     int64      `json:"price"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Status    StatusCode `json:"status"`
	Finalized bool       `json:"finalized"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Scheduled reports whether the flight is still open for booking.
func (f Flight) Scheduled() bool {
	return !f.Finalized
}
