// Package httpapi exposes the request/response boundary of the surety
// ledger: every operation takes a caller identity from the X-Caller header
// and returns success or a tagged failure.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	app "github.com/skysurety/service_layer/internal/app"
	"github.com/skysurety/service_layer/internal/app/domain/flight"
	"github.com/skysurety/service_layer/internal/app/domain/ledger"
	"github.com/skysurety/service_layer/internal/app/metrics"
)

const callerHeader = "X-Caller"

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/operational", h.operational)
	mux.HandleFunc("/airlines", h.airlines)
	mux.HandleFunc("/airlines/", h.airlineResources)
	mux.HandleFunc("/flights", h.flights)
	mux.HandleFunc("/flights/status-request", h.statusRequest)
	mux.HandleFunc("/flights/status-stream", h.statusStream)
	mux.HandleFunc("/bookings", h.bookings)
	mux.HandleFunc("/policies", h.policies)
	mux.HandleFunc("/credits", h.credits)
	mux.HandleFunc("/withdrawals", h.withdrawals)
	mux.HandleFunc("/oracle/reporters", h.oracleReporters)
	mux.HandleFunc("/oracle/responses", h.oracleResponses)
	mux.HandleFunc("/oracle/requests", h.oracleRequests)
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())
	return metrics.InstrumentHandler(mux)
}

func (h *handler) operational(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]bool{"operational": h.app.Operations.IsOperational()})

	case http.MethodPut:
		var payload struct {
			Operational bool `json:"operational"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.app.Operations.SetOperational(caller(r), payload.Operational); err != nil {
			writeTaggedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"operational": payload.Operational})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) airlines(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			CandidateID string `json:"candidate_id"`
			Name        string `json:"name"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := h.app.Governance.ProposeAirline(r.Context(), caller(r), payload.CandidateID, payload.Name)
		if err != nil {
			writeTaggedError(w, err)
			return
		}
		status := "pending"
		if result.Registered {
			status = "registered"
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"candidate_id": result.Airline.ID,
			"status":       status,
			"votes_left":   result.VotesLeft,
		})

	case http.MethodGet:
		airlines, err := h.app.Governance.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, airlines)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) airlineResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/airlines"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if parts[0] == "count" && len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		count, err := h.app.Governance.RegisteredCount(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": count})
		return
	}

	airlineID := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		registered, err := h.app.Governance.IsRegistered(r.Context(), airlineID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		response := map[string]any{"airline_id": airlineID, "registered": registered}
		if a, err := h.app.Governance.Get(r.Context(), airlineID); err == nil {
			response["state"] = a.State
			response["bond"] = a.BondBalance
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	switch parts[1] {
	case "votes-left":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		left, err := h.app.Governance.VotesLeft(r.Context(), airlineID)
		if err != nil {
			writeTaggedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"votes_left": left})

	case "fund":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if caller(r) != airlineID {
			writeError(w, http.StatusForbidden, fmt.Errorf("airlines fund their own bond"))
			return
		}
		var payload struct {
			Amount int64 `json:"amount"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a, err := h.app.Funding.Fund(r.Context(), airlineID, payload.Amount)
		if err != nil {
			writeTaggedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"airline_id": a.ID,
			"state":      a.State,
			"bond":       a.BondBalance,
		})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) flights(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Takeoff int64  `json:"takeoff"`
			Landing int64  `json:"landing"`
			Code    string `json:"code"`
			Price   int64  `json:"price"`
			From    string `json:"from"`
			To      string `json:"to"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		f, err := h.app.Registry.RegisterFlight(r.Context(), caller(r), payload.Takeoff, payload.Landing, payload.Code, payload.Price, payload.From, payload.To)
		if err != nil {
			writeTaggedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)

	case http.MethodGet:
		flights, err := h.app.Registry.ListFlights(r.Context(), r.URL.Query().Get("airline"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, flights)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) statusRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		AirlineID string `json:"airline_id"`
		Code      string `json:"code"`
		Takeoff   int64  `json:"takeoff"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	key := flight.Key{AirlineID: payload.AirlineID, Code: payload.Code, Takeoff: payload.Takeoff}
	req, err := h.app.Oracle.FetchFlightStatus(r.Context(), key)
	if err != nil {
		writeTaggedError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func (h *handler) bookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		AirlineID     string `json:"airline_id"`
		Code          string `json:"code"`
		Takeoff       int64  `json:"takeoff"`
		InsuredAmount int64  `json:"insured_amount"`
		Payment       int64  `json:"payment"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	key := flight.Key{AirlineID: payload.AirlineID, Code: payload.Code, Takeoff: payload.Takeoff}
	policy, err := h.app.Registry.Book(r.Context(), caller(r), key, payload.InsuredAmount, payload.Payment)
	if err != nil {
		writeTaggedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, policy)
}

func (h *handler) policies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	policies, err := h.app.Registry.ListPassengerPolicies(r.Context(), caller(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h *handler) credits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	balance, err := h.app.Funding.CreditBalance(r.Context(), caller(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (h *handler) withdrawals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	transfer, err := h.app.Funding.Withdraw(r.Context(), caller(r))
	if err != nil {
		writeTaggedError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, transfer)
}

func (h *handler) oracleReporters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	reporter, err := h.app.Oracle.RegisterReporter(r.Context(), caller(r))
	if err != nil {
		writeTaggedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reporter)
}

func (h *handler) oracleResponses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		AirlineID string `json:"airline_id"`
		Code      string `json:"code"`
		Takeoff   int64  `json:"takeoff"`
		Status    int    `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	key := flight.Key{AirlineID: payload.AirlineID, Code: payload.Code, Takeoff: payload.Takeoff}
	req, err := h.app.Oracle.SubmitResponse(r.Context(), caller(r), key, flight.StatusCode(payload.Status))
	if err != nil {
		writeTaggedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) oracleRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	if q.Get("airline") == "" {
		open, err := h.app.Oracle.ListOpenRequests(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, open)
		return
	}
	takeoff, err := strconv.ParseInt(q.Get("takeoff"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid takeoff: %w", err))
		return
	}
	key := flight.Key{AirlineID: q.Get("airline"), Code: q.Get("code"), Takeoff: takeoff}
	req, err := h.app.Oracle.GetRequest(r.Context(), key)
	if err != nil {
		writeTaggedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers ---------------------------------------------------------------------

func caller(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(callerHeader))
}

func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeTaggedError maps the error taxonomy onto HTTP status codes.
func writeTaggedError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, ledger.ErrNotOperational):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrUnauthorized),
		errors.Is(err, ledger.ErrCallerNotEligible):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrUnknownAirline),
		errors.Is(err, ledger.ErrUnknownCandidate),
		errors.Is(err, ledger.ErrUnknownFlight),
		errors.Is(err, ledger.ErrUnknownRequest),
		errors.Is(err, ledger.ErrUnknownReporter):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicateVote),
		errors.Is(err, ledger.ErrDuplicateSubmission),
		errors.Is(err, ledger.ErrDuplicateFlight),
		errors.Is(err, ledger.ErrDuplicatePolicy),
		errors.Is(err, ledger.ErrFlightFinalized),
		errors.Is(err, ledger.ErrIndexMismatch):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrCapExceeded):
		status = http.StatusUnprocessableEntity
	}
	writeError(w, status, err)
}
