package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	app "github.com/skysurety/service_layer/internal/app"
	"github.com/skysurety/service_layer/internal/app/domain/flight"
	"github.com/skysurety/service_layer/internal/app/events"
	"github.com/skysurety/service_layer/internal/config"
)

func TestStatusStream_DeliversResolutions(t *testing.T) {
	application, err := app.New(app.Stores{}, config.Default().Surety, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}
	server := httptest.NewServer(NewHandler(application))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/flights/status-stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server side a moment to register its bus subscription.
	time.Sleep(100 * time.Millisecond)

	key := flight.Key{AirlineID: "airline-1", Code: "SS-100", Takeoff: 1000}
	application.Events.Publish(events.FlightStatus{
		Flight:     key,
		Status:     flight.StatusLateAirline,
		Delayed:    true,
		ResolvedAt: time.Now().UTC(),
	})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var evt events.FlightStatus
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if evt.Flight != key || !evt.Delayed {
		t.Fatalf("unexpected event: %+v", evt)
	}
}
