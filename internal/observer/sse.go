package observer

import (
	"encoding/json"
	"net/http"

	"github.com/tmaxmax/go-sse"

	"droneSurveyManagement/internal/broadcast"
)

// FleetFeed streams fleet-wide events to SSE clients. It registers with
// the broadcast registry as a single sink.
type FleetFeed struct {
	server *sse.Server
}

func NewFleetFeed() *FleetFeed {
	return &FleetFeed{server: sse.NewServer()}
}

func (f *FleetFeed) ID() string { return "sse:fleet" }

// Send publishes ev to every connected SSE client.
func (f *FleetFeed) Send(ev broadcast.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	e := &sse.Message{}
	e.AppendData(b)
	f.server.Publish(e)
	return nil
}

func (f *FleetFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.server.ServeHTTP(w, r)
}
