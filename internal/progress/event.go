// File: internal/progress/event.go
// Brief: Wire shapes pushed by the deployment backend over the progress stream.

package progress

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventStatus enumerates the status values the backend emits per frame.
type EventStatus string

const (
	StatusInProgress EventStatus = "in_progress"
	StatusSuccess    EventStatus = "success"
	StatusDeployed   EventStatus = "deployed"
)

// DeployedInfoStep is the step identifier carried by the terminal frame.
const DeployedInfoStep = "deployed_info"

// Event is one frame of the deployment progress stream.
type Event struct {
	Status      EventStatus          `json:"status"`
	Step        string               `json:"step"`
	AppDeployed *DeployedApplication `json:"app_deployed,omitempty"`
}

// DeployedApplication is the application record handed back once a deployment finishes.
type DeployedApplication struct {
	ContainerID string `json:"container_id" yaml:"container_id"`
	AppName     string `json:"app_name" yaml:"app_name"`
	AppType     string `json:"app_type" yaml:"app_type"`
	Domain      string `json:"domain" yaml:"domain"`
	GitHubURL   string `json:"github_url" yaml:"github_url"`
	Status      string `json:"status" yaml:"status"`
	CreatedAt   string `json:"created_at" yaml:"created_at"`
}

// Running reports whether the backend considers the application healthy.
func (a DeployedApplication) Running() bool {
	return strings.EqualFold(strings.TrimSpace(a.Status), "running")
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// CreatedTime parses CreatedAt using the layouts the backend is known to emit.
func (a DeployedApplication) CreatedTime() (time.Time, bool) {
	raw := strings.TrimSpace(a.CreatedAt)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range createdAtLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// DecodeEvent parses a single stream frame.
func DecodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev.Status = EventStatus(strings.ToLower(strings.TrimSpace(string(ev.Status))))
	ev.Step = strings.TrimSpace(ev.Step)
	return ev, nil
}
