package output

import (
	"time"

	"github.com/ericogr/ina219-exporter/pkg/exposition"
)

type State string

const (
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// Status announces where the exporter can be scraped. Outputs never carry
// sensor readings; those are pulled from the metrics endpoint.
type Status struct {
	State      State     `json:"state"`
	Namespace  string    `json:"namespace"`
	Version    string    `json:"version"`
	Board      string    `json:"board"`
	Sensor     string    `json:"sensor"`
	MetricsURL string    `json:"metrics_url"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewStatus(state State, id exposition.Identity, metricsURL string, ts time.Time) Status {
	return Status{
		State:      state,
		Namespace:  id.Namespace,
		Version:    id.Version,
		Board:      id.Board,
		Sensor:     id.Sensor,
		MetricsURL: metricsURL,
		Timestamp:  ts,
	}
}

type Output interface {
	Publish(Status) error
	Close() error
}

// helper constructors are in subpackages
