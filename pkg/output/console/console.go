package console

import (
	"fmt"
	"time"

	"github.com/ericogr/ina219-exporter/pkg/output"
	"github.com/ericogr/ina219-exporter/pkg/sampler"
)

type ConsoleOutput struct{}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(s output.Status) error {
	fmt.Printf("%s state=%s sensor=%s board=%s version=%s metrics=%s\n",
		s.Timestamp.Format(time.RFC3339), s.State, s.Sensor, s.Board, s.Version, s.MetricsURL)
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }

// PrintSampleSet writes one line per reading, used by --probe.
func PrintSampleSet(set sampler.SampleSet) {
	for _, r := range set.Readings {
		fmt.Printf("%s channel=%s value=%.6f unit=%s\n", set.Timestamp.Format(time.RFC3339), r.Name, r.Value, r.Unit)
	}
}
