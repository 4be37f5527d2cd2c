package sampler

// ReadFunc performs one read of a scalar source. A non-finite value or a
// non-nil error marks the attempt invalid.
type ReadFunc func() (float64, error)

// Channel describes one independently read telemetry source. Adding a
// channel is a data change: the retry loop and the renderer iterate the
// table uniformly.
type Channel struct {
	Name   string // short id used in logs, e.g. "voltage"
	Metric string // metric suffix after the namespace
	Help   string
	Unit   string
	Read   ReadFunc
}

// PowerMonitor is the sensor-access capability the power channels need.
type PowerMonitor interface {
	BusVoltage() (float64, error)
	Current() (float64, error)
}

// PowerChannels returns the voltage and current channels backed by pm, in
// exposition order.
func PowerChannels(pm PowerMonitor) []Channel {
	return []Channel{
		{
			Name:   "voltage",
			Metric: "battery_voltage",
			Help:   "Battery Voltage.",
			Unit:   "V",
			Read:   pm.BusVoltage,
		},
		{
			Name:   "current",
			Metric: "battery_current",
			Help:   "Battery Current.",
			Unit:   "mA",
			Read:   pm.Current,
		},
	}
}
