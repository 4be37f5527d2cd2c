package sensor

// Sensor is a power monitor chip that reports bus voltage and current.
// A reading that is not a finite number, or a non-nil error, is an invalid
// reading the caller may retry.
type Sensor interface {
	// BusVoltage returns the bus voltage in volts.
	BusVoltage() (float64, error)
	// Current returns the current draw in milliamps.
	Current() (float64, error)
	Close() error
}
