package errors

// Common error codes
const (
	// Sensor errors
	ErrTransientRead    ErrorCode = "transient_read_fault"
	ErrChannelExhausted ErrorCode = "channel_exhausted"
	ErrSensor           ErrorCode = "sensor_error"
	ErrHardwareInit     ErrorCode = "hardware_init_failed"

	// Configuration errors
	ErrInvalidConfig ErrorCode = "invalid_configuration"
	ErrReadConfig    ErrorCode = "read_config_failed"

	// Output errors
	ErrOutput ErrorCode = "output_failed"
)

var errorMessages = map[ErrorCode]string{
	ErrTransientRead:    "Sensor returned an invalid reading",
	ErrChannelExhausted: "Sensor channel retry budget exhausted",
	ErrSensor:           "Sensor error",
	ErrHardwareInit:     "Sensor hardware initialization failed",
	ErrInvalidConfig:    "Invalid configuration",
	ErrReadConfig:       "Failed to read configuration",
	ErrOutput:           "Output failed",
}

// Message returns the message for a given error code
func Message(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
