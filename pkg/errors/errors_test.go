package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/ericogr/ina219-exporter/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessage(t *testing.T) {
	assert.Equal(t, "Sensor error", errors.New(errors.ErrSensor).Error())

	wrapped := errors.Wrap(errors.ErrHardwareInit, stderrors.New("no ack"))
	assert.Equal(t, "Sensor hardware initialization failed: no ack", wrapped.Error())

	data := errors.WithData(errors.ErrInvalidConfig, "read_try_count must be >= 1")
	assert.Equal(t, "Invalid configuration: read_try_count must be >= 1", data.Error())

	assert.Equal(t, "unknown_code", errors.Message("unknown_code"))
}

func TestAppErrorIsMatchesCode(t *testing.T) {
	cause := stderrors.New("bus closed")
	err := fmt.Errorf("open sensor: %w", errors.Wrap(errors.ErrHardwareInit, cause))

	assert.True(t, errors.Is(err, errors.New(errors.ErrHardwareInit)))
	assert.False(t, errors.Is(err, errors.New(errors.ErrSensor)))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, errors.ErrHardwareInit, errors.CodeOf(err))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(cause))
}
