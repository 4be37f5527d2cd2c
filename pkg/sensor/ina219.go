package sensor

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ericogr/ina219-exporter/pkg/config"
	"github.com/ericogr/ina219-exporter/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	regConfig      = 0x00
	regBusVoltage  = 0x02
	regCurrent     = 0x04
	regCalibration = 0x05

	busVoltageLSB = 4 * physic.MilliVolt
)

type INA219Sensor struct {
	mu  sync.Mutex
	dev *i2c.Dev
	bus i2c.BusCloser
	cal Calibration
}

// NewINA219Sensor opens the configured I²C bus and programs the chip. Any
// failure here is a hardware init failure.
func NewINA219Sensor(cfg config.Config) (Sensor, error) {
	cal, err := CalibrationByName(cfg.Calibration)
	if err != nil {
		return nil, errors.Wrap(errors.ErrHardwareInit, err)
	}
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(errors.ErrHardwareInit, fmt.Errorf("host init: %w", err))
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, errors.Wrap(errors.ErrHardwareInit, fmt.Errorf("open i2c: %w", err))
	}
	s, err := newINA219Sensor(bus, uint16(cfg.I2CAddress), cal)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	return s, nil
}

func newINA219Sensor(bus i2c.BusCloser, addr uint16, cal Calibration) (*INA219Sensor, error) {
	s := &INA219Sensor{dev: &i2c.Dev{Addr: addr, Bus: bus}, bus: bus, cal: cal}

	if err := s.writeRegister(regCalibration, cal.Value); err != nil {
		return nil, errors.Wrap(errors.ErrHardwareInit, fmt.Errorf("write calibration: %w", err))
	}
	if err := s.writeRegister(regConfig, cal.Config); err != nil {
		return nil, errors.Wrap(errors.ErrHardwareInit, fmt.Errorf("write config: %w", err))
	}
	got, err := s.readRegister(regConfig)
	if err != nil {
		return nil, errors.Wrap(errors.ErrHardwareInit, fmt.Errorf("read config: %w", err))
	}
	if got != cal.Config {
		return nil, errors.Wrap(errors.ErrHardwareInit,
			fmt.Errorf("config readback 0x%04X, want 0x%04X: no INA219 at 0x%02X?", got, cal.Config, addr))
	}
	return s, nil
}

func (s *INA219Sensor) String() string {
	return fmt.Sprintf("ina219(%s)", s.dev)
}

func (s *INA219Sensor) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *INA219Sensor) BusVoltage() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.readRegister(regBusVoltage)
	if err != nil {
		return 0, fmt.Errorf("read bus voltage: %w", err)
	}
	// bits 15..3 hold the reading, bit 1 is CNVR, bit 0 is OVF
	v := physic.ElectricPotential(raw>>3) * busVoltageLSB
	return volts(v), nil
}

func (s *INA219Sensor) Current() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// the calibration register is lost on a brown-out; rewrite it so the
	// current register is scaled
	if err := s.writeRegister(regCalibration, s.cal.Value); err != nil {
		return 0, fmt.Errorf("write calibration: %w", err)
	}
	raw, err := s.readRegister(regCurrent)
	if err != nil {
		return 0, fmt.Errorf("read current: %w", err)
	}
	c := physic.ElectricCurrent(int16(raw)) * s.cal.CurrentLSB
	return milliAmps(c), nil
}

func (s *INA219Sensor) writeRegister(reg byte, value uint16) error {
	buf := []byte{reg, 0, 0}
	binary.BigEndian.PutUint16(buf[1:], value)
	return s.dev.Tx(buf, nil)
}

func (s *INA219Sensor) readRegister(reg byte) (uint16, error) {
	readBuf := make([]byte, 2)
	if err := s.dev.Tx([]byte{reg}, readBuf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(readBuf), nil
}
