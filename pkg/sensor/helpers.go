package sensor

import (
	"fmt"

	"github.com/ericogr/ina219-exporter/pkg/config"
	"periph.io/x/conn/v3/physic"
)

// Calibration is one INA219 programming preset: the calibration register
// value, the configuration register value and the resulting current LSB.
type Calibration struct {
	Name       string
	Value      uint16
	Config     uint16
	CurrentLSB physic.ElectricCurrent
}

// Configuration register fields.
const (
	busRange32V    = 0x2000
	gain8_320mV    = 0x1800
	gain1_40mV     = 0x0000
	busADC12Bit    = 0x0180
	shuntADC12Bit  = 0x0018
	modeContinuous = 0x0007
)

// Presets for a 0.1Ω shunt.
var calibrations = map[string]Calibration{
	config.Calibration32V2A: {
		Name:       config.Calibration32V2A,
		Value:      4096,
		Config:     busRange32V | gain8_320mV | busADC12Bit | shuntADC12Bit | modeContinuous,
		CurrentLSB: 100 * physic.MicroAmpere,
	},
	config.Calibration32V1A: {
		Name:       config.Calibration32V1A,
		Value:      10240,
		Config:     busRange32V | gain8_320mV | busADC12Bit | shuntADC12Bit | modeContinuous,
		CurrentLSB: 40 * physic.MicroAmpere,
	},
	config.Calibration16V400mA: {
		Name:       config.Calibration16V400mA,
		Value:      8192,
		Config:     gain1_40mV | busADC12Bit | shuntADC12Bit | modeContinuous,
		CurrentLSB: 50 * physic.MicroAmpere,
	},
}

// CalibrationByName looks up a preset by its configured name.
func CalibrationByName(name string) (Calibration, error) {
	c, ok := calibrations[name]
	if !ok {
		return Calibration{}, fmt.Errorf("unknown calibration %q", name)
	}
	return c, nil
}

func milliAmps(c physic.ElectricCurrent) float64 {
	return float64(c) / float64(physic.MilliAmpere)
}

func volts(v physic.ElectricPotential) float64 {
	return float64(v) / float64(physic.Volt)
}
