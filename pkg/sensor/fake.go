package sensor

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ericogr/ina219-exporter/pkg/config"
)

const (
	fakeNominalVoltage = 7.4   // V, two-cell pack
	fakeNominalCurrent = 120.0 // mA
)

// FakeSensor simulates a battery under a light load. With a fault rate set,
// readings randomly come back as NaN the way a flaky bus does.
type FakeSensor struct {
	mu        sync.Mutex
	rng       *rand.Rand
	faultRate float64
}

func NewFakeSensor(cfg config.Config) (Sensor, error) {
	return newFakeSensor(rand.New(rand.NewSource(time.Now().UnixNano())), cfg.FaultRate), nil
}

func newFakeSensor(rng *rand.Rand, faultRate float64) *FakeSensor {
	return &FakeSensor{rng: rng, faultRate: faultRate}
}

func (f *FakeSensor) BusVoltage() (float64, error) {
	return f.sample(fakeNominalVoltage, 0.05), nil
}

func (f *FakeSensor) Current() (float64, error) {
	return f.sample(fakeNominalCurrent, 15), nil
}

func (f *FakeSensor) sample(nominal, spread float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.faultRate > 0 && f.rng.Float64() < f.faultRate {
		return math.NaN()
	}
	return nominal + (f.rng.Float64()*2-1)*spread
}

func (f *FakeSensor) Close() error { return nil }
