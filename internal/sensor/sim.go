package sensor

import (
	"math/rand"
	"sync"
)

// SimulatedDHT is a DHTSensor for development machines without the hardware.
// Values random-walk around room conditions; an optional failure rate
// exercises the fault path.
type SimulatedDHT struct {
	FailureRate float64 // 0..1 probability a read reports a fault

	mutex       sync.Mutex
	temperature float64
	humidity    float64
	initialized bool
}

// Read returns the next simulated values.
func (s *SimulatedDHT) Read() (float64, float64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.initialized {
		s.temperature = 22.0
		s.humidity = 50.0
		s.initialized = true
	}

	if s.FailureRate > 0 && rand.Float64() < s.FailureRate {
		return 0, 0, errSimulatedFault
	}

	s.temperature = clamp(s.temperature+rand.Float64()-0.5, 15, 35)
	s.humidity = clamp(s.humidity+2*(rand.Float64()-0.5), 20, 90)
	return s.temperature, s.humidity, nil
}

// Close is a no-op.
func (s *SimulatedDHT) Close() error { return nil }

// SimulatedGas is a GasSensor that random-walks ADC counts around clean-air
// levels.
type SimulatedGas struct {
	mutex       sync.Mutex
	raw         int
	initialized bool
}

// Read returns the next simulated value. The alarm trips above 600 counts.
func (s *SimulatedGas) Read() (int, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.initialized {
		s.raw = 180
		s.initialized = true
	}

	s.raw += rand.Intn(21) - 10
	if s.raw < 0 {
		s.raw = 0
	}
	if s.raw > 1023 {
		s.raw = 1023
	}
	return s.raw, s.raw > 600, nil
}

// Close is a no-op.
func (s *SimulatedGas) Close() error { return nil }

type simulatedFault struct{}

func (simulatedFault) Error() string { return "simulated sensor fault" }

var errSimulatedFault = simulatedFault{}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
