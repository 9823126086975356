package sensor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/airmon/internal/models"
)

// Sampler composes the individual sensors into one Reading per tick and
// exposes the latest one. Faults are isolated per sensor: a failed DHT read
// nulls out only temperature/humidity, gas counts are carried in the same
// reading regardless.
type Sampler struct {
	dht       DHTSensor
	gas       GasSensor
	deviceID  string
	logger    zerolog.Logger
	startedAt time.Time

	mutex      sync.RWMutex
	latest     *models.Reading
	lastGasRaw int
}

// NewSampler creates a sampler for the given device id.
func NewSampler(dht DHTSensor, gas GasSensor, deviceID string, logger zerolog.Logger) *Sampler {
	return &Sampler{
		dht:       dht,
		gas:       gas,
		deviceID:  deviceID,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Sample performs one reading of all sensors, records it as the latest and
// returns it. Sensor faults never fail the sample; they show up as nil
// fields in the reading.
func (s *Sampler) Sample() *models.Reading {
	var temperature, humidity *float64

	temp, hum, err := s.dht.Read()
	if err != nil {
		// Explicit invalid beats a stale zero: leave the fields nil.
		s.logger.Warn().Err(err).Msg("DHT read failed, marking temperature/humidity invalid")
	} else {
		temperature = &temp
		humidity = &hum
	}

	raw, alarm, err := s.gas.Read()
	if err != nil {
		// The gas channel has no invalid representation downstream; hold
		// the last known count so the field stays present.
		s.mutex.RLock()
		raw = s.lastGasRaw
		s.mutex.RUnlock()
		s.logger.Warn().Err(err).Int("held_raw", raw).Msg("Gas read failed, holding last value")
	}

	reading := models.NewReading(s.deviceID, temperature, humidity, raw, alarm)

	s.mutex.Lock()
	s.latest = reading
	s.lastGasRaw = raw
	s.mutex.Unlock()

	s.logger.Debug().Msgf("sampled: %s", reading.String())
	return reading
}

// Latest returns a copy of the most recent reading, or nil before the first
// sample.
func (s *Sampler) Latest() *models.Reading {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.latest.Copy()
}

// Uptime returns the elapsed time since the sampler was created. Gas
// readings taken shortly after power-on fall inside the MQ-2 warm-up window
// and should be treated as low-confidence.
func (s *Sampler) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// Close releases sensor resources.
func (s *Sampler) Close() error {
	gasErr := s.gas.Close()
	if err := s.dht.Close(); err != nil {
		return err
	}
	return gasErr
}
