package sensor

import (
	"fmt"

	"github.com/afroash/dht"

	"github.com/afroash/airmon/internal/models"
)

// DHTSensor defines the interface for reading from a DHT sensor.
type DHTSensor interface {
	// Read performs a single reading from the sensor.
	// Returns temperature (°C), humidity (%), and any error. A checksum or
	// timeout failure is reported as an error, never as zero values.
	Read() (temperature float64, humidity float64, err error)

	// Close cleans up GPIO resources
	Close() error
}

// DHT11Reader implements DHTSensor for DHT11 hardware.
type DHT11Reader struct {
	pin        int
	maxRetries int
	sensor     *dht.Sensor
}

// NewDHT11Reader creates a new DHT11 sensor reader on the given GPIO pin.
func NewDHT11Reader(pin int) (*DHT11Reader, error) {
	sensor, err := dht.NewDHT11(pin)
	if err != nil {
		return nil, fmt.Errorf("failed to open DHT11 on pin %d: %w", pin, err)
	}
	return &DHT11Reader{
		pin:        pin,
		maxRetries: 3,
		sensor:     sensor,
	}, nil
}

// Read performs a reading from the DHT11 sensor with retry logic.
func (d *DHT11Reader) Read() (float64, float64, error) {
	reading, err := d.sensor.ReadRetry(d.maxRetries)
	if err != nil {
		return 0, 0, fmt.Errorf("after %d retries, failed to read from sensor", d.maxRetries)
	}
	if err := validateDHT(reading.Temperature, reading.Humidity); err != nil {
		return 0, 0, fmt.Errorf("invalid reading: %w", err)
	}

	return reading.Temperature, reading.Humidity, nil
}

// Close cleans up GPIO resources.
func (d *DHT11Reader) Close() error {
	return d.sensor.Close()
}

// validateDHT checks that temperature and humidity values are physically
// plausible for the sensor.
func validateDHT(temp, humidity float64) error {
	if temp < models.MinTemperature || temp > models.MaxTemperature {
		return fmt.Errorf("temperature %.1f°C out of sensor range", temp)
	}
	if humidity < models.MinHumidity || humidity > models.MaxHumidity {
		return fmt.Errorf("humidity %.1f%% out of sensor range", humidity)
	}
	return nil
}
