package models

import (
	"fmt"
	"time"
)

// Gas sensor ADC range. The MQ-2 analog channel is read through a 10-bit
// converter, so raw counts are always 0-1023.
const (
	GasRawMin = 0
	GasRawMax = 1023
)

// Sanity bounds for the DHT sensor. Values outside these ranges indicate a
// wiring or checksum problem, not weather.
const (
	MinTemperature = -40.0
	MaxTemperature = 85.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
)

// Reading is one sampled snapshot of all sensor values at a point in device
// time. Temperature and Humidity are nil when the DHT read failed; a stale
// zero would be indistinguishable from a real measurement, so faults stay
// explicit. GasRaw is always present.
type Reading struct {
	DeviceID    string    `json:"device_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	GasRaw      int       `json:"gas_raw"`
	GasDigital  bool      `json:"gas_digital"`
}

// NewReading creates a Reading stamped with the current time.
func NewReading(deviceID string, temperature, humidity *float64, gasRaw int, gasDigital bool) *Reading {
	return &Reading{
		DeviceID:    deviceID,
		Timestamp:   time.Now(),
		Temperature: temperature,
		Humidity:    humidity,
		GasRaw:      gasRaw,
		GasDigital:  gasDigital,
	}
}

// Validate checks that all present values are within physical sensor ranges.
// Nil temperature/humidity are valid (sensor fault), an out-of-range gas
// count is not.
func (r *Reading) Validate() error {
	if r.GasRaw < GasRawMin || r.GasRaw > GasRawMax {
		return fmt.Errorf("gas_raw %d out of range [%d,%d]", r.GasRaw, GasRawMin, GasRawMax)
	}
	if r.Temperature != nil && (*r.Temperature < MinTemperature || *r.Temperature > MaxTemperature) {
		return fmt.Errorf("temperature %.1f out of range [%.0f,%.0f]", *r.Temperature, MinTemperature, MaxTemperature)
	}
	if r.Humidity != nil && (*r.Humidity < MinHumidity || *r.Humidity > MaxHumidity) {
		return fmt.Errorf("humidity %.1f out of range [%.0f,%.0f]", *r.Humidity, MinHumidity, MaxHumidity)
	}
	return nil
}

// String renders the reading for logs and the status display. Faulted fields
// show as dashes rather than zeros.
func (r *Reading) String() string {
	temp, hum := "--.-", "--.-"
	if r.Temperature != nil {
		temp = fmt.Sprintf("%.1f", *r.Temperature)
	}
	if r.Humidity != nil {
		hum = fmt.Sprintf("%.1f", *r.Humidity)
	}
	alarm := ""
	if r.GasDigital {
		alarm = " ALARM"
	}
	return fmt.Sprintf("T=%s°C H=%s%% gas=%d%s", temp, hum, r.GasRaw, alarm)
}

// Copy returns a deep copy of the Reading.
func (r *Reading) Copy() *Reading {
	if r == nil {
		return nil
	}
	c := *r
	if r.Temperature != nil {
		v := *r.Temperature
		c.Temperature = &v
	}
	if r.Humidity != nil {
		v := *r.Humidity
		c.Humidity = &v
	}
	return &c
}

// StoredReading is a Reading after durable ingestion: the server assigns a
// row id, strictly increasing within a store epoch, and a receipt timestamp.
type StoredReading struct {
	RowID      int64     `json:"row_id"`
	ReceivedAt time.Time `json:"received_at"`
	Reading
}

// Float64 returns a pointer to v, for building nullable reading fields.
func Float64(v float64) *float64 {
	return &v
}
