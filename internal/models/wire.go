package models

import (
	"fmt"
	"time"
)

// IngestPayload is the JSON body the device posts to the ingestion endpoint.
// GasRaw and GasDigital are pointers so a missing field can be told apart
// from a zero value; temperature and humidity are nullable by contract.
type IngestPayload struct {
	DeviceID    string     `json:"device_id,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Temperature *float64   `json:"temperature"`
	Humidity    *float64   `json:"humidity"`
	GasRaw      *int       `json:"gas_raw"`
	GasDigital  *bool      `json:"gas_digital"`
	UptimeS     int64      `json:"uptime_s,omitempty"`
}

// NewIngestPayload builds the wire form of a reading. uptime lets the server
// side see how long the device has been up, since gas readings taken during
// the sensor warm-up are low-confidence.
func NewIngestPayload(r *Reading, uptime time.Duration) *IngestPayload {
	p := &IngestPayload{
		DeviceID:    r.DeviceID,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		GasRaw:      &r.GasRaw,
		GasDigital:  &r.GasDigital,
		UptimeS:     int64(uptime.Seconds()),
	}
	if !r.Timestamp.IsZero() {
		ts := r.Timestamp
		p.Timestamp = &ts
	}
	return p
}

// Validate rejects payloads with missing required fields or out-of-range
// values. A payload that fails here must never reach the store.
func (p *IngestPayload) Validate() error {
	if p.GasRaw == nil {
		return fmt.Errorf("missing required field gas_raw")
	}
	if p.GasDigital == nil {
		return fmt.Errorf("missing required field gas_digital")
	}
	r := p.toReading(time.Now())
	return r.Validate()
}

// ToReading converts a validated payload into a Reading. When the device did
// not send a timestamp the server's receipt time is used instead.
func (p *IngestPayload) ToReading(receivedAt time.Time) *Reading {
	return p.toReading(receivedAt)
}

func (p *IngestPayload) toReading(receivedAt time.Time) *Reading {
	r := &Reading{
		DeviceID:    p.DeviceID,
		Timestamp:   receivedAt,
		Temperature: p.Temperature,
		Humidity:    p.Humidity,
	}
	if p.Timestamp != nil && !p.Timestamp.IsZero() {
		r.Timestamp = *p.Timestamp
	}
	if p.GasRaw != nil {
		r.GasRaw = *p.GasRaw
	}
	if p.GasDigital != nil {
		r.GasDigital = *p.GasDigital
	}
	return r
}

// IngestResponse is returned on a successful append.
type IngestResponse struct {
	RowID int64 `json:"row_id"`
}

// ErrorResponse carries a machine-readable rejection reason.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// TruncateResponse reports how many rows an administrative truncation
// removed. Zero is a valid result.
type TruncateResponse struct {
	Deleted int64 `json:"deleted"`
}
