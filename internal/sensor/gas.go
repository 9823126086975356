package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// GasSensor defines the interface for reading from an MQ-series gas sensor.
// The sensor has no checksum-style failure mode: it always yields raw ADC
// counts. Readings taken during the post-power-on warm-up (roughly the first
// minute for an MQ-2) are semantically unreliable; consumers should discount
// them based on elapsed uptime rather than expect suppression here.
type GasSensor interface {
	// Read returns the analog concentration value in ADC counts (0-1023)
	// and the state of the digital threshold alarm line.
	Read() (raw int, alarm bool, err error)

	Close() error
}

// ADC is a source of raw analog counts for the MQ-2 analog channel.
type ADC interface {
	Read() (int, error)
}

// IIOADC reads ADC counts from a Linux IIO sysfs voltage channel, e.g.
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw for an MCP3008 channel.
type IIOADC struct {
	Path string
}

// Read returns the current raw ADC value.
func (a *IIOADC) Read() (int, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to read ADC channel: %w", err)
	}
	raw, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse ADC value %q: %w", strings.TrimSpace(string(data)), err)
	}
	return raw, nil
}

// MQ2Sensor implements GasSensor for MQ-2 hardware: the analog channel comes
// through an ADC, the digital alarm output is a GPIO line whose threshold is
// set by the module's onboard potentiometer.
type MQ2Sensor struct {
	adc       ADC
	alarmLine *gpiocdev.Line
}

// NewMQ2Sensor requests the digital alarm line on the given chip and pin and
// pairs it with the analog source.
func NewMQ2Sensor(chip string, alarmPin int, adc ADC) (*MQ2Sensor, error) {
	line, err := gpiocdev.RequestLine(chip, alarmPin, gpiocdev.AsInput)
	if err != nil {
		return nil, fmt.Errorf("failed to request gas alarm line %s:%d: %w", chip, alarmPin, err)
	}
	return &MQ2Sensor{
		adc:       adc,
		alarmLine: line,
	}, nil
}

// Read returns the analog counts and alarm state. The MQ-2 digital output is
// active-low: the line reads 0 while gas exceeds the threshold.
func (m *MQ2Sensor) Read() (int, bool, error) {
	raw, err := m.adc.Read()
	if err != nil {
		return 0, false, err
	}

	v, err := m.alarmLine.Value()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read gas alarm line: %w", err)
	}

	return raw, v == 0, nil
}

// Close releases the GPIO line.
func (m *MQ2Sensor) Close() error {
	return m.alarmLine.Close()
}
