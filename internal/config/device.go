package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DeviceConfig holds all configuration for the device agent.
type DeviceConfig struct {
	Device  DeviceSettings  `yaml:"device"`
	Sensors SensorSettings  `yaml:"sensors"`
	Uplink  UplinkSettings  `yaml:"uplink"`
	Display DisplaySettings `yaml:"display"`
	Logging LoggingConfig   `yaml:"logging"`
}

// DeviceSettings identifies this device.
type DeviceSettings struct {
	ID       string `yaml:"id"`
	Location string `yaml:"location"`
}

// SensorSettings contains hardware wiring and sampling cadence.
type SensorSettings struct {
	DHTPin         int           `yaml:"dht_pin"`
	GPIOChip       string        `yaml:"gpio_chip"`
	GasAlarmPin    int           `yaml:"gas_alarm_pin"`
	GasADCPath     string        `yaml:"gas_adc_path"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	Mock           bool          `yaml:"mock"` // simulated sensors for development off-hardware
}

// UplinkSettings contains upload cadence and the ingestion endpoint.
type UplinkSettings struct {
	URL            string        `yaml:"url"`
	UploadInterval time.Duration `yaml:"upload_interval"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	WifiInterface  string        `yaml:"wifi_interface"`
}

// DisplaySettings contains the status display cadence.
type DisplaySettings struct {
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig contains logging settings, shared by both binaries.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadDeviceConfig loads device configuration from a YAML file.
func LoadDeviceConfig(path string) (*DeviceConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config DeviceConfig
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	config.OverrideFromEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields.
func (c *DeviceConfig) ApplyDefaults() {
	if c.Sensors.GPIOChip == "" {
		c.Sensors.GPIOChip = "gpiochip0"
	}
	if c.Sensors.SampleInterval == 0 {
		c.Sensors.SampleInterval = 2 * time.Second
	}
	if c.Uplink.UploadInterval == 0 {
		c.Uplink.UploadInterval = 10 * time.Second
	}
	if c.Uplink.Timeout == 0 {
		// Shorter than the sampling interval so a hung upload can't
		// starve the sampler.
		c.Uplink.Timeout = c.Sensors.SampleInterval - 500*time.Millisecond
	}
	if c.Uplink.MaxAttempts == 0 {
		c.Uplink.MaxAttempts = 3
	}
	if c.Uplink.WifiInterface == "" {
		c.Uplink.WifiInterface = "wlan0"
	}
	if c.Display.Interval == 0 {
		c.Display.Interval = 3 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// OverrideFromEnv overrides config values from environment variables.
func (c *DeviceConfig) OverrideFromEnv() {
	if v := os.Getenv("DEVICE_ID"); v != "" {
		c.Device.ID = v
	}
	if v := os.Getenv("DEVICE_LOCATION"); v != "" {
		c.Device.Location = v
	}
	if v := os.Getenv("UPLINK_URL"); v != "" {
		c.Uplink.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *DeviceConfig) Validate() error {
	if c.Device.ID == "" {
		return fmt.Errorf("device ID is required")
	}
	if !c.Sensors.Mock && c.Sensors.DHTPin <= 0 {
		return fmt.Errorf("DHT GPIO pin must be greater than 0")
	}
	if c.Uplink.URL == "" {
		return fmt.Errorf("uplink URL is required")
	}
	if !strings.HasPrefix(c.Uplink.URL, "http://") && !strings.HasPrefix(c.Uplink.URL, "https://") {
		return fmt.Errorf("uplink URL must start with http:// or https://")
	}
	if c.Sensors.SampleInterval < time.Second {
		return fmt.Errorf("sample interval must be at least 1 second")
	}
	if c.Uplink.Timeout >= c.Sensors.SampleInterval {
		return fmt.Errorf("uplink timeout must be shorter than the sample interval")
	}
	if c.Uplink.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	return nil
}

// String returns a formatted representation of the config.
func (c *DeviceConfig) String() string {
	return fmt.Sprintf("DeviceConfig{Device: %+v, Sensors: %+v, Uplink: %+v, Display: %+v, Logging: %+v}",
		c.Device, c.Sensors, c.Uplink, c.Display, c.Logging)
}
