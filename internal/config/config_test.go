package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDeviceConfig(t *testing.T) {
	path := writeConfig(t, `
device:
  id: pi-airmon-01
  location: Living Room
sensors:
  dht_pin: 4
  gas_alarm_pin: 17
  sample_interval: 2s
uplink:
  url: http://192.168.1.50:8081/api/readings
  upload_interval: 10s
  timeout: 1500ms
`)

	cfg, err := LoadDeviceConfig(path)
	if err != nil {
		t.Fatalf("LoadDeviceConfig failed: %v", err)
	}

	if cfg.Device.ID != "pi-airmon-01" {
		t.Errorf("Device.ID = %q", cfg.Device.ID)
	}
	if cfg.Sensors.SampleInterval != 2*time.Second {
		t.Errorf("SampleInterval = %v, want 2s", cfg.Sensors.SampleInterval)
	}
	if cfg.Uplink.Timeout != 1500*time.Millisecond {
		t.Errorf("Timeout = %v, want 1.5s", cfg.Uplink.Timeout)
	}
	// Defaults fill unset fields.
	if cfg.Uplink.MaxAttempts != 3 {
		t.Errorf("MaxAttempts default = %d, want 3", cfg.Uplink.MaxAttempts)
	}
	if cfg.Uplink.WifiInterface != "wlan0" {
		t.Errorf("WifiInterface default = %q, want wlan0", cfg.Uplink.WifiInterface)
	}
}

func TestLoadDeviceConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing device id",
			content: `
sensors:
  dht_pin: 4
uplink:
  url: http://example.com/api/readings
`,
		},
		{
			name: "bad uplink scheme",
			content: `
device:
  id: dev-01
sensors:
  dht_pin: 4
uplink:
  url: ws://example.com/api/readings
`,
		},
		{
			name: "uplink timeout not shorter than sample interval",
			content: `
device:
  id: dev-01
sensors:
  dht_pin: 4
  sample_interval: 2s
uplink:
  url: http://example.com/api/readings
  timeout: 5s
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadDeviceConfig(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadDeviceConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
device:
  id: from-file
sensors:
  dht_pin: 4
uplink:
  url: http://example.com/api/readings
`)

	t.Setenv("DEVICE_ID", "from-env")
	cfg, err := LoadDeviceConfig(path)
	if err != nil {
		t.Fatalf("LoadDeviceConfig failed: %v", err)
	}
	if cfg.Device.ID != "from-env" {
		t.Errorf("Device.ID = %q, want env override", cfg.Device.ID)
	}
}

func TestLoadAppConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  auth_token: secret-token
storage:
  db_path: /tmp/test.db
`)

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout default = %v, want 30s", cfg.Server.ReadTimeout)
	}
}

func TestLoadAppConfig_RequiresAuthToken(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
`)

	if _, err := LoadAppConfig(path); err == nil {
		t.Error("expected validation error for missing auth token")
	}
}

func TestAppConfig_StringMasksToken(t *testing.T) {
	cfg := AppConfig{}
	cfg.Server.AuthToken = "super-secret-token"
	cfg.ApplyDefaults()

	s := cfg.String()
	if len(s) == 0 {
		t.Fatal("String returned empty")
	}
	if strings.Contains(s, "super-secret-token") {
		t.Error("String must not leak the full auth token")
	}
}
