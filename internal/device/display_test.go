package device

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/afroash/airmon/internal/models"
)

type staticSource struct {
	reading *models.Reading
}

func (s *staticSource) Latest() *models.Reading { return s.reading }
func (s *staticSource) Uptime() time.Duration   { return 2*time.Hour + 5*time.Minute }

func TestDisplay_RotatesThroughViews(t *testing.T) {
	var out bytes.Buffer
	source := &staticSource{reading: &models.Reading{
		Timestamp:   time.Now(),
		Temperature: models.Float64(23.0),
		Humidity:    models.Float64(80.1),
		GasRaw:      197,
		GasDigital:  true,
	}}
	state := NewConnectivityState()
	state.SetWifi(true, -42)
	state.RecordAttempt()
	state.RecordSuccess(201)

	display := NewDisplay(&out, source, state)

	// One full rotation plus one, to confirm wrap-around.
	for i := 0; i < 4; i++ {
		display.Tick()
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}

	if !strings.Contains(lines[0], "T=23.0") || !strings.Contains(lines[0], "gas=197") {
		t.Errorf("reading view = %q", lines[0])
	}
	if !strings.Contains(lines[1], "-42dBm") || !strings.Contains(lines[1], "201") {
		t.Errorf("connectivity view = %q", lines[1])
	}
	if !strings.Contains(lines[2], "sent 1/1") || !strings.Contains(lines[2], "2h5m") {
		t.Errorf("counters view = %q", lines[2])
	}
	if lines[3] != lines[0] {
		t.Errorf("rotation did not wrap: %q vs %q", lines[3], lines[0])
	}
}

func TestDisplay_BeforeFirstSample(t *testing.T) {
	var out bytes.Buffer
	display := NewDisplay(&out, &staticSource{reading: nil}, NewConnectivityState())

	display.Tick()

	if !strings.Contains(out.String(), "no sample yet") {
		t.Errorf("output = %q, want warm-up placeholder", out.String())
	}
}

func TestDisplay_DisconnectedView(t *testing.T) {
	var out bytes.Buffer
	state := NewConnectivityState()
	state.SetWifi(false, 0)

	display := NewDisplay(&out, &staticSource{}, state)
	display.Tick() // reading view
	out.Reset()
	display.Tick() // connectivity view

	if !strings.Contains(out.String(), "down") {
		t.Errorf("connectivity view = %q, want disconnected state", out.String())
	}
}
