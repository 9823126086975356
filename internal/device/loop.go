package device

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/airmon/internal/models"
)

// Sampler is the loop's view of the sensor sampler.
type Sampler interface {
	Sample() *models.Reading
}

// Loop multiplexes sampling, uplink and display as fixed-interval tasks on a
// single goroutine. Each task has a bounded worst-case duration (the uplink
// HTTP timeout is configured shorter than the sampling interval), so a slow
// or failed upload can never cause a missed sample or a frozen display.
type Loop struct {
	sampler Sampler
	uplink  *Uplink
	display *Display
	logger  zerolog.Logger

	sampleInterval  time.Duration
	uploadInterval  time.Duration
	displayInterval time.Duration
}

// NewLoop assembles the device loop.
func NewLoop(sampler Sampler, uplink *Uplink, display *Display, sampleInterval, uploadInterval, displayInterval time.Duration, logger zerolog.Logger) *Loop {
	return &Loop{
		sampler:         sampler,
		uplink:          uplink,
		display:         display,
		logger:          logger,
		sampleInterval:  sampleInterval,
		uploadInterval:  uploadInterval,
		displayInterval: displayInterval,
	}
}

// Run executes the loop until the context is cancelled. An immediate first
// sample primes the latest-reading state before the first upload tick.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().
		Dur("sample_interval", l.sampleInterval).
		Dur("upload_interval", l.uploadInterval).
		Dur("display_interval", l.displayInterval).
		Msg("Device loop started")

	sampleTicker := time.NewTicker(l.sampleInterval)
	defer sampleTicker.Stop()
	uploadTicker := time.NewTicker(l.uploadInterval)
	defer uploadTicker.Stop()
	displayTicker := time.NewTicker(l.displayInterval)
	defer displayTicker.Stop()

	l.sampler.Sample()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Device loop stopped")
			return ctx.Err()
		case <-sampleTicker.C:
			l.sampler.Sample()
		case <-uploadTicker.C:
			l.uplink.Tick(ctx)
		case <-displayTicker.C:
			l.display.Tick()
		}
	}
}
