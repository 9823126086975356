package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/airmon/internal/models"
)

// UplinkState is the agent's position in its upload cycle.
type UplinkState int

const (
	UplinkIdle UplinkState = iota
	UplinkSending
	UplinkSuccess
	UplinkFailed
)

func (s UplinkState) String() string {
	switch s {
	case UplinkIdle:
		return "idle"
	case UplinkSending:
		return "sending"
	case UplinkSuccess:
		return "success"
	case UplinkFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReadingSource is the device-side view of the sampler.
type ReadingSource interface {
	Latest() *models.Reading
	Uptime() time.Duration
}

// UploadRecord pairs the reading being uploaded with its device-local
// sequence number and attempt count. The agent owns exactly one record at a
// time; there is no queue, so a record that keeps failing is dropped after
// the attempt cap instead of retried forever.
type UploadRecord struct {
	Reading  *models.Reading
	Seq      uint64
	Attempts int
}

// Uplink posts the latest reading to the ingestion service on its own
// cadence, decoupled from the sampling cadence. Failures are never fatal to
// the device loop: a failed attempt is deferred to the next scheduled tick,
// and attempts are suppressed entirely while WiFi is down.
type Uplink struct {
	url         string
	client      *http.Client
	wifi        WifiStatus
	state       *ConnectivityState
	source      ReadingSource
	maxAttempts int
	logger      zerolog.Logger

	// Owned by the device loop goroutine, no locking needed.
	seq         uint64
	pending     *UploadRecord
	lastAdopted time.Time
	lastState   UplinkState
}

// UplinkConfig holds configuration for the uplink agent.
type UplinkConfig struct {
	URL         string
	Timeout     time.Duration // must stay shorter than the sampling interval
	MaxAttempts int
}

// NewUplink creates an uplink agent.
func NewUplink(cfg UplinkConfig, wifi WifiStatus, state *ConnectivityState, source ReadingSource, logger zerolog.Logger) *Uplink {
	return &Uplink{
		url:         cfg.URL,
		client:      &http.Client{Timeout: cfg.Timeout},
		wifi:        wifi,
		state:       state,
		source:      source,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
		lastState:   UplinkIdle,
	}
}

// State returns the outcome of the last tick.
func (u *Uplink) State() UplinkState {
	return u.lastState
}

// Tick runs one upload cycle: probe the link, adopt the newest reading, make
// at most one attempt. Retries are deferred attempts on later ticks, never a
// blocking spin.
func (u *Uplink) Tick(ctx context.Context) {
	connected, signal, err := u.wifi.Status()
	if err != nil {
		u.logger.Warn().Err(err).Msg("WiFi status probe failed, assuming disconnected")
		connected = false
	}
	u.state.SetWifi(connected, signal)

	u.adoptLatest()

	if !connected {
		// Association loss is not an upload failure: no attempt, no
		// counter movement. Uploads resume on the first tick after
		// reassociation.
		u.lastState = UplinkIdle
		u.logger.Debug().Msg("WiFi down, suppressing upload")
		return
	}

	if u.pending == nil {
		u.lastState = UplinkIdle
		return
	}

	u.lastState = UplinkSending
	u.state.RecordAttempt()
	u.pending.Attempts++

	status, err := u.post(ctx, u.pending.Reading)
	if err != nil {
		u.lastState = UplinkFailed
		u.state.RecordFailure(status, err.Error())
		u.logger.Warn().
			Err(err).
			Uint64("seq", u.pending.Seq).
			Int("attempts", u.pending.Attempts).
			Msg("Upload failed")

		if u.pending.Attempts >= u.maxAttempts {
			u.logger.Warn().Uint64("seq", u.pending.Seq).Msg("Attempt cap reached, dropping reading")
			u.pending = nil
		}
		return
	}

	u.lastState = UplinkSuccess
	u.state.RecordSuccess(status)
	u.logger.Info().Uint64("seq", u.pending.Seq).Int("status", status).Msg("Reading uploaded")
	u.pending = nil
}

// adoptLatest replaces the pending record when the sampler has produced a
// newer reading. A reading still pending retry is abandoned in favor of
// fresher data, and a reading dropped at the attempt cap is never re-adopted.
func (u *Uplink) adoptLatest() {
	latest := u.source.Latest()
	if latest == nil || !latest.Timestamp.After(u.lastAdopted) {
		return
	}
	u.seq++
	u.pending = &UploadRecord{Reading: latest, Seq: u.seq}
	u.lastAdopted = latest.Timestamp
}

// post serializes the reading into the ingestion wire format and issues one
// HTTP attempt. The client timeout bounds the worst case so a hung request
// cannot starve sampling or the display.
func (u *Uplink) post(ctx context.Context, reading *models.Reading) (int, error) {
	payload := models.NewIngestPayload(reading, u.source.Uptime())
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return resp.StatusCode, fmt.Errorf("server returned %s", resp.Status)
	}

	return resp.StatusCode, nil
}
