package device

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/afroash/airmon/internal/models"
)

// LatestSource is the display's view of the sampler.
type LatestSource interface {
	Latest() *models.Reading
	Uptime() time.Duration
}

// Display rotates through fixed-format status views on its own cadence: the
// latest reading, the connectivity state, and the cumulative upload
// counters. It consumes sampler and uplink state and produces no data.
type Display struct {
	out    io.Writer
	source LatestSource
	state  *ConnectivityState
	view   int
}

// Number of views in the rotation.
const displayViews = 3

// NewDisplay creates a status display writing to out.
func NewDisplay(out io.Writer, source LatestSource, state *ConnectivityState) *Display {
	return &Display{
		out:    out,
		source: source,
		state:  state,
	}
}

// Tick renders the next view in the rotation.
func (d *Display) Tick() {
	switch d.view {
	case 0:
		d.renderReading()
	case 1:
		d.renderConnectivity()
	case 2:
		d.renderCounters()
	}
	d.view = (d.view + 1) % displayViews
}

func (d *Display) renderReading() {
	reading := d.source.Latest()
	if reading == nil {
		fmt.Fprintln(d.out, "[reading] warming up, no sample yet")
		return
	}
	fmt.Fprintf(d.out, "[reading] %s\n", reading.String())
}

func (d *Display) renderConnectivity() {
	snap := d.state.Snapshot()
	if !snap.WifiConnected {
		fmt.Fprintln(d.out, "[wifi] down, uploads paused")
		return
	}
	status := ""
	if snap.LastHTTPStatus != 0 {
		status = fmt.Sprintf(" last HTTP %d", snap.LastHTTPStatus)
	}
	fmt.Fprintf(d.out, "[wifi] up %ddBm%s\n", snap.SignalDBm, status)
}

func (d *Display) renderCounters() {
	snap := d.state.Snapshot()
	fmt.Fprintf(d.out, "[uplink] sent %s/%s up %s\n",
		humanize.Comma(int64(snap.TotalSucceeded)),
		humanize.Comma(int64(snap.TotalAttempted)),
		formatUptime(d.source.Uptime()),
	)
}

// formatUptime renders uptime in the coarse form the display has room for.
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
