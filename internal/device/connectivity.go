package device

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// WifiStatus probes the state of the wireless link. Association loss is a
// distinct condition from an upload failure: while the link is down the
// uplink agent suppresses attempts entirely.
type WifiStatus interface {
	// Status reports whether the interface is associated and, when it is,
	// the signal level in dBm.
	Status() (connected bool, signalDBm int, err error)
}

// ProcNetWireless reads association state and signal level from
// /proc/net/wireless, which the kernel keeps current for associated
// interfaces.
type ProcNetWireless struct {
	Path      string // defaults to /proc/net/wireless
	Interface string // e.g. "wlan0"
}

// Status parses the stats line for the configured interface. An interface
// absent from the file is not associated.
func (p *ProcNetWireless) Status() (bool, int, error) {
	path := p.Path
	if path == "" {
		path = "/proc/net/wireless"
	}

	f, err := os.Open(path)
	if err != nil {
		return false, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], p.Interface+":") {
			continue
		}
		// Field 3 is the signal level; the kernel prints it with a
		// trailing dot.
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[3], "."), 64)
		if err != nil {
			return false, 0, fmt.Errorf("failed to parse signal level %q: %w", fields[3], err)
		}
		return true, int(level), nil
	}
	if err := scanner.Err(); err != nil {
		return false, 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return false, 0, nil
}

// ConnectivitySnapshot is a point-in-time copy of the connectivity state for
// display.
type ConnectivitySnapshot struct {
	WifiConnected   bool
	SignalDBm       int
	TotalAttempted  uint64
	TotalSucceeded  uint64
	LastHTTPStatus  int
	LastUploadError string
}

// ConnectivityState tracks the wireless link and cumulative upload counters
// for the lifetime of the device process. The uplink agent is the sole
// writer; the status display reads through Snapshot.
type ConnectivityState struct {
	mutex           sync.RWMutex
	wifiConnected   bool
	signalDBm       int
	totalAttempted  uint64
	totalSucceeded  uint64
	lastHTTPStatus  int
	lastUploadError string
}

// NewConnectivityState creates an empty state.
func NewConnectivityState() *ConnectivityState {
	return &ConnectivityState{}
}

// SetWifi records the current association state and signal level.
func (c *ConnectivityState) SetWifi(connected bool, signalDBm int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.wifiConnected = connected
	c.signalDBm = signalDBm
}

// WifiConnected reports the last probed association state.
func (c *ConnectivityState) WifiConnected() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.wifiConnected
}

// RecordAttempt increments the cumulative attempt counter. Suppressed cycles
// (WiFi down) are not attempts and must not call this.
func (c *ConnectivityState) RecordAttempt() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.totalAttempted++
}

// RecordSuccess records a successful upload and its HTTP status.
func (c *ConnectivityState) RecordSuccess(httpStatus int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.totalSucceeded++
	c.lastHTTPStatus = httpStatus
	c.lastUploadError = ""
}

// RecordFailure records a failed upload. httpStatus is 0 when the request
// never produced a response.
func (c *ConnectivityState) RecordFailure(httpStatus int, reason string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.lastHTTPStatus = httpStatus
	c.lastUploadError = reason
}

// Snapshot returns a consistent copy of the state.
func (c *ConnectivityState) Snapshot() ConnectivitySnapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return ConnectivitySnapshot{
		WifiConnected:   c.wifiConnected,
		SignalDBm:       c.signalDBm,
		TotalAttempted:  c.totalAttempted,
		TotalSucceeded:  c.totalSucceeded,
		LastHTTPStatus:  c.lastHTTPStatus,
		LastUploadError: c.lastUploadError,
	}
}
