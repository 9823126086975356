package device

import (
	"os"
	"path/filepath"
	"testing"
)

const wirelessAssociated = `Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
 wlan0: 0000   60.  -50.  -256        0      0      0      0      0        0
`

const wirelessNotAssociated = `Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
`

func writeWireless(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wireless")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func TestProcNetWireless_Associated(t *testing.T) {
	probe := &ProcNetWireless{
		Path:      writeWireless(t, wirelessAssociated),
		Interface: "wlan0",
	}

	connected, signal, err := probe.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !connected {
		t.Error("connected = false, want true")
	}
	if signal != -50 {
		t.Errorf("signal = %d, want -50", signal)
	}
}

func TestProcNetWireless_NotAssociated(t *testing.T) {
	probe := &ProcNetWireless{
		Path:      writeWireless(t, wirelessNotAssociated),
		Interface: "wlan0",
	}

	connected, _, err := probe.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if connected {
		t.Error("connected = true for an interface absent from the table")
	}
}

func TestProcNetWireless_OtherInterfaceIgnored(t *testing.T) {
	probe := &ProcNetWireless{
		Path:      writeWireless(t, wirelessAssociated),
		Interface: "wlan1",
	}

	connected, _, err := probe.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if connected {
		t.Error("connected = true for a different interface")
	}
}

func TestConnectivityState_SnapshotIsolation(t *testing.T) {
	state := NewConnectivityState()
	state.SetWifi(true, -42)
	state.RecordAttempt()
	state.RecordFailure(500, "server returned 500 Internal Server Error")

	snap := state.Snapshot()
	if !snap.WifiConnected || snap.SignalDBm != -42 {
		t.Errorf("snapshot wifi = %v/%d, want true/-42", snap.WifiConnected, snap.SignalDBm)
	}
	if snap.TotalAttempted != 1 || snap.TotalSucceeded != 0 {
		t.Errorf("counters = %d/%d, want 0/1", snap.TotalSucceeded, snap.TotalAttempted)
	}
	if snap.LastUploadError == "" {
		t.Error("failure reason missing from snapshot")
	}

	// Success clears the recorded failure.
	state.RecordAttempt()
	state.RecordSuccess(201)
	snap = state.Snapshot()
	if snap.LastUploadError != "" {
		t.Error("success should clear the last upload error")
	}
	if snap.TotalSucceeded != 1 {
		t.Errorf("TotalSucceeded = %d, want 1", snap.TotalSucceeded)
	}
}
