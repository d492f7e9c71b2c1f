package instance

import (
	"os"
	"testing"
)

func TestDeviceIDPrefersConfigured(t *testing.T) {
	if got := DeviceID("  till-3 "); got != "till-3" {
		t.Fatalf("expected till-3, got %q", got)
	}
}

func TestDeviceIDFallsBackToHostname(t *testing.T) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		t.Skip("hostname unavailable")
	}
	if got := DeviceID(""); got != host {
		t.Fatalf("expected hostname %q, got %q", host, got)
	}
}
