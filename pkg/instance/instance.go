package instance

import (
	"os"
	"strings"
)

const fallbackID = "local"

// DeviceID returns the configured device identifier, falling back to the
// hostname and finally to "local".
func DeviceID(configured string) string {
	if id := strings.TrimSpace(configured); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
