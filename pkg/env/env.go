package env

import (
	"os"
	"strings"
)

// First returns the first non-blank value among keys, or fallback. Used for
// settings read before config.Load has run.
func First(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
