package env

import "testing"

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("POSYNC_LOG_FORMAT", "")
	t.Setenv("LOG_FORMAT", "console")
	if got := First("json", "POSYNC_LOG_FORMAT", "LOG_FORMAT"); got != "console" {
		t.Fatalf("expected console, got %q", got)
	}

	t.Setenv("POSYNC_LOG_FORMAT", "json")
	if got := First("console", "POSYNC_LOG_FORMAT", "LOG_FORMAT"); got != "json" {
		t.Fatalf("expected json, got %q", got)
	}

	t.Setenv("POSYNC_LOG_FORMAT", " ")
	t.Setenv("LOG_FORMAT", "")
	if got := First("json", "POSYNC_LOG_FORMAT", "LOG_FORMAT"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
