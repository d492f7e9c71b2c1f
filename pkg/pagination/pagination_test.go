package pagination

import "testing"

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, MaxLimit + 1: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("expected buffer limit 11, got %d", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := EncodeCursor("prod/42")
	key, err := ParseCursor(cursor)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if key != "prod/42" {
		t.Fatalf("unexpected key %q", key)
	}

	if key, err := ParseCursor(""); err != nil || key != "" {
		t.Fatalf("empty cursor should yield empty key, got %q %v", key, err)
	}
	if _, err := ParseCursor("%%%"); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := ParseCursor("Zm9v"); err == nil {
		t.Fatalf("expected format error for cursor without prefix")
	}
}
