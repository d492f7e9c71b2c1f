package pagination

import (
	"encoding/base64"
	"strings"

	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 50
	// MaxLimit caps how many rows any cursor query can request.
	MaxLimit = 500
)

// Params holds keyset pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer returns the normalization result plus one to detect the next page.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor wraps the last key of a page into an opaque cursor.
func EncodeCursor(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte("k|" + key))
}

// ParseCursor decodes a cursor back into the key to resume after. An empty
// cursor yields an empty key.
func ParseCursor(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode cursor").WithDetails(map[string]string{"cursor": "is malformed"})
	}
	key, ok := strings.CutPrefix(string(decoded), "k|")
	if !ok || key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor format").WithDetails(map[string]string{"cursor": "is malformed"})
	}
	return key, nil
}
