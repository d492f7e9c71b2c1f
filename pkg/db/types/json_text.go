package dbtypes

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONText stores an opaque JSON document in a TEXT column. The bytes are kept
// verbatim so payloads replay to the backend exactly as they were captured.
type JSONText json.RawMessage

func (j *JSONText) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}

	switch v := src.(type) {
	case string:
		*j = append((*j)[:0], v...)
	case []byte:
		*j = append((*j)[:0], v...)
	default:
		return fmt.Errorf("JSONText: unsupported Scan type %T", src)
	}
	if !json.Valid(*j) {
		return fmt.Errorf("JSONText: stored value is not valid json")
	}
	return nil
}

func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("JSONText: invalid json")
	}
	return string(j), nil
}

func (j JSONText) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONText) UnmarshalJSON(data []byte) error {
	if j == nil {
		return fmt.Errorf("JSONText: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[:0], data...)
	return nil
}

// IsNull reports whether the document is absent or the JSON literal null.
func (j JSONText) IsNull() bool {
	trimmed := bytes.TrimSpace(j)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// IsArray reports whether the document is a JSON array.
func (j JSONText) IsArray() bool {
	trimmed := bytes.TrimSpace(j)
	return len(trimmed) > 0 && trimmed[0] == '['
}
