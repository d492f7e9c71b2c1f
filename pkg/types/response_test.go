package types

import (
	"encoding/json"
	"testing"
)

func TestNewPageNeverEncodesNullItems(t *testing.T) {
	body, err := json.Marshal(NewPage[string](nil, ""))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(body) != `{"items":[]}` {
		t.Fatalf("unexpected body %s", body)
	}

	body, _ = json.Marshal(NewPage([]int{1, 2}, "abc"))
	if string(body) != `{"items":[1,2],"nextCursor":"abc"}` {
		t.Fatalf("unexpected body %s", body)
	}
}
