package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
)

type connectivityBody struct {
	Online *bool `json:"online" validate:"required"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"online":true}`))
	var body connectivityBody
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Online == nil || !*body.Online {
		t.Fatalf("expected online=true")
	}
}

func TestDecodeJSONBodyRejects(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"unknown field": `{"online":true,"extra":1}`,
		"malformed":     `{"online":`,
		"missing field": `{}`,
	}
	for name, payload := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		var body connectivityBody
		err := DecodeJSONBody(req, &body)
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20&bad=x&big=9000", nil)
	if v, err := ParseQueryInt(req, "limit", 50, 1, 500); err != nil || v != 20 {
		t.Fatalf("expected 20, got %d err=%v", v, err)
	}
	if v, err := ParseQueryInt(req, "missing", 50, 1, 500); err != nil || v != 50 {
		t.Fatalf("expected default 50, got %d err=%v", v, err)
	}
	if _, err := ParseQueryInt(req, "bad", 50, 1, 500); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for non-numeric, got %v", err)
	}
	if _, err := ParseQueryInt(req, "big", 50, 1, 500); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for out of range, got %v", err)
	}
}

func TestParseURLUUID(t *testing.T) {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", "not-a-uuid")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	if _, err := ParseURLUUID(req, "id"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	rc = chi.NewRouteContext()
	rc.URLParams.Add("id", "0b6a8a52-5b7e-4c38-9c53-2a3f4b1f6d10")
	req = req.WithContext(context.WithValue(context.Background(), chi.RouteCtxKey, rc))
	id, err := ParseURLUUID(req, "id")
	if err != nil || id.String() != "0b6a8a52-5b7e-4c38-9c53-2a3f4b1f6d10" {
		t.Fatalf("unexpected result %s err=%v", id, err)
	}
}
