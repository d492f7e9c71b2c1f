package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConnectivitySet(t *testing.T) {
	monitor := &stubMonitor{}

	resp := httptest.NewRecorder()
	ConnectivitySet(monitor, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/connectivity", strings.NewReader(`{"online":true}`)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !monitor.online {
		t.Fatalf("expected monitor to be online")
	}

	resp = httptest.NewRecorder()
	ConnectivitySet(monitor, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/connectivity", strings.NewReader(`{"online":false}`)))
	if resp.Code != http.StatusOK || monitor.online {
		t.Fatalf("expected monitor to go offline, code=%d", resp.Code)
	}
}

func TestConnectivitySetRequiresFlag(t *testing.T) {
	monitor := &stubMonitor{online: true}

	resp := httptest.NewRecorder()
	ConnectivitySet(monitor, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/connectivity", strings.NewReader(`{}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if !monitor.online {
		t.Fatalf("a rejected request must not change state")
	}
}
