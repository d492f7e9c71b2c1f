package connectivity

import (
	"context"
	"testing"

	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
)

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func TestProbeOnceFollowsClassification(t *testing.T) {
	var result error
	monitor := NewMonitor(false)
	prober, err := NewProber(ProberParams{
		Logger:  logger.Nop(),
		Monitor: monitor,
		Checker: healthFunc(func(context.Context) error { return result }),
	})
	if err != nil {
		t.Fatalf("new prober: %v", err)
	}
	ctx := context.Background()

	if !prober.ProbeOnce(ctx) || !monitor.IsOnline() {
		t.Fatalf("healthy backend should mark online")
	}

	result = pkgerrors.New(pkgerrors.CodeBackendUnavailable, "dial tcp: connection refused")
	if prober.ProbeOnce(ctx) || monitor.IsOnline() {
		t.Fatalf("unavailable backend should mark offline")
	}

	result = pkgerrors.New(pkgerrors.CodeBackendRejected, "GET /health returned 404")
	if !prober.ProbeOnce(ctx) || !monitor.IsOnline() {
		t.Fatalf("a rejecting backend is still reachable")
	}
}

func TestRunProbesImmediately(t *testing.T) {
	calls := 0
	monitor := NewMonitor(false)
	prober, err := NewProber(ProberParams{
		Logger:  logger.Nop(),
		Monitor: monitor,
		Checker: healthFunc(func(context.Context) error { calls++; return nil }),
	})
	if err != nil {
		t.Fatalf("new prober: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := prober.Run(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 || !monitor.IsOnline() {
		t.Fatalf("expected one probe and online state, calls=%d", calls)
	}
}

func TestNewProberValidates(t *testing.T) {
	if _, err := NewProber(ProberParams{Logger: logger.Nop()}); err == nil {
		t.Fatalf("expected missing monitor error")
	}
}
