package connectivity

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
)

const (
	defaultProbeInterval = 10 * time.Second
	defaultProbeTimeout  = 3 * time.Second
)

// HealthChecker is the backend surface used to probe reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ProberParams configure the prober.
type ProberParams struct {
	Logger   *logger.Logger
	Monitor  *Monitor
	Checker  HealthChecker
	Interval time.Duration
	Timeout  time.Duration
}

// Prober polls the backend and feeds the result into a Monitor.
type Prober struct {
	logg     *logger.Logger
	monitor  *Monitor
	checker  HealthChecker
	interval time.Duration
	timeout  time.Duration
}

// NewProber builds a prober.
func NewProber(params ProberParams) (*Prober, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Monitor == nil {
		return nil, fmt.Errorf("monitor required")
	}
	if params.Checker == nil {
		return nil, fmt.Errorf("health checker required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Prober{
		logg:     params.Logger,
		monitor:  params.Monitor,
		checker:  params.Checker,
		interval: interval,
		timeout:  timeout,
	}, nil
}

// Run probes once immediately and then on every interval until ctx is canceled.
func (p *Prober) Run(ctx context.Context) error {
	ctx = p.logg.WithField(ctx, "component", "connectivity_prober")
	p.ProbeOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logg.Info(ctx, "connectivity prober stopped")
			return ctx.Err()
		case <-ticker.C:
			p.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce performs a single health check and returns the resulting state.
// Failures classified as backend-unavailable count as offline; a server that
// answers with a client error is still reachable.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.checker.Health(probeCtx)
	online := err == nil || !pkgerrors.IsCode(err, pkgerrors.CodeBackendUnavailable)

	if online != p.monitor.IsOnline() {
		stateCtx := p.logg.WithField(ctx, "online", online)
		if err != nil && !online {
			p.logg.Warn(p.logg.WithField(stateCtx, "reason", err.Error()), "backend unreachable")
		} else {
			p.logg.Info(stateCtx, "connectivity changed")
		}
	}
	p.monitor.SetOnline(online)
	return online
}
