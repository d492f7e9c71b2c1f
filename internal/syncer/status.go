package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/angelmondragon/posync/pkg/logger"
)

// Status is a derived snapshot of the engine. It is recomputed on demand and
// never persisted as a source of truth.
type Status struct {
	Online          bool       `json:"online"`
	Syncing         bool       `json:"syncing"`
	PendingCount    int64      `json:"pendingCount"`
	FailedCount     int64      `json:"failedCount"`
	QueuedMutations int64      `json:"queuedMutations"`
	DeadLetters     int64      `json:"deadLetters"`
	LastSyncAt      *time.Time `json:"lastSyncAt"`
	LastError       *string    `json:"lastError"`
}

type statusWriter interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

const (
	defaultStatusTTL     = 10 * time.Minute
	statusPublishTimeout = 2 * time.Second
)

// RedisStatusPublisher mirrors status snapshots into Redis so fleet tooling
// can read a device's state without calling its agent.
type RedisStatusPublisher struct {
	client   statusWriter
	key      string
	deviceID string
	ttl      time.Duration
	logg     *logger.Logger
}

func NewRedisStatusPublisher(client statusWriter, key, deviceID string, ttl time.Duration, logg *logger.Logger) (*RedisStatusPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client required for status publisher")
	}
	if key == "" {
		return nil, errors.New("status key is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &RedisStatusPublisher{client: client, key: key, deviceID: deviceID, ttl: ttl, logg: logg}, nil
}

type publishedStatus struct {
	Status
	DeviceID  string    `json:"deviceId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Publish is meant to be registered with Orchestrator.Subscribe. Failures are
// logged and otherwise ignored.
func (p *RedisStatusPublisher) Publish(s Status) {
	ctx, cancel := context.WithTimeout(context.Background(), statusPublishTimeout)
	defer cancel()

	payload, err := json.Marshal(publishedStatus{Status: s, DeviceID: p.deviceID, UpdatedAt: time.Now().UTC()})
	if err != nil {
		p.logg.Error(ctx, "marshal sync status", err)
		return
	}
	if err := p.client.Set(ctx, p.key, string(payload), p.ttl); err != nil {
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "publish sync status failed")
	}
}
