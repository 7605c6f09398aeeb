package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/iot"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

// Log writes every alert to the notifier log.
type Log struct{}

func (Log) Name() string { return "log" }

func (Log) Notify(_ context.Context, alert vitals.Alert) error {
	common.GetCategoryLogger(common.LoggerNameNotifier, common.LoggerCategoryAlert).
		Warn(alert.Message,
			zap.String("alert_id", alert.ID),
			zap.String("device_id", alert.DeviceID),
			zap.String("kind", string(alert.Kind)),
			zap.String("reading", alert.Reading),
			zap.Time("time", alert.Time))
	return nil
}

// Store persists alerts so they survive restarts and can be listed per device.
type Store struct {
	Alerts iot.IAlert
}

func (Store) Name() string { return "store" }

func (s Store) Notify(ctx context.Context, alert vitals.Alert) error {
	m := alert.Model()
	return s.Alerts.StoreAlert(ctx, &m)
}

const DefaultStreamMaxLen = 10000

// RedisStream appends alerts to a capped redis stream for downstream
// consumers.
type RedisStream struct {
	Client *redis.Client
	Stream string
	MaxLen int64
}

func NewRedisStream(client *redis.Client, stream string) *RedisStream {
	return &RedisStream{Client: client, Stream: stream, MaxLen: DefaultStreamMaxLen}
}

func (r *RedisStream) Name() string { return "redis_stream" }

func (r *RedisStream) Notify(ctx context.Context, alert vitals.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	err = r.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.Stream,
		MaxLen: r.MaxLen,
		Approx: true,
		Values: map[string]any{
			"id":        alert.ID,
			"device_id": alert.DeviceID,
			"kind":      string(alert.Kind),
			"severity":  string(alert.Severity),
			"data":      string(data),
			"timestamp": alert.Time.Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.Stream, err)
	}
	return nil
}

type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert models.Alert) error
}

// Publish forwards alerts to a message broker.
type Publish struct {
	Publisher AlertPublisher
}

func (Publish) Name() string { return "publish" }

func (p Publish) Notify(ctx context.Context, alert vitals.Alert) error {
	return p.Publisher.PublishAlert(ctx, alert.Model())
}
