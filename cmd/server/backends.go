package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/iot"
	"liyu1981.xyz/vital-signs-service/pkg/mqttpush"
	"liyu1981.xyz/vital-signs-service/pkg/notify"
	"liyu1981.xyz/vital-signs-service/pkg/pgstore"
	"liyu1981.xyz/vital-signs-service/pkg/postgrest"
	"liyu1981.xyz/vital-signs-service/pkg/realtime"
	"liyu1981.xyz/vital-signs-service/pkg/source"
)

// backends holds the reading source adapters picked by VITALS_BACKEND and
// VITALS_PUSH, plus whatever connections they opened.
type backends struct {
	reader     source.Reader
	roster     source.RosterWriter
	subscriber source.Subscriber
	mqtt       *mqttpush.Client
	redis      *redis.Client
	closers    []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg common.Config, core *iot.IOT, logger *zap.Logger) (*backends, error) {
	b := &backends{}
	local := source.NewLocal(core)

	var pg *pgstore.Store
	openPG := func() (*pgstore.Store, error) {
		if pg != nil {
			return pg, nil
		}
		store, err := pgstore.Open(ctx, cfg.PostgresDSN, cfg.Table)
		if err != nil {
			return nil, err
		}
		pg = store
		b.closers = append(b.closers, func() { _ = store.Close() })
		return pg, nil
	}

	switch cfg.Backend {
	case common.BackendLocal:
		b.reader, b.roster = local, local
	case common.BackendPostgrest:
		client := postgrest.New(cfg.BackendURL, cfg.BackendKey, cfg.Table)
		// the roster search runs on the local copy
		b.reader, b.roster = client, source.TeeRoster{client, core.Employee}
	case common.BackendPostgres:
		store, err := openPG()
		if err != nil {
			b.Close()
			return nil, err
		}
		b.reader, b.roster = store, source.TeeRoster{store, core.Employee}
	}
	logger.Info("Reading backend ready", zap.String("backend", cfg.Backend), zap.String("table", cfg.Table))

	if cfg.MQTTBroker != "" {
		client, err := mqttpush.Connect(mqttpush.Options{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		b.mqtt = client
		b.closers = append(b.closers, client.Disconnect)
	}

	switch cfg.Push {
	case common.PushLocal:
		b.subscriber = local
	case common.PushRealtime:
		b.subscriber = realtime.New(cfg.RealtimeURL, cfg.BackendKey)
	case common.PushMQTT:
		b.subscriber = b.mqtt
		if cfg.Backend == common.BackendLocal {
			// pushed readings must land in the local store for polls and listings
			if err := b.mqtt.Ingest(ctx, core.Reading); err != nil {
				b.Close()
				return nil, fmt.Errorf("mqtt ingest: %w", err)
			}
		}
	case common.PushPostgres:
		store, err := openPG()
		if err != nil {
			b.Close()
			return nil, err
		}
		if err := store.InstallTrigger(ctx); err != nil {
			logger.Warn("Could not install change trigger, expecting one to exist", zap.Error(err))
		}
		b.subscriber = store
	}
	logger.Info("Push channel ready", zap.String("push", cfg.Push))

	if cfg.RedisAddr != "" {
		b.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := b.redis.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis not reachable yet", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
	}

	return b, nil
}

// notifiers lists the alert sinks the configuration enables.
func (b *backends) notifiers(cfg common.Config, core *iot.IOT, extra ...notify.Notifier) []notify.Notifier {
	list := []notify.Notifier{notify.Log{}, notify.Store{Alerts: core.Alert}}
	if b.redis != nil {
		list = append(list, notify.NewRedisStream(b.redis, cfg.RedisStream))
	}
	if b.mqtt != nil {
		list = append(list, notify.Publish{Publisher: b.mqtt})
	}
	return append(list, extra...)
}
