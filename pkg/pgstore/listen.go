package pgstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/source"
)

const (
	minReconnect = 500 * time.Millisecond
	maxReconnect = 30 * time.Second
)

// NotifyTriggerSQL installs the trigger that feeds NotifyChannel. The
// payload carries the operation, the table name and the new row.
const NotifyTriggerSQL = `
CREATE OR REPLACE FUNCTION notify_health_status_change() RETURNS trigger AS $$
BEGIN
  PERFORM pg_notify('health_status_changes',
    json_build_object('type', TG_OP, 'table', TG_TABLE_NAME, 'record', row_to_json(NEW))::text);
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS health_status_notify ON %[1]s;
CREATE TRIGGER health_status_notify AFTER INSERT OR UPDATE ON %[1]s
  FOR EACH ROW EXECUTE FUNCTION notify_health_status_change();
`

// notifier is the part of pq.Listener a subscription uses.
type notifier interface {
	NotificationChannel() <-chan *pq.Notification
	Listen(channel string) error
	Close() error
}

func newPQListener(dsn string, callback pq.EventCallbackType) notifier {
	return pq.NewListener(dsn, minReconnect, maxReconnect, callback)
}

type notifyPayload struct {
	Type   string         `json:"type"`
	Table  string         `json:"table"`
	Record map[string]any `json:"record"`
}

func (s *Store) InstallTrigger(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(NotifyTriggerSQL, pq.QuoteIdentifier(s.table)))
	if err != nil {
		return fmt.Errorf("install notify trigger: %w", err)
	}
	return nil
}

// Subscribe opens a dedicated listener connection on NotifyChannel and
// forwards the notifications matching filter.
func (s *Store) Subscribe(ctx context.Context, filter source.Filter) (source.Subscription, error) {
	logger := common.GetCategoryLogger(common.LoggerNameSource, common.LoggerCategoryPush).
		With(zap.String("channel", NotifyChannel), zap.String("filter", filter.Expr()))

	l := s.newListener(s.dsn, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			logger.Warn("Postgres listener connection problem", zap.Int("event", int(ev)), zap.Error(err))
		case pq.ListenerEventReconnected:
			logger.Info("Postgres listener reconnected")
		}
	})
	if err := l.Listen(NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	pipe := source.NewPipe(source.DefaultPipeBuffer, l.Close)
	go pump(ctx, pipe, filter, l.NotificationChannel(), logger)
	return pipe, nil
}

func pump(ctx context.Context, pipe *source.Pipe, filter source.Filter, notifications <-chan *pq.Notification, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			_ = pipe.End(ctx.Err())
			return
		case <-pipe.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				_ = pipe.End(fmt.Errorf("postgres listener closed"))
				return
			}
			if n == nil {
				// sent after a reconnect, notifications may have been missed
				logger.Warn("Postgres listener reconnected, changes may have been missed")
				continue
			}
			change, ok := decodeNotification(filter, n, logger)
			if ok {
				pipe.Send(ctx, change)
			}
		}
	}
}

func decodeNotification(filter source.Filter, n *pq.Notification, logger *zap.Logger) (source.Change, bool) {
	var payload notifyPayload
	dec := json.NewDecoder(bytes.NewReader([]byte(n.Extra)))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		logger.Warn("Skipping malformed notification", zap.Error(err))
		return source.Change{}, false
	}

	if payload.Record == nil || !filter.MatchesEvent(payload.Type) {
		return source.Change{}, false
	}
	if filter.Table != "" && payload.Table != "" && payload.Table != filter.Table {
		return source.Change{}, false
	}

	reading, err := source.ParseRow(payload.Record)
	if err != nil {
		source.Quarantine("postgres", payload.Record, err)
		return source.Change{}, false
	}
	if filter.Value != "" && reading.DeviceID != filter.Value {
		return source.Change{}, false
	}

	return source.Change{
		Event:      payload.Type,
		Table:      payload.Table,
		Reading:    reading,
		ReceivedAt: time.Now(),
	}, true
}
