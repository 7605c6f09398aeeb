package source

import (
	"context"
	"fmt"
	"time"

	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/iot"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

// Local serves readings from the service's own store and pushes changes
// from its in-process feed.
type Local struct {
	iot *iot.IOT
}

func NewLocal(core *iot.IOT) *Local {
	return &Local{iot: core}
}

func (l *Local) LatestReadings(ctx context.Context, deviceID string, n int) ([]vitals.Reading, error) {
	rows, err := l.iot.Reading.LatestReadings(ctx, deviceID, n)
	if err != nil {
		return nil, err
	}
	return common.Mapper(rows, vitals.FromModel), nil
}

func (l *Local) InsertEmployee(ctx context.Context, employee *models.Employee) error {
	return l.iot.Employee.InsertEmployee(ctx, employee)
}

func (l *Local) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	if filter.Column != "" && filter.Column != DeviceColumn {
		return nil, fmt.Errorf("local feed filters on %s only, got %s", DeviceColumn, filter.Column)
	}
	if !filter.MatchesEvent(EventInsert) {
		return NewPipe(0, nil), nil
	}

	readings, cancel := l.iot.Feed.Subscribe(filter.Value, iot.DefaultFeedBuffer)
	pipe := NewPipe(iot.DefaultFeedBuffer, func() error {
		cancel()
		return nil
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = pipe.End(ctx.Err())
				return
			case <-pipe.Done():
				return
			case row, ok := <-readings:
				if !ok {
					return
				}
				pipe.Send(ctx, Change{
					Event:      EventInsert,
					Table:      filter.Table,
					Reading:    vitals.FromModel(row),
					ReceivedAt: time.Now(),
				})
			}
		}
	}()
	return pipe, nil
}
