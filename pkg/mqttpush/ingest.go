package mqttpush

import (
	"context"

	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/iot"
	"liyu1981.xyz/vital-signs-service/pkg/source"
)

// Ingest stores every reading pushed on the wildcard reading topic until ctx
// is done. Stored readings reach local subscribers through the store's feed.
func (c *Client) Ingest(ctx context.Context, store iot.IReading) error {
	sub, err := c.Subscribe(ctx, source.Filter{Event: source.EventInsert})
	if err != nil {
		return err
	}

	go func() {
		defer sub.Close()
		for change := range sub.Changes() {
			m := change.Reading.Model()
			if err := store.StoreReading(ctx, &m); err != nil {
				c.logger.Error("Storing pushed reading failed",
					zap.String("device_id", m.MacAddress), zap.Error(err))
			}
		}
	}()
	return nil
}
