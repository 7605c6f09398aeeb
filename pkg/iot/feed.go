package iot

import (
	"sync"

	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
)

const DefaultFeedBuffer = 64

// Feed fans stored readings out to in-process subscribers. Publish never
// blocks: a subscriber whose buffer is full misses the reading.
type Feed struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*feedSub
}

type feedSub struct {
	deviceID string
	ch       chan models.Reading
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]*feedSub)}
}

// Subscribe delivers readings for deviceID, or for every device when
// deviceID is empty. The returned cancel closes the channel and is safe to
// call more than once.
func (f *Feed) Subscribe(deviceID string, buffer int) (<-chan models.Reading, func()) {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	sub := &feedSub{deviceID: deviceID, ch: make(chan models.Reading, buffer)}
	f.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			close(sub.ch)
		})
	}
}

func (f *Feed) Publish(reading models.Reading) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		if sub.deviceID != "" && sub.deviceID != reading.MacAddress {
			continue
		}
		select {
		case sub.ch <- reading:
		default:
			common.GetCategoryLogger(common.LoggerNameVitalsCore, common.LoggerCategoryPush).
				Warn("Feed subscriber is full, dropping reading",
					zap.String("device_id", reading.MacAddress),
					zap.Time("timestamp", reading.Timestamp))
		}
	}
}

func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
