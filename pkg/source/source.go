// Package source defines the boundary to the reading backend: a newest-first
// read query, a roster write, and change subscriptions delivered on a
// channel.
package source

import (
	"context"
	"fmt"
	"time"

	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventAll    = "*"

	DeviceColumn = "mac_address"
)

// Filter selects row changes: Event is one of the Event constants, Column and
// Value an optional equality filter.
type Filter struct {
	Table  string
	Event  string
	Column string
	Value  string
}

func DeviceFilter(table string, deviceID string) Filter {
	return Filter{Table: table, Event: EventAll, Column: DeviceColumn, Value: deviceID}
}

// Expr renders the column filter in the backend's "col=eq.value" form.
func (f Filter) Expr() string {
	if f.Column == "" {
		return ""
	}
	return fmt.Sprintf("%s=eq.%s", f.Column, f.Value)
}

func (f Filter) MatchesEvent(event string) bool {
	return f.Event == "" || f.Event == EventAll || f.Event == event
}

type Change struct {
	Event      string
	Table      string
	Reading    vitals.Reading
	ReceivedAt time.Time
}

// Subscription must be closed by its owner. Changes is closed once the
// subscription ends, after which Err reports why (nil after Close).
type Subscription interface {
	Changes() <-chan Change
	Err() error
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
}

// Reader returns up to n readings for a device, newest first.
type Reader interface {
	LatestReadings(ctx context.Context, deviceID string, n int) ([]vitals.Reading, error)
}

type RosterWriter interface {
	InsertEmployee(ctx context.Context, employee *models.Employee) error
}

// TeeRoster writes an employee to every writer in order and stops at the
// first failure. The first writer assigns the id the rest reuse.
type TeeRoster []RosterWriter

func (t TeeRoster) InsertEmployee(ctx context.Context, employee *models.Employee) error {
	for _, w := range t {
		if err := w.InsertEmployee(ctx, employee); err != nil {
			return err
		}
	}
	return nil
}
