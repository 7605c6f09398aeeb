package vitals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"liyu1981.xyz/vital-signs-service/pkg/models"
)

const (
	DefaultCriticalCount = 5
	DefaultCooldown      = 30 * time.Second
)

type Alert struct {
	ID       string           `json:"id"`
	DeviceID string           `json:"device_id"`
	Kind     models.VitalKind `json:"kind"`
	Severity models.Severity  `json:"severity"`
	Value    float64          `json:"value"`
	Reading  string           `json:"reading"`
	Message  string           `json:"message"`
	Time     time.Time        `json:"time"`
}

func (a Alert) Model() models.Alert {
	return models.Alert{
		AlertID:   a.ID,
		DeviceID:  a.DeviceID,
		Timestamp: a.Time,
		Kind:      a.Kind,
		Severity:  a.Severity,
		Value:     a.Value,
		Reading:   a.Reading,
		Message:   a.Message,
	}
}

func AlertFromModel(m models.Alert) Alert {
	return Alert{
		ID:       m.AlertID,
		DeviceID: m.DeviceID,
		Kind:     m.Kind,
		Severity: m.Severity,
		Value:    m.Value,
		Reading:  m.Reading,
		Message:  m.Message,
		Time:     m.Timestamp,
	}
}

// Sample is what the emitter sees of one reading for its kind. At is the
// reading timestamp, used with Value to recognise re-delivered samples.
type Sample struct {
	Value   *float64
	Display string
	At      time.Time
}

type Phase string

const (
	PhaseNormal          Phase = "normal"
	PhaseAccumulating    Phase = "accumulating_critical"
	PhaseAlertedRecently Phase = "alerted_recently"
)

// KindState is the exported view of one emitter.
type KindState struct {
	Kind                models.VitalKind `json:"kind"`
	Status              Status           `json:"status"`
	CurrentValue        *float64         `json:"current_value"`
	Display             string           `json:"display"`
	ConsecutiveCritical int              `json:"consecutive_critical_count"`
	LastAlertTime       time.Time        `json:"last_alert_time"`
	IsCritical          bool             `json:"is_critical"`
}

// Emitter debounces critical samples for one (device, kind) pair: an alert
// needs threshold consecutive critical samples and at least cooldown since
// the previous alert. Not safe for concurrent use.
type Emitter struct {
	deviceID  string
	kind      models.VitalKind
	unit      Unit
	threshold int
	cooldown  time.Duration
	newID     func() string

	state  KindState
	last   Sample
	primed bool
}

func NewEmitter(deviceID string, kind models.VitalKind, unit Unit, threshold int, cooldown time.Duration) *Emitter {
	if threshold <= 0 {
		threshold = DefaultCriticalCount
	}
	return &Emitter{
		deviceID:  deviceID,
		kind:      kind,
		unit:      unit,
		threshold: threshold,
		cooldown:  cooldown,
		newID:     uuid.NewString,
		state:     KindState{Kind: kind, Status: StatusNoData},
	}
}

// Observe feeds one classified sample and returns the alert it triggers, if
// any. now is the processing time the cooldown is measured against.
func (e *Emitter) Observe(s Sample, status Status, now time.Time) *Alert {
	if e.primed && s.At.Equal(e.last.At) && sameValue(s.Value, e.last.Value) {
		return nil
	}
	e.primed = true
	e.last = s

	e.state.Status = status
	e.state.CurrentValue = s.Value
	e.state.Display = s.Display

	if status != StatusCritical {
		e.state.ConsecutiveCritical = 0
		e.state.IsCritical = false
		return nil
	}

	e.state.IsCritical = true
	e.state.ConsecutiveCritical++
	if e.state.ConsecutiveCritical < e.threshold {
		return nil
	}
	if !e.state.LastAlertTime.IsZero() && now.Sub(e.state.LastAlertTime) <= e.cooldown {
		return nil
	}

	e.state.LastAlertTime = now
	e.state.ConsecutiveCritical = 0

	alert := &Alert{
		ID:       e.newID(),
		DeviceID: e.deviceID,
		Kind:     e.kind,
		Severity: models.SeverityCritical,
		Reading:  s.Display,
		Message:  e.message(s),
		Time:     now,
	}
	if s.Value != nil {
		alert.Value = *s.Value
	}
	return alert
}

// Reset clears the counter and severity but keeps the last alert time, so a
// dropout cannot be used to dodge the cooldown.
func (e *Emitter) Reset() {
	e.state.Status = StatusNoData
	e.state.CurrentValue = nil
	e.state.Display = ""
	e.state.ConsecutiveCritical = 0
	e.state.IsCritical = false
	e.primed = false
	e.last = Sample{}
}

func (e *Emitter) State() KindState {
	s := e.state
	if s.CurrentValue != nil {
		v := *s.CurrentValue
		s.CurrentValue = &v
	}
	return s
}

func (e *Emitter) Phase(now time.Time) Phase {
	if e.state.ConsecutiveCritical > 0 {
		return PhaseAccumulating
	}
	if !e.state.LastAlertTime.IsZero() && now.Sub(e.state.LastAlertTime) <= e.cooldown {
		return PhaseAlertedRecently
	}
	return PhaseNormal
}

func (e *Emitter) message(s Sample) string {
	label := KindLabel(e.kind)
	if e.kind == models.VitalKindBodyActivity {
		return fmt.Sprintf("%s critical: %s", label, s.Display)
	}
	msg := fmt.Sprintf("%s critical: %s %s", label, s.Display, UnitLabel(e.kind, e.unit))
	if t, ok := RangesFor(e.kind, e.unit); ok {
		msg += fmt.Sprintf(" (safe range %g-%g)", t.CriticalMin, t.CriticalMax)
	}
	return msg
}

func KindLabel(kind models.VitalKind) string {
	label := strings.ReplaceAll(string(kind), "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func sameValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
