package vitals

import (
	"sync"
	"time"

	"liyu1981.xyz/vital-signs-service/pkg/models"
)

const DefaultHistoryCapacity = 10

// ChartKinds are the kinds with a history window. Blood pressure charts its
// systolic component.
var ChartKinds = []models.VitalKind{
	models.VitalKindHeartRate,
	models.VitalKindTemperature,
	models.VitalKindRespiratoryRate,
	models.VitalKindBloodPressure,
}

type MonitorConfig struct {
	Unit            Unit
	CriticalCount   int
	Cooldown        time.Duration
	HistoryCapacity int
	AlertLogSize    int
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Unit:            Celsius,
		CriticalCount:   DefaultCriticalCount,
		Cooldown:        DefaultCooldown,
		HistoryCapacity: DefaultHistoryCapacity,
		AlertLogSize:    DefaultAlertLogSize,
	}
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDropout   Outcome = "dropout"
	OutcomeStale     Outcome = "stale"
	OutcomeDuplicate Outcome = "duplicate"
)

// Accepted reports whether the reading moved the monitor forward.
func (o Outcome) Accepted() bool {
	return o == OutcomeApplied || o == OutcomeDropout
}

type Result struct {
	Outcome Outcome `json:"outcome"`
	Status  Status  `json:"status"`
	Alerts  []Alert `json:"alerts"`
}

// Snapshot is a consistent copy of one device's derived state.
type Snapshot struct {
	DeviceID      string                         `json:"device_id"`
	Status        Status                         `json:"status"`
	Kinds         map[models.VitalKind]KindState `json:"kinds"`
	Latest        *Reading                       `json:"-"`
	LastReadingAt time.Time                      `json:"last_reading_at"`
	LastUpdate    time.Time                      `json:"last_update"`
	Applied       int                            `json:"applied"`
	Alerts        []Alert                        `json:"alerts"`
}

// Monitor is the per-device pipeline: classify, debounce, chart. Apply is
// meant to be called from a single goroutine; readers may call the snapshot
// methods concurrently.
type Monitor struct {
	mu       sync.RWMutex
	deviceID string
	cfg      MonitorConfig
	clock    Clock

	emitters map[models.VitalKind]*Emitter
	history  map[models.VitalKind]*History
	alerts   *AlertLog

	status      Status
	latest      *Reading
	lastApplied time.Time
	lastUpdate  time.Time
	applied     int
}

func NewMonitor(deviceID string, cfg MonitorConfig, clock Clock) *Monitor {
	if clock == nil {
		clock = RealClock()
	}
	if cfg.Unit == "" {
		cfg.Unit = Celsius
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = DefaultHistoryCapacity
	}

	m := &Monitor{
		deviceID: deviceID,
		cfg:      cfg,
		clock:    clock,
		emitters: make(map[models.VitalKind]*Emitter, len(models.VitalKinds)),
		history:  make(map[models.VitalKind]*History, len(ChartKinds)),
		alerts:   NewAlertLog(cfg.AlertLogSize),
		status:   StatusNoData,
	}
	for _, kind := range models.VitalKinds {
		threshold := cfg.CriticalCount
		if kind == models.VitalKindBodyActivity {
			// a fall is alerted on the first sample
			threshold = 1
		}
		m.emitters[kind] = NewEmitter(deviceID, kind, cfg.Unit, threshold, cfg.Cooldown)
	}
	for _, kind := range ChartKinds {
		m.history[kind] = NewHistory(cfg.HistoryCapacity)
	}
	return m
}

func (m *Monitor) DeviceID() string {
	return m.deviceID
}

// Apply runs one reading through the pipeline. Readings older than the last
// applied one are stale and readings with the same timestamp are duplicates;
// both leave the monitor untouched.
func (m *Monitor) Apply(r Reading) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastApplied.IsZero() {
		if r.Timestamp.Before(m.lastApplied) {
			return Result{Outcome: OutcomeStale, Status: m.status}
		}
		if r.Timestamp.Equal(m.lastApplied) {
			return Result{Outcome: OutcomeDuplicate, Status: m.status}
		}
	}

	// the monitor keeps pointers into r past this call
	r = r.Clone()
	now := m.clock.Now()
	m.lastApplied = r.Timestamp
	m.lastUpdate = now
	m.applied++
	latest := r
	m.latest = &latest

	if IsDropout(r) {
		for _, e := range m.emitters {
			e.Reset()
		}
		m.status = StatusNoData
		return Result{Outcome: OutcomeDropout, Status: m.status}
	}

	var alerts []Alert
	for _, kind := range models.VitalKinds {
		sample := Sample{Value: r.Value(kind), Display: r.Display(kind), At: r.Timestamp}
		if a := m.emitters[kind].Observe(sample, ClassifyKind(r, kind, m.cfg.Unit), now); a != nil {
			m.alerts.Add(*a)
			alerts = append(alerts, *a)
		}
	}
	for _, kind := range ChartKinds {
		m.history[kind].Append(NewHistoryPoint(r.Timestamp, r.Value(kind)))
	}
	m.status = DeviceStatus(r, m.cfg.Unit)

	return Result{Outcome: OutcomeApplied, Status: m.status, Alerts: alerts}
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		DeviceID:      m.deviceID,
		Status:        m.status,
		Kinds:         make(map[models.VitalKind]KindState, len(m.emitters)),
		LastReadingAt: m.lastApplied,
		LastUpdate:    m.lastUpdate,
		Applied:       m.applied,
		Alerts:        m.alerts.Snapshot(),
	}
	for kind, e := range m.emitters {
		s.Kinds[kind] = e.State()
	}
	if m.latest != nil {
		latest := m.latest.Clone()
		s.Latest = &latest
	}
	return s
}

func (m *Monitor) History(kind models.VitalKind) []HistoryPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.history[kind]
	if !ok {
		return nil
	}
	return h.Snapshot()
}

func (m *Monitor) Histories() map[models.VitalKind][]HistoryPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[models.VitalKind][]HistoryPoint, len(m.history))
	for kind, h := range m.history {
		out[kind] = h.Snapshot()
	}
	return out
}

func (m *Monitor) Alerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alerts.Snapshot()
}

func (m *Monitor) KindState(kind models.VitalKind) KindState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.emitters[kind]
	if !ok {
		return KindState{Kind: kind, Status: StatusNoData}
	}
	return e.State()
}

func (m *Monitor) Phase(kind models.VitalKind) Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.emitters[kind]
	if !ok {
		return PhaseNormal
	}
	return e.Phase(m.clock.Now())
}

func (m *Monitor) LastApplied() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastApplied
}

// LastUpdateAge is the time since the last accepted reading, false before the
// first one.
func (m *Monitor) LastUpdateAge() (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastUpdate.IsZero() {
		return 0, false
	}
	return m.clock.Now().Sub(m.lastUpdate), true
}
