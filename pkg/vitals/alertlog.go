package vitals

const DefaultAlertLogSize = 6

// AlertLog keeps the newest alerts first and drops the oldest past its size.
type AlertLog struct {
	size   int
	alerts []Alert
}

func NewAlertLog(size int) *AlertLog {
	if size <= 0 {
		size = DefaultAlertLogSize
	}
	return &AlertLog{size: size, alerts: make([]Alert, 0, size)}
}

func (l *AlertLog) Add(a Alert) {
	if len(l.alerts) < l.size {
		l.alerts = append(l.alerts, Alert{})
	}
	copy(l.alerts[1:], l.alerts[:len(l.alerts)-1])
	l.alerts[0] = a
}

func (l *AlertLog) Snapshot() []Alert {
	out := make([]Alert, len(l.alerts))
	copy(out, l.alerts)
	return out
}

func (l *AlertLog) Len() int {
	return len(l.alerts)
}
