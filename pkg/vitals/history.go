package vitals

import "time"

const DisplayTimeLayout = "15:04:05"

type HistoryPoint struct {
	Time  string    `json:"time"`
	At    time.Time `json:"at"`
	Value *float64  `json:"value"`
}

func NewHistoryPoint(at time.Time, value *float64) HistoryPoint {
	p := HistoryPoint{Time: at.Format(DisplayTimeLayout), At: at}
	if present(value) {
		v := *value
		p.Value = &v
	}
	return p
}

// History is a fixed capacity chart window, oldest first. It is not safe for
// concurrent use; Monitor guards it.
type History struct {
	capacity int
	points   []HistoryPoint
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{capacity: capacity, points: make([]HistoryPoint, 0, capacity)}
}

func (h *History) Append(p HistoryPoint) {
	if len(h.points) == h.capacity {
		copy(h.points, h.points[1:])
		h.points = h.points[:len(h.points)-1]
	}
	h.points = append(h.points, p)
}

// Snapshot copies the window; callers may keep or mutate the result.
func (h *History) Snapshot() []HistoryPoint {
	out := make([]HistoryPoint, len(h.points))
	for i, p := range h.points {
		if p.Value != nil {
			v := *p.Value
			p.Value = &v
		}
		out[i] = p
	}
	return out
}

func (h *History) Len() int {
	return len(h.points)
}

func (h *History) Capacity() int {
	return h.capacity
}
