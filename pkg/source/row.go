package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/telemetry"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

var (
	ErrMissingDevice    = errors.New("row has no mac_address")
	ErrMissingTimestamp = errors.New("row has no usable timestamp")
)

// timestamp columns in order of preference
var timestampColumns = []string{"timestamp", "updated_at", "created_at"}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999",
}

// ParseRow validates a dynamically shaped backend row. Rows without a device
// id or timestamp are rejected; malformed measurements become absent values
// instead of failing the row.
func ParseRow(row map[string]any) (vitals.Reading, error) {
	var r vitals.Reading

	mac, _ := row[DeviceColumn].(string)
	mac = strings.TrimSpace(mac)
	if mac == "" {
		return r, ErrMissingDevice
	}
	r.DeviceID = mac

	ts, ok := rowTimestamp(row)
	if !ok {
		return r, fmt.Errorf("%w (device %s)", ErrMissingTimestamp, mac)
	}
	r.Timestamp = ts

	r.HeartRate = number(row["heart_rate"])
	r.Temperature = number(row["temperature"])
	r.RespiratoryRate = number(row["respiratory_rate"])

	switch bp := row["blood_pressure"].(type) {
	case string:
		r.BloodPressure = vitals.ParseBloodPressure(bp)
	default:
		if v := number(bp); v != nil {
			r.BloodPressure = &vitals.BloodPressure{Systolic: *v}
		}
	}

	activity, _ := row["body_activity"].(string)
	r.BodyActivity = vitals.ParseBodyActivity(activity)

	return r, nil
}

// ParseJSON is ParseRow for a raw JSON object.
func ParseJSON(payload []byte) (vitals.Reading, error) {
	row := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&row); err != nil {
		return vitals.Reading{}, fmt.Errorf("decode row: %w", err)
	}
	return ParseRow(row)
}

func rowTimestamp(row map[string]any) (time.Time, bool) {
	for _, col := range timestampColumns {
		switch v := row[col].(type) {
		case time.Time:
			if !v.IsZero() {
				return v, true
			}
		case string:
			for _, layout := range timestampLayouts {
				if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}

func number(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return nil
	}
	return &f
}

// Quarantine logs and counts a rejected row. origin names the adapter.
func Quarantine(origin string, row any, err error) {
	reason := "invalid"
	switch {
	case errors.Is(err, ErrMissingDevice):
		reason = "missing_device"
	case errors.Is(err, ErrMissingTimestamp):
		reason = "missing_timestamp"
	}
	telemetry.RowsRejected.WithLabelValues(origin, reason).Inc()
	common.GetCategoryLogger(common.LoggerNameSource, common.LoggerCategoryReading).
		Warn("Quarantined backend row", zap.String("source", origin), zap.Any("row", row), zap.Error(err))
}
