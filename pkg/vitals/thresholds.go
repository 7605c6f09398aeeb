package vitals

import "liyu1981.xyz/vital-signs-service/pkg/models"

type Unit string

const (
	Celsius    Unit = "C"
	Fahrenheit Unit = "F"
)

// Threshold bands are inclusive: a value equal to a bound is inside.
type Threshold struct {
	CriticalMin float64 `json:"critical_min"`
	CriticalMax float64 `json:"critical_max"`
	WarningMin  float64 `json:"warning_min"`
	WarningMax  float64 `json:"warning_max"`
}

func (t Threshold) classify(v float64) Status {
	if v < t.CriticalMin || v > t.CriticalMax {
		return StatusCritical
	}
	if v < t.WarningMin || v > t.WarningMax {
		return StatusWarning
	}
	return StatusNormal
}

type rangeKey struct {
	kind models.VitalKind
	unit Unit
}

// Adult resting reference ranges. Heart rate, respiratory rate and blood
// pressure do not depend on the temperature unit.
var thresholds = map[rangeKey]Threshold{
	{models.VitalKindHeartRate, ""}:        {CriticalMin: 60, CriticalMax: 140, WarningMin: 65, WarningMax: 135},
	{models.VitalKindTemperature, Celsius}: {CriticalMin: 35.5, CriticalMax: 38.0, WarningMin: 36.0, WarningMax: 37.5},
	{models.VitalKindTemperature, Fahrenheit}: {
		CriticalMin: 97.0, CriticalMax: 99.0, WarningMin: 97.5, WarningMax: 98.5,
	},
	{models.VitalKindRespiratoryRate, ""}: {CriticalMin: 12, CriticalMax: 20, WarningMin: 14, WarningMax: 18},
	{models.VitalKindBloodPressure, ""}:   {CriticalMin: 90, CriticalMax: 140, WarningMin: 100, WarningMax: 130},
}

var diastolic = Threshold{CriticalMin: 60, CriticalMax: 90, WarningMin: 65, WarningMax: 85}

// RangesFor returns a copy of the bands for kind. Body activity is
// categorical and has none.
func RangesFor(kind models.VitalKind, unit Unit) (Threshold, bool) {
	if kind == models.VitalKindTemperature {
		if unit == "" {
			unit = Celsius
		}
		t, ok := thresholds[rangeKey{kind, unit}]
		return t, ok
	}
	t, ok := thresholds[rangeKey{kind, ""}]
	return t, ok
}

func DiastolicRanges() Threshold {
	return diastolic
}

func UnitLabel(kind models.VitalKind, unit Unit) string {
	switch kind {
	case models.VitalKindHeartRate:
		return "bpm"
	case models.VitalKindTemperature:
		if unit == Fahrenheit {
			return "°F"
		}
		return "°C"
	case models.VitalKindRespiratoryRate:
		return "breaths/min"
	case models.VitalKindBloodPressure:
		return "mmHg"
	}
	return ""
}
