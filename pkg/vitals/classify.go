package vitals

import (
	"math"

	"liyu1981.xyz/vital-signs-service/pkg/models"
)

type Status string

const (
	StatusNoData   Status = "no_data"
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

func (s Status) rank() int {
	switch s {
	case StatusNormal:
		return 1
	case StatusWarning:
		return 2
	case StatusCritical:
		return 3
	}
	return 0
}

// Worse picks the higher priority status: critical, warning, normal, no data.
func Worse(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

func present(v *float64) bool {
	return v != nil && *v != 0 && !math.IsNaN(*v)
}

func Classify(kind models.VitalKind, value *float64, unit Unit) Status {
	if !present(value) {
		return StatusNoData
	}
	t, ok := RangesFor(kind, unit)
	if !ok {
		return StatusNoData
	}
	return t.classify(*value)
}

func ClassifyBloodPressure(bp *BloodPressure) Status {
	if bp == nil {
		return StatusNoData
	}
	status := Classify(models.VitalKindBloodPressure, &bp.Systolic, "")
	if present(&bp.Diastolic) {
		status = Worse(status, diastolic.classify(bp.Diastolic))
	}
	return status
}

func ClassifyActivity(activity models.BodyActivity) Status {
	switch activity {
	case models.BodyActivityFallen:
		return StatusCritical
	case models.BodyActivityActive:
		return StatusNormal
	}
	return StatusNoData
}

// ClassifyKind dispatches on kind for a whole reading.
func ClassifyKind(r Reading, kind models.VitalKind, unit Unit) Status {
	switch kind {
	case models.VitalKindBloodPressure:
		return ClassifyBloodPressure(r.BloodPressure)
	case models.VitalKindBodyActivity:
		return ClassifyActivity(r.BodyActivity)
	}
	return Classify(kind, r.Value(kind), unit)
}

var compositeKinds = []models.VitalKind{
	models.VitalKindHeartRate,
	models.VitalKindTemperature,
	models.VitalKindRespiratoryRate,
}

// DeviceStatus folds heart rate, temperature and respiratory rate. Kinds
// without data do not take part; no data at all yields StatusNoData.
func DeviceStatus(r Reading, unit Unit) Status {
	status := StatusNoData
	for _, kind := range compositeKinds {
		status = Worse(status, Classify(kind, r.Value(kind), unit))
		if status == StatusCritical {
			break
		}
	}
	return status
}

// IsDropout reports a tick where every numeric vital is zero or absent.
// Body activity alone does not keep a tick alive.
func IsDropout(r Reading) bool {
	return !present(r.HeartRate) &&
		!present(r.Temperature) &&
		!present(r.RespiratoryRate) &&
		r.BloodPressure == nil
}
