package vitals

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"liyu1981.xyz/vital-signs-service/pkg/models"
)

type BloodPressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

func (bp BloodPressure) String() string {
	if bp.Diastolic == 0 {
		return strconv.FormatFloat(bp.Systolic, 'f', -1, 64)
	}
	return fmt.Sprintf("%s/%s",
		strconv.FormatFloat(bp.Systolic, 'f', -1, 64),
		strconv.FormatFloat(bp.Diastolic, 'f', -1, 64))
}

// ParseBloodPressure accepts "120/80" or a bare systolic "120". Anything
// else, including zero or non finite parts, reads as absent.
func ParseBloodPressure(s string) *BloodPressure {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	parts := strings.SplitN(s, "/", 2)
	sys, ok := parseMeasure(parts[0])
	if !ok {
		return nil
	}
	bp := &BloodPressure{Systolic: sys}
	if len(parts) == 2 {
		dia, ok := parseMeasure(parts[1])
		if !ok {
			return nil
		}
		bp.Diastolic = dia
	}
	return bp
}

func parseMeasure(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

// Reading is an immutable, validated sample from one device tick. Absent
// measurements are nil.
type Reading struct {
	DeviceID        string
	HeartRate       *float64
	Temperature     *float64
	RespiratoryRate *float64
	BloodPressure   *BloodPressure
	BodyActivity    models.BodyActivity
	Timestamp       time.Time
}

// Value returns the numeric sample for kind. Blood pressure reports its
// systolic component; body activity has no numeric value.
func (r Reading) Value(kind models.VitalKind) *float64 {
	switch kind {
	case models.VitalKindHeartRate:
		return r.HeartRate
	case models.VitalKindTemperature:
		return r.Temperature
	case models.VitalKindRespiratoryRate:
		return r.RespiratoryRate
	case models.VitalKindBloodPressure:
		if r.BloodPressure == nil {
			return nil
		}
		sys := r.BloodPressure.Systolic
		return &sys
	}
	return nil
}

// Display renders kind the way the dashboard shows it, "--" when absent.
func (r Reading) Display(kind models.VitalKind) string {
	switch kind {
	case models.VitalKindBloodPressure:
		if r.BloodPressure == nil {
			return "--"
		}
		return r.BloodPressure.String()
	case models.VitalKindBodyActivity:
		if r.BodyActivity == "" {
			return string(models.BodyActivityNoData)
		}
		return string(r.BodyActivity)
	}
	v := r.Value(kind)
	if !present(v) {
		return "--"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Clone copies r including the measurements behind its pointers.
func (r Reading) Clone() Reading {
	c := r
	c.HeartRate = copyFloat(r.HeartRate)
	c.Temperature = copyFloat(r.Temperature)
	c.RespiratoryRate = copyFloat(r.RespiratoryRate)
	if r.BloodPressure != nil {
		bp := *r.BloodPressure
		c.BloodPressure = &bp
	}
	return c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func FromModel(m models.Reading) Reading {
	r := Reading{
		DeviceID:        m.MacAddress,
		HeartRate:       cleanFloat(m.HeartRate),
		Temperature:     cleanFloat(m.Temperature),
		RespiratoryRate: cleanFloat(m.RespiratoryRate),
		BloodPressure:   ParseBloodPressure(m.BloodPressure),
		BodyActivity:    ParseBodyActivity(m.BodyActivity),
		Timestamp:       m.Timestamp,
	}
	return r
}

func (r Reading) Model() models.Reading {
	m := models.Reading{
		MacAddress:      r.DeviceID,
		HeartRate:       r.HeartRate,
		Temperature:     r.Temperature,
		RespiratoryRate: r.RespiratoryRate,
		BodyActivity:    string(r.BodyActivity),
		Timestamp:       r.Timestamp,
	}
	if r.BloodPressure != nil {
		m.BloodPressure = r.BloodPressure.String()
	}
	return m
}

func ParseBodyActivity(s string) models.BodyActivity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return models.BodyActivityActive
	case "fallen":
		return models.BodyActivityFallen
	}
	return models.BodyActivityNoData
}

func cleanFloat(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v == 0 {
		return nil
	}
	c := *v
	return &c
}

func Float(v float64) *float64 {
	return &v
}
