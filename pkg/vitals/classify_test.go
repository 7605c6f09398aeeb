package vitals

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"liyu1981.xyz/vital-signs-service/pkg/models"
)

func TestRangesFor(t *testing.T) {
	hr, ok := RangesFor(models.VitalKindHeartRate, Celsius)
	require.True(t, ok)
	assert.Equal(t, Threshold{CriticalMin: 60, CriticalMax: 140, WarningMin: 65, WarningMax: 135}, hr)

	tc, ok := RangesFor(models.VitalKindTemperature, "")
	require.True(t, ok)
	assert.Equal(t, 35.5, tc.CriticalMin)

	tf, ok := RangesFor(models.VitalKindTemperature, Fahrenheit)
	require.True(t, ok)
	assert.Equal(t, Threshold{CriticalMin: 97, CriticalMax: 99, WarningMin: 97.5, WarningMax: 98.5}, tf)

	_, ok = RangesFor(models.VitalKindBodyActivity, Celsius)
	assert.False(t, ok)

	// callers get a copy
	hr.CriticalMax = 1000
	again, _ := RangesFor(models.VitalKindHeartRate, Celsius)
	assert.Equal(t, 140.0, again.CriticalMax)
}

func TestClassifyHeartRate(t *testing.T) {
	cases := []struct {
		value float64
		want  Status
	}{
		{100, StatusNormal},
		{65, StatusNormal},
		{135, StatusNormal},
		{64, StatusWarning},
		{60, StatusWarning},
		{136, StatusWarning},
		{140, StatusWarning},
		{59, StatusCritical},
		{141, StatusCritical},
		{150, StatusCritical},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(models.VitalKindHeartRate, Float(c.value), Celsius), "hr=%v", c.value)
	}
}

func TestClassifyNoData(t *testing.T) {
	assert.Equal(t, StatusNoData, Classify(models.VitalKindHeartRate, nil, Celsius))
	assert.Equal(t, StatusNoData, Classify(models.VitalKindHeartRate, Float(0), Celsius))
	assert.Equal(t, StatusNoData, Classify(models.VitalKindTemperature, Float(math.NaN()), Celsius))
	assert.Equal(t, StatusNoData, Classify(models.VitalKindBodyActivity, Float(1), Celsius))
}

func TestClassifyTemperatureUnits(t *testing.T) {
	assert.Equal(t, StatusNormal, Classify(models.VitalKindTemperature, Float(36.8), Celsius))
	assert.Equal(t, StatusWarning, Classify(models.VitalKindTemperature, Float(37.8), Celsius))
	assert.Equal(t, StatusCritical, Classify(models.VitalKindTemperature, Float(38.5), Celsius))

	assert.Equal(t, StatusNormal, Classify(models.VitalKindTemperature, Float(98.1), Fahrenheit))
	assert.Equal(t, StatusWarning, Classify(models.VitalKindTemperature, Float(98.9), Fahrenheit))
	assert.Equal(t, StatusCritical, Classify(models.VitalKindTemperature, Float(99.5), Fahrenheit))
}

func TestClassifyBloodPressureAndActivity(t *testing.T) {
	assert.Equal(t, StatusNormal, ClassifyBloodPressure(&BloodPressure{Systolic: 120, Diastolic: 80}))
	assert.Equal(t, StatusWarning, ClassifyBloodPressure(&BloodPressure{Systolic: 120, Diastolic: 88}))
	assert.Equal(t, StatusCritical, ClassifyBloodPressure(&BloodPressure{Systolic: 120, Diastolic: 95}))
	assert.Equal(t, StatusCritical, ClassifyBloodPressure(&BloodPressure{Systolic: 160}))
	assert.Equal(t, StatusNoData, ClassifyBloodPressure(nil))

	assert.Equal(t, StatusCritical, ClassifyActivity(models.BodyActivityFallen))
	assert.Equal(t, StatusNormal, ClassifyActivity(models.BodyActivityActive))
	assert.Equal(t, StatusNoData, ClassifyActivity(models.BodyActivityNoData))
}

func TestDeviceStatus(t *testing.T) {
	r := Reading{HeartRate: Float(80), Temperature: Float(36.8), RespiratoryRate: Float(16)}
	assert.Equal(t, StatusNormal, DeviceStatus(r, Celsius))

	r.RespiratoryRate = Float(19)
	assert.Equal(t, StatusWarning, DeviceStatus(r, Celsius))

	r.HeartRate = Float(150)
	assert.Equal(t, StatusCritical, DeviceStatus(r, Celsius))

	// missing kinds are left out instead of counting as critical
	partial := Reading{Temperature: Float(36.8)}
	assert.Equal(t, StatusNormal, DeviceStatus(partial, Celsius))

	assert.Equal(t, StatusNoData, DeviceStatus(Reading{BloodPressure: &BloodPressure{Systolic: 200}}, Celsius))
}

func TestIsDropout(t *testing.T) {
	assert.True(t, IsDropout(Reading{}))
	assert.True(t, IsDropout(Reading{HeartRate: Float(0), Temperature: Float(0), BodyActivity: models.BodyActivityActive}))
	assert.False(t, IsDropout(Reading{RespiratoryRate: Float(15)}))
	assert.False(t, IsDropout(Reading{BloodPressure: &BloodPressure{Systolic: 120, Diastolic: 80}}))
}

func TestWorse(t *testing.T) {
	assert.Equal(t, StatusCritical, Worse(StatusWarning, StatusCritical))
	assert.Equal(t, StatusWarning, Worse(StatusWarning, StatusNormal))
	assert.Equal(t, StatusNormal, Worse(StatusNoData, StatusNormal))
}
