package models

import "time"

type VitalKind string

const (
	VitalKindHeartRate       VitalKind = "heart_rate"
	VitalKindTemperature     VitalKind = "temperature"
	VitalKindRespiratoryRate VitalKind = "respiratory_rate"
	VitalKindBloodPressure   VitalKind = "blood_pressure"
	VitalKindBodyActivity    VitalKind = "body_activity"
)

var VitalKinds = []VitalKind{
	VitalKindHeartRate,
	VitalKindTemperature,
	VitalKindRespiratoryRate,
	VitalKindBloodPressure,
	VitalKindBodyActivity,
}

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type BodyActivity string

const (
	BodyActivityActive BodyActivity = "Active"
	BodyActivityFallen BodyActivity = "Fallen"
	BodyActivityNoData BodyActivity = "NoData"
)

// Reading is one row of the readings table as the devices write it.
type Reading struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	MacAddress      string    `gorm:"index:idx_mac_ts,priority:1;not null" json:"mac_address"`
	HeartRate       *float64  `json:"heart_rate"`
	Temperature     *float64  `json:"temperature"`
	RespiratoryRate *float64  `json:"respiratory_rate"`
	BloodPressure   string    `gorm:"type:varchar(16)" json:"blood_pressure"`
	BodyActivity    string    `gorm:"type:varchar(16)" json:"body_activity"`
	Timestamp       time.Time `gorm:"index:idx_mac_ts,priority:2;not null" json:"timestamp"`
}

func (Reading) TableName() string {
	return "health_status"
}

type Alert struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	AlertID   string    `gorm:"uniqueIndex;not null" json:"id"`
	DeviceID  string    `gorm:"index" json:"device_id"`
	Timestamp time.Time `json:"time"`
	Kind      VitalKind `gorm:"type:varchar(20);check:kind IN ('heart_rate','temperature','respiratory_rate','blood_pressure','body_activity')" json:"kind"`
	Severity  Severity  `gorm:"type:varchar(10);check:severity IN ('warning','critical')" json:"severity"`
	Value     float64   `json:"value"`
	Reading   string    `json:"reading"`
	Message   string    `json:"message"`
}

// Device rows are created on first reading. Connected is computed at read
// time from LastActivity and never stored.
type Device struct {
	MacAddress   string    `gorm:"primaryKey" json:"mac_address"`
	EmployeeName string    `json:"employee_name"`
	LastActivity time.Time `json:"last_activity"`
	Connected    bool      `gorm:"-" json:"connected"`
}

type Employee struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"index;not null" json:"name"`
	Age           int       `json:"age"`
	Gender        string    `json:"gender"`
	Location      string    `json:"location"`
	BloodGroup    string    `json:"blood_group"`
	ContactNumber string    `json:"contact_number"`
	Height        float64   `json:"height"`
	Weight        float64   `json:"weight"`
	CreatedAt     time.Time `json:"created_at"`
}

// DeviceSummary is a device row with its reading stats.
type DeviceSummary struct {
	Device
	LastReadingAt *time.Time `json:"last_reading_at"`
	ReadingCount  int64      `json:"reading_count"`
}
