package grpc

import (
	"context"
	"time"

	z "github.com/Oudwins/zog"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/types/known/structpb"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

func validateDeviceID(deviceID *string) z.ZogIssueList {
	var deviceIdValidator = z.String().Min(1).Required()
	return deviceIdValidator.Validate(deviceID)
}

func deviceIDField(fields map[string]any) string {
	id, _ := fields[FieldDeviceID].(string)
	return id
}

// ReadingPayload is the "reading" object of a PostReading call.
type ReadingPayload struct {
	Timestamp       time.Time `json:"timestamp"`
	HeartRate       float64   `json:"heart_rate" zog:"heart_rate"`
	Temperature     float64   `json:"temperature"`
	RespiratoryRate float64   `json:"respiratory_rate" zog:"respiratory_rate"`
	BloodPressure   string    `json:"blood_pressure" zog:"blood_pressure"`
	BodyActivity    string    `json:"body_activity" zog:"body_activity"`
}

var readingPayloadSchema = z.Struct(z.Shape{
	"Timestamp":       z.Time().Required(),
	"HeartRate":       z.Float64().GTE(0),
	"Temperature":     z.Float64().GTE(0),
	"RespiratoryRate": z.Float64().GTE(0),
	"BloodPressure":   z.String().Max(16),
	"BodyActivity":    z.String().Max(16),
})

func (p ReadingPayload) Reading(deviceID string) vitals.Reading {
	return vitals.FromModel(models.Reading{
		MacAddress:      deviceID,
		HeartRate:       &p.HeartRate,
		Temperature:     &p.Temperature,
		RespiratoryRate: &p.RespiratoryRate,
		BloodPressure:   p.BloodPressure,
		BodyActivity:    p.BodyActivity,
		Timestamp:       p.Timestamp,
	})
}

func (s *VitalsServer) PostReading(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	deviceID := deviceIDField(fields)
	if err := validateDeviceID(&deviceID); err != nil {
		return failf("validation error: %v", err)
	}

	raw, ok := fields["reading"].(map[string]any)
	if !ok {
		return fail("validation error: reading can not be empty")
	}
	var payload ReadingPayload
	if err := readingPayloadSchema.Parse(raw, &payload); err != nil {
		return failf("validation error: %v", err)
	}
	if payload.BloodPressure != "" && vitals.ParseBloodPressure(payload.BloodPressure) == nil {
		return failf("validation error: blood_pressure %q is not like 120/80", payload.BloodPressure)
	}

	reading := payload.Reading(deviceID).Model()
	if err := s.Iot.Reading.StoreReading(ctx, &reading); err != nil {
		return fail(err.Error())
	}

	if s.AutoWatch && s.Supervisor != nil {
		s.Supervisor.Watch(deviceID)
	}

	return respond(true, "OK", map[string]any{"reading": reading})
}

func (s *VitalsServer) GetAlerts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	deviceID := deviceIDField(fields)
	if err := validateDeviceID(&deviceID); err != nil {
		return failf("validation error: %v", err)
	}

	limit := vitals.DefaultAlertLogSize
	if v, ok := fields["limit"].(float64); ok {
		if v < 1 {
			return fail("validation error: limit must be positive")
		}
		limit = int(v)
	}

	alerts, err := s.Iot.Alert.GetDeviceAlerts(ctx, deviceID, limit)
	if err != nil {
		return fail(err.Error())
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	return respond(true, "OK", map[string]any{"alerts": alerts})
}

type DeviceStatus struct {
	DeviceID             string          `json:"device_id"`
	Unit                 vitals.Unit     `json:"unit"`
	Connected            bool            `json:"connected"`
	LastUpdateAgeSeconds *float64        `json:"last_update_age_seconds"`
	Latest               *models.Reading `json:"latest"`
	vitals.Snapshot
}

func (s *VitalsServer) GetDeviceStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	deviceID := deviceIDField(req.AsMap())
	if err := validateDeviceID(&deviceID); err != nil {
		return failf("validation error: %v", err)
	}

	if s.Supervisor == nil {
		return fail("device is not watched")
	}
	monitor, ok := s.Supervisor.Monitor(deviceID)
	if !ok {
		return fail("device is not watched")
	}

	snap := monitor.Snapshot()
	unit := s.Unit
	if unit == "" {
		unit = vitals.Celsius
	}
	device := DeviceStatus{DeviceID: deviceID, Unit: unit, Snapshot: snap}
	if snap.Latest != nil {
		latest := snap.Latest.Model()
		device.Latest = &latest
	}
	if age, ok := monitor.LastUpdateAge(); ok {
		secs := age.Seconds()
		device.LastUpdateAgeSeconds = &secs
	}
	if s.Liveness != nil {
		device.Connected = s.Liveness.IsConnected(deviceID, time.Now())
	}

	return respond(true, "OK", map[string]any{"device": device})
}

type LimiterPayload struct {
	DeviceRate  float64 `json:"device_rate" zog:"device_rate"`
	DeviceBurst float64 `json:"device_burst" zog:"device_burst"`
}

var limiterPayloadSchema = z.Struct(z.Shape{
	"DeviceRate":  z.Float64().Required(),
	"DeviceBurst": z.Float64().GTE(0).Required(),
})

func (s *VitalsServer) PostLimiter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	deviceID := deviceIDField(fields)
	if err := validateDeviceID(&deviceID); err != nil {
		return failf("validation error: %v", err)
	}

	var payload LimiterPayload
	if err := limiterPayloadSchema.Parse(fields, &payload); err != nil {
		return failf("validation error: %v", err)
	}

	if s.RateLimiterStore == nil {
		return fail("RateLimiterStore is not used. No effect.")
	}

	s.RateLimiterStore.SetLimiter(deviceID, rate.Limit(payload.DeviceRate), int(payload.DeviceBurst))
	return respond(true, "OK", nil)
}
