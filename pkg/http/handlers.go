package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/iot"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"
)

const (
	DefaultReadingsLimit = vitals.DefaultHistoryCapacity
	MaxReadingsLimit     = 100
)

var errBadLimit = errors.New("limit must be a positive integer")

// ReadingRequest is one device tick. Zero or missing measurements mean no
// data.
type ReadingRequest struct {
	Timestamp       time.Time `json:"timestamp"`
	HeartRate       float64   `json:"heart_rate" zog:"heart_rate"`
	Temperature     float64   `json:"temperature"`
	RespiratoryRate float64   `json:"respiratory_rate" zog:"respiratory_rate"`
	BloodPressure   string    `json:"blood_pressure" zog:"blood_pressure"`
	BodyActivity    string    `json:"body_activity" zog:"body_activity"`
}

var readingRequestSchema = z.Struct(z.Shape{
	"Timestamp":       z.Time().Required(),
	"HeartRate":       z.Float64().GTE(0),
	"Temperature":     z.Float64().GTE(0),
	"RespiratoryRate": z.Float64().GTE(0),
	"BloodPressure":   z.String().Max(16),
	"BodyActivity":    z.String().Max(16),
})

func (req ReadingRequest) Reading(deviceID string) vitals.Reading {
	return vitals.FromModel(models.Reading{
		MacAddress:      deviceID,
		HeartRate:       &req.HeartRate,
		Temperature:     &req.Temperature,
		RespiratoryRate: &req.RespiratoryRate,
		BloodPressure:   req.BloodPressure,
		BodyActivity:    req.BodyActivity,
		Timestamp:       req.Timestamp,
	})
}

func (rs *RestfulServer) PostReading(c *gin.Context) {
	deviceID := c.Param("device_id")

	if !rs.CheckDeviceLimiter(deviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	var req ReadingRequest
	if err := readingRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}
	if req.BloodPressure != "" && vitals.ParseBloodPressure(req.BloodPressure) == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("blood_pressure %q is not like 120/80", req.BloodPressure)})
		return
	}

	reading := req.Reading(deviceID).Model()
	if err := rs.Iot.Reading.StoreReading(c.Request.Context(), &reading); err != nil {
		if errors.Is(err, iot.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if rs.AutoWatch && rs.Supervisor != nil {
		rs.Supervisor.Watch(deviceID)
	}

	c.JSON(http.StatusCreated, reading)
}

func (rs *RestfulServer) GetReadings(c *gin.Context) {
	deviceID := c.Param("device_id")

	if !rs.CheckDeviceLimiter(deviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	limit, err := queryLimit(c, DefaultReadingsLimit, MaxReadingsLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	readings, err := rs.Reader.LatestReadings(c.Request.Context(), deviceID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, common.Mapper(readings, vitals.Reading.Model))
}

func (rs *RestfulServer) GetAlerts(c *gin.Context) {
	deviceID := c.Param("device_id")

	if !rs.CheckDeviceLimiter(deviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	limit, err := queryLimit(c, vitals.DefaultAlertLogSize, MaxReadingsLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alerts, err := rs.Iot.Alert.GetDeviceAlerts(c.Request.Context(), deviceID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	c.JSON(http.StatusOK, alerts)
}

type LimiterRequest struct {
	Rate  float64 `json:"rate"`
	Burst int     `json:"burst"`
}

var limiterRequestSchema = z.Struct(z.Shape{
	"rate":  z.Float64().Required(),
	"burst": z.Int().Required(),
})

func (rs *RestfulServer) PostLimiter(c *gin.Context) {
	deviceID := c.Param("device_id")

	var req LimiterRequest
	if err := limiterRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	rs.SetLimiter(deviceID, req.Rate, req.Burst)

	c.Status(http.StatusOK)
}

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func queryLimit(c *gin.Context, def int, max int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errBadLimit
	}
	return min(n, max), nil
}
