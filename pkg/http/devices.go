package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/iot"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/report"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"
)

var errNotWatched = errors.New("device is not watched")

type DeviceListResponse struct {
	Devices   []models.DeviceSummary `json:"devices"`
	Connected int                    `json:"connected"`
	Total     int                    `json:"total"`
}

func (rs *RestfulServer) ListDevices(c *gin.Context) {
	devices, err := rs.Iot.Device.ListDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := DeviceListResponse{Devices: make([]models.DeviceSummary, 0, len(devices)), Total: len(devices)}
	for _, d := range devices {
		d.Connected = rs.connected(d.MacAddress, d.LastActivity)
		if d.Connected {
			resp.Connected++
		}
		resp.Devices = append(resp.Devices, d)
	}

	c.JSON(http.StatusOK, resp)
}

type DeviceStatusResponse struct {
	DeviceID             string          `json:"device_id"`
	Unit                 vitals.Unit     `json:"unit"`
	Connected            bool            `json:"connected"`
	LastActivity         *time.Time      `json:"last_activity"`
	LastUpdateAgeSeconds *float64        `json:"last_update_age_seconds"`
	Latest               *models.Reading `json:"latest"`
	vitals.Snapshot
}

func (rs *RestfulServer) GetStatus(c *gin.Context) {
	deviceID := c.Param("device_id")

	monitor, ok := rs.monitor(deviceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errNotWatched.Error()})
		return
	}

	snap := monitor.Snapshot()
	resp := DeviceStatusResponse{DeviceID: deviceID, Unit: rs.Unit, Snapshot: snap}
	if snap.Latest != nil {
		latest := snap.Latest.Model()
		resp.Latest = &latest
	}
	if age, ok := monitor.LastUpdateAge(); ok {
		secs := age.Seconds()
		resp.LastUpdateAgeSeconds = &secs
	}
	if rs.Liveness != nil {
		if last, ok := rs.Liveness.LastActivity(deviceID); ok {
			resp.LastActivity = &last
		}
		resp.Connected = rs.Liveness.IsConnected(deviceID, time.Now())
	}

	c.JSON(http.StatusOK, resp)
}

type HistoryResponse struct {
	DeviceID string                                     `json:"device_id"`
	Unit     vitals.Unit                                `json:"unit"`
	History  map[models.VitalKind][]vitals.HistoryPoint `json:"history"`
}

// GetHistory returns every chart window, or one with ?kind=.
func (rs *RestfulServer) GetHistory(c *gin.Context) {
	deviceID := c.Param("device_id")

	monitor, ok := rs.monitor(deviceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errNotWatched.Error()})
		return
	}

	resp := HistoryResponse{DeviceID: deviceID, Unit: rs.Unit}
	if kind := models.VitalKind(c.Query("kind")); kind != "" {
		if !isChartKind(kind) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("no history for kind %q", kind)})
			return
		}
		resp.History = map[models.VitalKind][]vitals.HistoryPoint{kind: monitor.History(kind)}
	} else {
		resp.History = monitor.Histories()
	}

	c.JSON(http.StatusOK, resp)
}

func isChartKind(kind models.VitalKind) bool {
	for _, k := range vitals.ChartKinds {
		if k == kind {
			return true
		}
	}
	return false
}

type AssignRequest struct {
	EmployeeName string `json:"employee_name" zog:"employee_name"`
}

var assignRequestSchema = z.Struct(z.Shape{
	"EmployeeName": z.String().Min(1).Max(128).Required(),
})

func (rs *RestfulServer) AssignEmployee(c *gin.Context) {
	deviceID := c.Param("device_id")

	var req AssignRequest
	if err := assignRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	if err := rs.Iot.Device.AssignEmployee(c.Request.Context(), deviceID, req.EmployeeName); err != nil {
		if errors.Is(err, iot.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusOK)
}

func (rs *RestfulServer) Watch(c *gin.Context) {
	deviceID := c.Param("device_id")

	if rs.Supervisor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "monitoring is not enabled"})
		return
	}

	b, started := rs.Supervisor.Watch(deviceID)
	if b == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "monitoring is shutting down"})
		return
	}
	code := http.StatusOK
	if started {
		code = http.StatusCreated
	}
	c.JSON(code, gin.H{"device_id": deviceID, "watching": true})
}

func (rs *RestfulServer) Unwatch(c *gin.Context) {
	deviceID := c.Param("device_id")

	if rs.Supervisor == nil || !rs.Supervisor.Unwatch(deviceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": errNotWatched.Error()})
		return
	}
	if rs.RateLimiterStore != nil {
		rs.RateLimiterStore.Forget(deviceID)
	}

	c.Status(http.StatusNoContent)
}

func (rs *RestfulServer) GetReport(c *gin.Context) {
	deviceID := c.Param("device_id")
	logger := common.GetCategoryLogger(common.LoggerNameRestfulServer, common.LoggerCategoryDevice)

	monitor, ok := rs.monitor(deviceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errNotWatched.Error()})
		return
	}

	doc := report.DeviceReport{
		DeviceID:    deviceID,
		Unit:        rs.Unit,
		Snapshot:    monitor.Snapshot(),
		Histories:   monitor.Histories(),
		GeneratedAt: time.Now(),
	}
	device, err := rs.Iot.Device.GetDevice(c.Request.Context(), deviceID)
	switch {
	case err == nil:
		doc.Employee = device.EmployeeName
		doc.Connected = rs.connected(deviceID, device.LastActivity)
	case errors.Is(err, iot.ErrNotFound):
		doc.Connected = rs.connected(deviceID, time.Time{})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data, err := report.VitalSignsPDF(doc)
	if err != nil {
		logger.Error("Failed to render report", zap.String("device_id", deviceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "vitals-"+deviceID+".pdf"))
	c.Data(http.StatusOK, "application/pdf", data)
}
