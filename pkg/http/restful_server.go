package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
	"liyu1981.xyz/vital-signs-service/pkg/bridge"
	"liyu1981.xyz/vital-signs-service/pkg/iot"
	"liyu1981.xyz/vital-signs-service/pkg/source"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

type RestfulServer struct {
	Server           *gin.Engine
	Iot              *iot.IOT
	RateLimiterStore *iot.RateLimiterStore

	// Supervisor owns the watched devices' monitors. Without one the
	// status, history and report routes answer 404.
	Supervisor *bridge.Supervisor
	Liveness   *vitals.LivenessTracker
	// Reader and Roster default to the local store.
	Reader source.Reader
	Roster source.RosterWriter
	WS     *WSManager
	Unit   vitals.Unit

	// AutoWatch starts a monitor for a device on its first posted reading.
	AutoWatch bool
}

func (rs *RestfulServer) GetLimiter(deviceID string) *rate.Limiter {
	if rs.RateLimiterStore == nil {
		return nil
	} else {
		return rs.RateLimiterStore.GetLimiter(deviceID)
	}
}

func (rs *RestfulServer) CheckDeviceLimiter(deviceID string) bool {
	limiter := rs.GetLimiter(deviceID)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

func (rs *RestfulServer) SetLimiter(deviceID string, deviceRate float64, deviceBurst int) {
	if rs.RateLimiterStore == nil {
		return
	}
	rs.RateLimiterStore.SetLimiter(deviceID, rate.Limit(deviceRate), deviceBurst)
}

func (rs *RestfulServer) monitor(deviceID string) (*vitals.Monitor, bool) {
	if rs.Supervisor == nil {
		return nil, false
	}
	return rs.Supervisor.Monitor(deviceID)
}

// connected prefers the live tracker and falls back to the stored last
// activity for devices nobody is watching.
func (rs *RestfulServer) connected(deviceID string, lastActivity time.Time) bool {
	now := time.Now()
	threshold := vitals.DefaultOfflineTimeout
	if rs.Liveness != nil {
		if _, ok := rs.Liveness.LastActivity(deviceID); ok {
			return rs.Liveness.IsConnected(deviceID, now)
		}
		threshold = rs.Liveness.Threshold()
	}
	return !lastActivity.IsZero() && now.Sub(lastActivity) < threshold
}

func (rs *RestfulServer) Setup() {
	if rs.Reader == nil {
		rs.Reader = source.NewLocal(rs.Iot)
	}
	if rs.Roster == nil {
		rs.Roster = rs.Iot.Employee
	}
	if rs.WS == nil {
		rs.WS = NewWSManager()
	}
	if rs.Unit == "" {
		rs.Unit = vitals.Celsius
	}

	rs.Server.GET("/healthz", rs.HealthCheck)
	rs.Server.GET("/metrics", gin.WrapH(promhttp.Handler()))
	rs.Server.GET("/ws", rs.WS.HandleWebSocket)
	rs.Server.GET("/devices", rs.ListDevices)

	devices := rs.Server.Group("/devices/:device_id")
	{
		devices.POST("/readings", rs.PostReading)
		devices.GET("/readings", rs.GetReadings)
		devices.GET("/status", rs.GetStatus)
		devices.GET("/history", rs.GetHistory)
		devices.GET("/alerts", rs.GetAlerts)
		devices.POST("/assign", rs.AssignEmployee)
		devices.POST("/limiter", rs.PostLimiter)
		devices.POST("/watch", rs.Watch)
		devices.DELETE("/watch", rs.Unwatch)
		devices.GET("/report.pdf", rs.GetReport)
	}

	employees := rs.Server.Group("/employees")
	{
		employees.POST("", rs.PostEmployee)
		employees.GET("", rs.SearchEmployees)
		employees.GET("/export.xlsx", rs.ExportEmployees)
	}
}

// Handler is the engine wrapped with request tracing, for http.Server.
func (rs *RestfulServer) Handler() http.Handler {
	return otelhttp.NewHandler(rs.Server, "vitals-http")
}
