package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/notify"
	"liyu1981.xyz/vital-signs-service/pkg/telemetry"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

const (
	WSTypeReading  = "reading"
	WSTypeAlert    = "alert"
	WSTypeLiveness = "device.liveness"

	wsWriteTimeout = 5 * time.Second
	wsSendQueue    = 64
	wsNotifierName = "websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// dashboards are served from other origins; there is no auth to protect
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ReadingEvent struct {
	DeviceID string         `json:"device_id"`
	Outcome  vitals.Outcome `json:"outcome"`
	Status   vitals.Status  `json:"status"`
	Reading  any            `json:"reading"`
	Alerts   []vitals.Alert `json:"alerts"`
}

type LivenessEvent struct {
	DeviceID     string    `json:"device_id"`
	Connected    bool      `json:"connected"`
	LastActivity time.Time `json:"last_activity"`
}

// WSManager fans live monitor events out to dashboard websocket clients.
// Each client has its own send queue and writer, so a stalled client loses
// frames instead of holding up the broadcaster.
type WSManager struct {
	clients map[*websocket.Conn]*wsClient
	mu      sync.Mutex
	logger  *zap.Logger
}

type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	goingAway bool
}

func NewWSManager() *WSManager {
	return &WSManager{
		clients: make(map[*websocket.Conn]*wsClient),
		logger:  common.GetCategoryLogger(common.LoggerNameRestfulServer, common.LoggerCategoryPush),
	}
}

func (m *WSManager) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendQueue)}
	m.mu.Lock()
	m.clients[conn] = client
	m.mu.Unlock()
	m.logger.Info("Websocket client connected", zap.String("remote", c.Request.RemoteAddr))

	go m.write(client)

	// clients only listen; reading drains control frames and notices the close
	go func() {
		defer func() {
			m.drop(conn)
			m.logger.Info("Websocket client disconnected", zap.String("remote", c.Request.RemoteAddr))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// write owns every write to the client's connection and closes it once the
// queue is closed or a write fails.
func (m *WSManager) write(client *wsClient) {
	defer func() { _ = client.conn.Close() }()

	for data := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			m.logger.Debug("Websocket write failed, dropping client", zap.Error(err))
			m.drop(client.conn)
			return
		}
	}

	m.mu.Lock()
	goingAway := client.goingAway
	m.mu.Unlock()
	if goingAway {
		_ = client.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
	}
}

func (m *WSManager) drop(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if client, ok := m.clients[conn]; ok {
		delete(m.clients, conn)
		close(client.send)
	}
}

func (m *WSManager) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func (m *WSManager) BroadcastReading(deviceID string, r vitals.Reading, res vitals.Result) {
	m.broadcast(WSMessage{Type: WSTypeReading, Payload: ReadingEvent{
		DeviceID: deviceID,
		Outcome:  res.Outcome,
		Status:   res.Status,
		Reading:  r.Model(),
		Alerts:   res.Alerts,
	}})
}

func (m *WSManager) BroadcastAlert(alert vitals.Alert) {
	m.broadcast(WSMessage{Type: WSTypeAlert, Payload: alert})
}

func (m *WSManager) BroadcastLiveness(deviceID string, connected bool, lastActivity time.Time) {
	m.broadcast(WSMessage{Type: WSTypeLiveness, Payload: LivenessEvent{
		DeviceID:     deviceID,
		Connected:    connected,
		LastActivity: lastActivity,
	}})
}

// Notifier adapts the manager to the alert dispatcher.
func (m *WSManager) Notifier() notify.Notifier {
	return notify.Func{Label: wsNotifierName, Fn: func(_ context.Context, alert vitals.Alert) error {
		m.BroadcastAlert(alert)
		return nil
	}}
}

// broadcast never blocks: a client whose queue is full misses the frame.
func (m *WSManager) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("Failed to encode websocket message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, client := range m.clients {
		select {
		case client.send <- data:
		default:
			telemetry.NotificationsDropped.WithLabelValues(wsNotifierName).Inc()
			m.logger.Debug("Websocket client is behind, frame dropped",
				zap.String("type", msg.Type), zap.String("remote", client.conn.RemoteAddr().String()))
		}
	}
}

// Close disconnects every client once its queued frames are written.
func (m *WSManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn, client := range m.clients {
		client.goingAway = true
		close(client.send)
		delete(m.clients, conn)
	}
}
