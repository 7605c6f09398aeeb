// Package realtime subscribes to row change notifications pushed by a hosted
// table store over its Phoenix channel websocket.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/source"
)

const (
	DefaultHeartbeat   = 25 * time.Second
	DefaultJoinTimeout = 10 * time.Second
	DefaultSchema      = "public"
	ProtocolVersion    = "1.0.0"

	writeTimeout = 5 * time.Second
)

var (
	ErrJoinRejected = errors.New("realtime channel join rejected")
	ErrChannelEnded = errors.New("realtime channel closed by server")
)

type Client struct {
	url         string
	key         string
	schema      string
	heartbeat   time.Duration
	joinTimeout time.Duration
	dialer      *websocket.Dialer
	refs        atomic.Uint64
	logger      *zap.Logger
}

func New(realtimeURL string, key string) *Client {
	return &Client{
		url:         realtimeURL,
		key:         key,
		schema:      DefaultSchema,
		heartbeat:   DefaultHeartbeat,
		joinTimeout: DefaultJoinTimeout,
		dialer:      websocket.DefaultDialer,
		logger:      common.GetCategoryLogger(common.LoggerNameSource, common.LoggerCategoryPush),
	}
}

func (c *Client) WithHeartbeat(d time.Duration) *Client {
	if d > 0 {
		c.heartbeat = d
	}
	return c
}

func (c *Client) WithJoinTimeout(d time.Duration) *Client {
	if d > 0 {
		c.joinTimeout = d
	}
	return c
}

// Endpoint turns the configured URL into the websocket endpoint, carrying the
// api key and protocol version as query parameters.
func (c *Client) Endpoint() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported realtime url scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/websocket") {
		u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	}
	q := u.Query()
	if c.key != "" {
		q.Set("apikey", c.key)
	}
	q.Set("vsn", ProtocolVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) nextRef() string {
	return strconv.FormatUint(c.refs.Add(1), 10)
}

// Topic names the channel joined for filter.
func Topic(filter source.Filter) string {
	if filter.Value != "" {
		return "realtime:" + filter.Table + ":" + filter.Value
	}
	return "realtime:" + filter.Table
}

// Subscribe dials, joins a channel bound to filter and waits for the join to
// be acknowledged. The subscription ends when ctx is done, the server closes
// the channel or the socket drops.
func (c *Client) Subscribe(ctx context.Context, filter source.Filter) (source.Subscription, error) {
	endpoint, err := c.Endpoint()
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	s := &session{
		client:  c,
		conn:    conn,
		filter:  filter,
		topic:   Topic(filter),
		joinRef: c.nextRef(),
		joined:  make(chan error, 1),
	}
	s.pipe = source.NewPipe(source.DefaultPipeBuffer, s.shutdown)

	event := filter.Event
	if event == "" {
		event = source.EventAll
	}
	join := joinPayload{
		Config: joinConfig{PostgresChanges: []changeBinding{{
			Event:  event,
			Schema: c.schema,
			Table:  filter.Table,
			Filter: filter.Expr(),
		}}},
		AccessToken: c.key,
	}
	if err := s.send(eventJoin, s.topic, join, s.joinRef); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("join %s: %w", s.topic, err)
	}

	go s.readLoop(ctx)

	timer := time.NewTimer(c.joinTimeout)
	defer timer.Stop()
	select {
	case err := <-s.joined:
		if err != nil {
			_ = s.pipe.End(err)
			return nil, err
		}
	case <-s.pipe.Done():
		if err := s.pipe.Err(); err != nil {
			return nil, err
		}
		return nil, ErrChannelEnded
	case <-timer.C:
		_ = s.pipe.Close()
		return nil, fmt.Errorf("join %s: timed out after %s", s.topic, c.joinTimeout)
	case <-ctx.Done():
		_ = s.pipe.End(ctx.Err())
		return nil, ctx.Err()
	}

	c.logger.Info("Joined realtime channel", zap.String("topic", s.topic), zap.String("filter", filter.Expr()))

	go s.heartbeatLoop(ctx)
	return s.pipe, nil
}

type session struct {
	client  *Client
	conn    *websocket.Conn
	filter  source.Filter
	topic   string
	joinRef string
	joined  chan error
	pipe    *source.Pipe

	writeMu sync.Mutex
	closing atomic.Bool
}

func (s *session) send(event string, topic string, payload any, ref string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Message{Topic: topic, Event: event, Payload: body, Ref: ref})
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *session) shutdown() error {
	s.closing.Store(true)
	_ = s.send(eventLeave, s.topic, struct{}{}, s.client.nextRef())

	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	s.writeMu.Unlock()

	return s.conn.Close()
}

func (s *session) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.client.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.pipe.End(ctx.Err())
			return
		case <-s.pipe.Done():
			return
		case <-ticker.C:
			if err := s.send(eventHeartbeat, phoenixTopic, struct{}{}, s.client.nextRef()); err != nil {
				_ = s.pipe.End(fmt.Errorf("realtime heartbeat: %w", err))
				return
			}
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	logger := s.client.logger.With(zap.String("topic", s.topic))

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() {
				logger.Warn("Realtime connection lost", zap.Error(err))
			}
			_ = s.pipe.End(fmt.Errorf("realtime connection lost: %w", err))
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Skipping malformed realtime frame", zap.Error(err))
			continue
		}

		switch msg.Event {
		case eventReply:
			if msg.Ref == s.joinRef {
				s.ackJoin(msg.Payload)
			}
		case eventChanges:
			if msg.Topic == s.topic {
				s.deliver(ctx, msg.Payload, logger)
			}
		case eventError, eventClose:
			if msg.Topic == s.topic {
				logger.Warn("Realtime channel ended by server", zap.String("event", msg.Event))
				_ = s.pipe.End(fmt.Errorf("%w: %s", ErrChannelEnded, msg.Event))
				return
			}
		case eventSystem:
			logger.Debug("Realtime system message", zap.ByteString("payload", msg.Payload))
		}
	}
}

func (s *session) ackJoin(payload json.RawMessage) {
	var reply replyPayload
	err := json.Unmarshal(payload, &reply)
	if err == nil && reply.Status != replyOK {
		err = fmt.Errorf("%w: %s %s", ErrJoinRejected, reply.Status, string(reply.Response))
	}
	select {
	case s.joined <- err:
	default:
	}
}

func (s *session) deliver(ctx context.Context, payload json.RawMessage, logger *zap.Logger) {
	var changes changesPayload
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&changes); err != nil {
		logger.Warn("Skipping malformed change payload", zap.Error(err))
		return
	}

	data := changes.Data
	if data.Type == source.EventDelete || data.Record == nil || !s.filter.MatchesEvent(data.Type) {
		return
	}

	reading, err := source.ParseRow(data.Record)
	if err != nil {
		source.Quarantine("realtime", data.Record, err)
		return
	}

	s.pipe.Send(ctx, source.Change{
		Event:      data.Type,
		Table:      data.Table,
		Reading:    reading,
		ReceivedAt: time.Now(),
	})
}
