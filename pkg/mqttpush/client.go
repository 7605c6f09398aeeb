// Package mqttpush carries readings pushed by devices over MQTT and publishes
// alerts back to the broker.
package mqttpush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/source"
	"liyu1981.xyz/vital-signs-service/pkg/telemetry"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

const (
	QoS = byte(1)

	disconnectQuiesce = 250
	tokenTimeout      = 10 * time.Second
)

type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

type Client struct {
	client mqtt.Client
	logger *zap.Logger
}

// Connect dials the broker. The connection reconnects on its own; callers
// Disconnect when done.
func Connect(opts Options) (*Client, error) {
	o := mqtt.NewClientOptions()
	o.AddBroker(opts.Broker)
	o.SetClientID(opts.ClientID)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		o.SetPassword(opts.Password)
	}
	o.SetAutoReconnect(true)
	o.SetCleanSession(true)
	o.SetConnectTimeout(tokenTimeout)

	logger := common.GetCategoryLogger(common.LoggerNameSource, common.LoggerCategoryPush)
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.String("broker", opts.Broker), zap.Error(err))
	})

	client := mqtt.NewClient(o)
	if token := client.Connect(); !token.WaitTimeout(tokenTimeout) || token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", opts.Broker, tokenErr(token))
	}
	logger.Info("Connected to MQTT broker", zap.String("broker", opts.Broker), zap.String("client_id", opts.ClientID))

	return NewWithClient(client), nil
}

func NewWithClient(client mqtt.Client) *Client {
	return &Client{
		client: client,
		logger: common.GetCategoryLogger(common.LoggerNameSource, common.LoggerCategoryPush),
	}
}

func tokenErr(token mqtt.Token) error {
	if err := token.Error(); err != nil {
		return err
	}
	return fmt.Errorf("timed out after %s", tokenTimeout)
}

func (c *Client) Disconnect() {
	c.client.Disconnect(disconnectQuiesce)
}

// Subscribe listens on the reading topic of filter's device, or every device
// when the filter carries none. Payloads are JSON rows; a payload without a
// mac_address takes it from the topic.
func (c *Client) Subscribe(ctx context.Context, filter source.Filter) (source.Subscription, error) {
	if filter.Column != "" && filter.Column != source.DeviceColumn {
		return nil, fmt.Errorf("mqtt topics filter on %s only, got %s", source.DeviceColumn, filter.Column)
	}

	topic := ReadingTopic(filter.Value)
	pipe := source.NewPipe(source.DefaultPipeBuffer, func() error {
		token := c.client.Unsubscribe(topic)
		if !token.WaitTimeout(tokenTimeout) || token.Error() != nil {
			return fmt.Errorf("unsubscribe %s: %w", topic, tokenErr(token))
		}
		return nil
	})

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		deliver(pipe, filter, msg.Topic(), msg.Payload(), c.logger)
	}
	token := c.client.Subscribe(topic, QoS, handler)
	if !token.WaitTimeout(tokenTimeout) || token.Error() != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, tokenErr(token))
	}
	c.logger.Info("Subscribed to reading topic", zap.String("topic", topic))

	go func() {
		select {
		case <-ctx.Done():
			_ = pipe.End(ctx.Err())
		case <-pipe.Done():
		}
	}()
	return pipe, nil
}

// deliver runs on the MQTT router goroutine and must not block it, so a
// full pipe drops the reading.
func deliver(pipe *source.Pipe, filter source.Filter, topic string, payload []byte, logger *zap.Logger) {
	reading, err := DecodeReading(topic, payload)
	if err != nil {
		source.Quarantine("mqtt", string(payload), err)
		return
	}
	if filter.Value != "" && reading.DeviceID != filter.Value {
		return
	}

	change := source.Change{
		Event:      source.EventInsert,
		Table:      filter.Table,
		Reading:    reading,
		ReceivedAt: time.Now(),
	}
	if !pipe.TrySend(change) {
		telemetry.NotificationsDropped.WithLabelValues("mqtt_subscription").Inc()
		logger.Warn("Dropping MQTT reading, subscriber is behind",
			zap.String("topic", topic), zap.String("device_id", reading.DeviceID))
	}
}

// DecodeReading parses a JSON reading payload received on topic.
func DecodeReading(topic string, payload []byte) (vitals.Reading, error) {
	row := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&row); err != nil {
		return vitals.Reading{}, fmt.Errorf("decode mqtt payload: %w", err)
	}
	if mac, _ := row[source.DeviceColumn].(string); mac == "" {
		if deviceID, ok := DeviceFromTopic(topic); ok {
			row[source.DeviceColumn] = deviceID
		}
	}
	return source.ParseRow(row)
}

func (c *Client) publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	token := c.client.Publish(topic, QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishReading sends r the way a device does.
func (c *Client) PublishReading(ctx context.Context, r vitals.Reading) error {
	return c.publish(ctx, ReadingTopic(r.DeviceID), r.Model())
}

func (c *Client) PublishAlert(ctx context.Context, alert models.Alert) error {
	return c.publish(ctx, AlertTopic(alert.DeviceID), alert)
}
