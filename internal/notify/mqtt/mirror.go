package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	domain "github.com/oshokin/alarm-silencer/internal/domain/alarm"
	"github.com/oshokin/alarm-silencer/internal/logger"
)

// Timeouts applied to broker operations.
const (
	connectTimeout     = 5 * time.Second
	publishTimeout     = 2 * time.Second
	disconnectQuiesce  = 250
	reconnectInterval  = 2 * time.Second
	maxReconnectPeriod = 30 * time.Second
)

// queueSize bounds events waiting for publication.
const queueSize = 64

var (
	// ErrConnectTimeout is returned when the broker does not acknowledge the connection in time.
	ErrConnectTimeout = errors.New("mqtt connection timeout")
	// ErrPublishTimeout is returned when a publish is not acknowledged in time.
	ErrPublishTimeout = errors.New("mqtt publish timeout")
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// Options configures a broker connection.
type Options struct {
	// Broker is host:port.
	Broker string
	// Topic is the base topic.
	Topic string
	// ClientID is the client id prefix.
	ClientID string
	// QoS of published messages.
	QoS byte
	// Host identifies the publisher in event payloads.
	Host *domain.Actor
}

// eventMessage is the payload published to {topic}/{kind}.
type eventMessage struct {
	Kind      domain.EventKind `json:"kind"`
	Active    bool             `json:"active"`
	Timestamp time.Time        `json:"timestamp"`
	CycleID   string           `json:"cycle_id,omitempty"`
	Host      string           `json:"host,omitempty"`
}

// faceMessage is the payload published to {topic} for face events.
type faceMessage struct {
	FaceDetected bool    `json:"face_detected"`
	Timestamp    float64 `json:"timestamp"`
}

// Mirror publishes events from a background goroutine so Observe never
// blocks the synchronization loop.
type Mirror struct {
	publisher Publisher
	host      *domain.Actor
	queue     chan domain.Event
	topic     string
	qos       byte
}

// NewMirror creates a mirror over publisher. Run must be started to drain events.
func NewMirror(publisher Publisher, opts Options) *Mirror {
	return &Mirror{
		publisher: publisher,
		host:      opts.Host,
		queue:     make(chan domain.Event, queueSize),
		topic:     opts.Topic,
		qos:       opts.QoS,
	}
}

// Observe implements alarm.Observer. Events are dropped when the queue is full.
func (m *Mirror) Observe(ctx context.Context, event domain.Event) {
	select {
	case m.queue <- event:
	default:
		logger.WarnKV(ctx, "MQTT queue full, dropping event", "kind", event.Kind)
	}
}

// Run publishes queued events until ctx is canceled, then flushes what is left.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case event := <-m.queue:
					m.publish(ctx, event)
				default:
					return
				}
			}
		case event := <-m.queue:
			m.publish(ctx, event)
		}
	}
}

// publish sends one event; failures are logged only.
func (m *Mirror) publish(ctx context.Context, event domain.Event) {
	message := eventMessage{
		Kind:      event.Kind,
		Active:    event.Active,
		Timestamp: event.At,
		CycleID:   event.CycleID,
	}

	if m.host != nil {
		message.Host = m.host.String()
	}

	m.send(ctx, m.topic+"/"+string(event.Kind), message)

	if event.Kind == domain.EventFace {
		m.send(ctx, m.topic, faceMessage{
			FaceDetected: event.Active,
			Timestamp:    float64(event.At.UnixMilli()) / 1000,
		})
	}
}

// send encodes and publishes a payload.
func (m *Mirror) send(ctx context.Context, topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to encode MQTT payload", "topic", topic, "error", err)
		return
	}

	if err = m.publisher.Publish(topic, m.qos, data); err != nil {
		logger.WarnKV(ctx, "Failed to publish MQTT message", "topic", topic, "error", err)
		return
	}

	logger.DebugKV(ctx, "MQTT message published", "topic", topic, "size", len(data))
}

// Client is a paho connection implementing Publisher.
type Client struct {
	client paho.Client
}

// Connect dials the broker with automatic reconnects. The client id gets a
// random suffix so several instances can share a broker.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	clientOpts := paho.NewClientOptions().
		AddBroker("tcp://" + opts.Broker).
		SetClientID(opts.ClientID + "-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectInterval).
		SetMaxReconnectInterval(maxReconnectPeriod)

	clientOpts.OnConnect = func(paho.Client) {
		logger.InfoKV(ctx, "MQTT connection established", "broker", opts.Broker)
	}

	clientOpts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.WarnKV(ctx, "MQTT connection lost, reconnecting", "broker", opts.Broker, "error", err)
	}

	client := paho.NewClient(clientOpts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, opts.Broker)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, err)
	}

	return &Client{client: client}, nil
}

// Publish implements Publisher.
func (c *Client) Publish(topic string, qos byte, payload []byte) error {
	token := c.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return ErrPublishTimeout
	}

	return token.Error()
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesce)
}
