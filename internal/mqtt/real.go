package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/host-watchdog/internal/bridge"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	commandTimeout    = 5 * time.Second
	defaultBufferSize = 100
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	Topics   Topics
	ClientID string // default host-watchdog-<uuid>

	// BufferSize bounds messages kept while disconnected.
	BufferSize int

	// Commander, if set, receives set/<Property> and reset messages.
	Commander Commander

	Logger *zap.Logger
}

// RealPublisher publishes to an actual MQTT broker. While the broker is
// unreachable messages are buffered and replayed in order on reconnect.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	commander Commander
	log       *zap.Logger

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	everUp    bool
}

// NewRealPublisher starts connecting to the broker. An unreachable
// broker is not an error: paho keeps retrying and messages are buffered.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address is required")
	}
	if o.ClientID == "" {
		o.ClientID = "host-watchdog-" + uuid.NewString()
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	p := &RealPublisher{
		topics:    o.Topics,
		commander: o.Commander,
		log:       o.Logger,
		buf:       newRingBuffer(o.BufferSize, o.Logger),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(o.Topics.System(), string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warn("mqtt: broker not reachable yet, buffering", zap.String("broker", o.Broker))
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	reconnect := p.everUp
	p.everUp = true
	pending := p.buf.drainAll()
	p.mu.Unlock()

	p.log.Info("mqtt: connected", zap.Int("replaying", len(pending)))
	for _, m := range pending {
		if err := p.send(m, true); err != nil {
			p.log.Warn("mqtt: replay failed", zap.String("topic", m.topic), zap.Error(err))
		}
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err := p.send(bufferedMsg{topic: p.topics.System(), payload: payload, qos: 1}, true); err != nil {
			p.log.Warn("mqtt: reconnected event failed", zap.Error(err))
		}
	}

	if p.commander != nil {
		filters := map[string]byte{p.topics.SetFilter(): 1, p.topics.Reset(): 1}
		token := c.SubscribeMultiple(filters, p.onMessage)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			p.log.Error("mqtt: subscribe failed", zap.Error(token.Error()))
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.log.Warn("mqtt: connection lost", zap.Error(err))
}

func (p *RealPublisher) onMessage(_ paho.Client, msg paho.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := HandleCommand(ctx, p.commander, p.topics, msg.Topic(), msg.Payload()); err != nil {
		p.log.Warn("mqtt: command rejected", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	p.log.Debug("mqtt: command applied", zap.String("topic", msg.Topic()))
}

// PublishState sends the snapshot retained at QoS 1.
func (p *RealPublisher) PublishState(props bridge.Properties) error {
	payload, err := FormatStatePayload(props, time.Now())
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.State(), payload: payload, qos: 1, retained: true}, true)
}

// PublishTimeout queues the timeout message without waiting for the broker.
func (p *RealPublisher) PublishTimeout(event TimeoutEvent) error {
	payload, err := FormatTimeoutPayload(event)
	if err != nil {
		return fmt.Errorf("format timeout payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.Timeout(), payload: payload, qos: 1}, false)
}

// PublishSystem sends a lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.System(), payload: payload, qos: 1, retained: event.Retained}, true)
}

func (p *RealPublisher) publish(m bufferedMsg, wait bool) error {
	p.mu.Lock()
	if !p.connected {
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(m, wait)
}

func (p *RealPublisher) send(m bufferedMsg, wait bool) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !wait {
		go func() {
			if !token.WaitTimeout(publishTimeout) {
				p.log.Warn("mqtt: publish timeout", zap.String("topic", m.topic))
			} else if err := token.Error(); err != nil {
				p.log.Warn("mqtt: publish failed", zap.String("topic", m.topic), zap.Error(err))
			}
		}()
		return nil
	}
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered reports how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
