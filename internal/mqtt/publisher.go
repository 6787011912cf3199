package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pcurt/hivesense2mqtt/internal/config"
)

// Will is the last-will message the broker publishes if the publisher drops off.
type Will struct {
	Topic    string
	Payload  string
	Retained bool
}

type PublisherOptions struct {
	Will *Will
	QoS  byte
}

// Publisher writes state to the Home Assistant broker.
type Publisher struct {
	connState

	client mqtt.Client
	broker config.Broker
	qos    byte
	logger *slog.Logger

	hookMu    sync.RWMutex
	onConnect []func()
}

func NewPublisher(broker config.Broker, logger *slog.Logger, po PublisherOptions) (*Publisher, error) {
	p := &Publisher{
		connState: connState{stopCh: make(chan struct{})},
		broker:    broker,
		qos:       po.QoS,
		logger:    logger,
	}

	opts, err := newClientOptions(broker)
	if err != nil {
		return nil, err
	}
	if po.Will != nil {
		opts.SetWill(po.Will.Topic, po.Will.Payload, po.QoS, po.Will.Retained)
	}

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", broker.Host, "port", broker.Port, "tls", broker.TLS)
		p.runOnConnect()
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "broker", broker.Host, "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p, nil
}

// OnConnect registers fn to run after every (re)connect, in registration order.
// Register hooks before calling Connect.
func (p *Publisher) OnConnect(fn func()) {
	p.hookMu.Lock()
	p.onConnect = append(p.onConnect, fn)
	p.hookMu.Unlock()
}

func (p *Publisher) runOnConnect() {
	p.hookMu.RLock()
	hooks := append([]func(){}, p.onConnect...)
	p.hookMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// Connect establishes connection to the MQTT broker.
// This function waits for the initial connection, and respects ctx and Disconnect().
func (p *Publisher) Connect(ctx context.Context) error {
	if p.stopped() {
		return errStopped
	}
	if p.IsConnected() {
		return nil
	}

	// With ConnectRetry(true), paho may keep retrying internally.
	token := p.client.Connect()
	if err := p.waitToken(ctx, token); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Publish sends payload to topic and waits for the broker acknowledgement.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	token := p.client.Publish(topic, p.qos, retained, payload)
	if err := p.waitToken(ctx, token); err != nil {
		p.logger.Error("failed to publish", "topic", topic, "error", err)
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.logger.Debug("published", "topic", topic, "retained", retained, "size", len(payload))
	return nil
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	return p.isConnected() && p.client.IsConnected()
}

// Disconnect stops the client and closes the MQTT connection.
// Idempotent and safe to call multiple times.
// After Disconnect, Connect() returns errStopped.
func (p *Publisher) Disconnect() {
	p.stop()

	// Paho Disconnect quiesces in-flight work for the given ms.
	if p.client != nil {
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("mqtt publisher disconnected", "broker", p.broker.Host)
}
