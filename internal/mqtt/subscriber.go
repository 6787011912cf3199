package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pcurt/hivesense2mqtt/internal/config"
)

// MessageHandler processes one inbound message. Returned errors are logged at debug;
// the handler is expected to log its own failures.
type MessageHandler func(ctx context.Context, topic string, payload []byte) error

// Subscriber receives uplinks from the network operator's broker.
type Subscriber struct {
	connState

	client  mqtt.Client
	broker  config.Broker
	topic   string
	qos     byte
	logger  *slog.Logger
	handler MessageHandler

	// ctx is handed to the handler and cancelled by Disconnect.
	ctx    context.Context
	cancel context.CancelFunc

	subscribed chan error
}

func NewSubscriber(broker config.Broker, topic string, handler MessageHandler, logger *slog.Logger) (*Subscriber, error) {
	if topic == "" {
		return nil, fmt.Errorf("subscriber topic is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("subscriber handler is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		connState:  connState{stopCh: make(chan struct{})},
		broker:     broker,
		topic:      topic,
		qos:        1, // At least once delivery
		logger:     logger,
		handler:    handler,
		ctx:        ctx,
		cancel:     cancel,
		subscribed: make(chan error, 1),
	}

	opts, err := newClientOptions(broker)
	if err != nil {
		cancel()
		return nil, err
	}

	// The session is clean, so every (re)connect subscribes again.
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", broker.Host, "port", broker.Port, "tls", broker.TLS)

		err := s.subscribe()
		if err != nil {
			logger.Error("mqtt subscribe failed", "topic", topic, "error", err)
		}
		select {
		case s.subscribed <- err:
		default:
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "broker", broker.Host, "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Connect establishes the connection and waits for the first subscription to complete.
// It respects ctx and Disconnect().
func (s *Subscriber) Connect(ctx context.Context) error {
	if s.stopped() {
		return errStopped
	}
	if s.IsConnected() {
		return nil
	}

	// On timeout paho keeps retrying in the background and OnConnect subscribes later.
	token := s.client.Connect()
	if err := s.waitToken(ctx, token); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	select {
	case err := <-s.subscribed:
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return errStopped
	}
}

func (s *Subscriber) subscribe() error {
	token := s.client.Subscribe(s.topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe timeout for topic %s", s.topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, token.Error())
	}

	s.logger.Info("subscribed to mqtt topic", "topic", s.topic, "qos", s.qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	if s.ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := s.handler(s.ctx, topic, payload); err != nil {
		s.logger.Debug("message handler returned error", "topic", topic, "error", err)
		return
	}
	s.logger.Debug("processed mqtt message", "topic", topic, "duration_ms", time.Since(start).Milliseconds())
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	return s.isConnected() && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (s *Subscriber) Disconnect() {
	s.stop()
	s.cancel()

	// Unsubscribe before disconnecting
	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.topic)
		token.WaitTimeout(2 * time.Second)
	}

	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected", "broker", s.broker.Host)
}
