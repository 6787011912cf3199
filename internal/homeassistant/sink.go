package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Publisher is the subset of the MQTT publisher the sink needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
}

type Options struct {
	// UniqueID distinguishes installations; "default" when empty.
	UniqueID        string
	DiscoveryPrefix string
	Logger          *slog.Logger
}

// Sink forwards facts to Home Assistant. All messages are retained so entities keep their
// last value across Home Assistant restarts.
type Sink struct {
	pub      Publisher
	uniqueID string
	prefix   string
	logger   *slog.Logger
}

func NewSink(pub Publisher, opts Options) *Sink {
	if opts.UniqueID == "" {
		opts.UniqueID = "default"
	}
	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = "homeassistant"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Sink{
		pub:      pub,
		uniqueID: opts.UniqueID,
		prefix:   opts.DiscoveryPrefix,
		logger:   opts.Logger,
	}
}

// PublishDiscovery announces every entity and marks the device online. It is meant to
// run on each connect to the Home Assistant broker.
func (s *Sink) PublishDiscovery(ctx context.Context) error {
	var errs []error
	for _, e := range Entities() {
		payload, err := DiscoveryPayload(s.uniqueID, e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.pub.Publish(ctx, DiscoveryTopic(s.prefix, e), payload, true); err != nil {
			errs = append(errs, fmt.Errorf("discovery %s: %w", e.ObjectID, err))
		}
	}
	if err := s.pub.Publish(ctx, AvailabilityTopic, []byte(PayloadOnline), true); err != nil {
		errs = append(errs, fmt.Errorf("availability: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("home assistant discovery published",
		"prefix", s.prefix,
		"device", DeviceIdentifier(s.uniqueID),
		"entities", len(Entities()),
	)
	return nil
}

// MarkOffline publishes the retained offline availability. The broker only sends the
// last will on an unclean disconnect, so a graceful shutdown calls this first.
func (s *Sink) MarkOffline(ctx context.Context) error {
	return s.pub.Publish(ctx, AvailabilityTopic, []byte(PayloadOffline), true)
}

func (s *Sink) UpdateDeviceID(ctx context.Context, deviceID string) error {
	return s.state(ctx, ObjectDeviceID, deviceID)
}

func (s *Sink) UpdateBattery(ctx context.Context, volts string) error {
	return s.state(ctx, ObjectBattery, volts)
}

func (s *Sink) UpdateWeight(ctx context.Context, weight string) error {
	return s.state(ctx, ObjectWeight, weight)
}

// UpdatePosition publishes the tracker attributes document.
func (s *Sink) UpdatePosition(ctx context.Context, attributes string) error {
	topic := Entity{ObjectID: ObjectPosition}.AttributesTopic()
	return s.pub.Publish(ctx, topic, []byte(attributes), true)
}

// SetMovementAlarm switches the movement binary sensor.
func (s *Sink) SetMovementAlarm(ctx context.Context, on bool) error {
	v := PayloadOff
	if on {
		v = PayloadOn
	}
	return s.state(ctx, ObjectAlarm, v)
}

func (s *Sink) state(ctx context.Context, objectID, value string) error {
	topic := Entity{ObjectID: objectID}.StateTopic()
	return s.pub.Publish(ctx, topic, []byte(value), true)
}
