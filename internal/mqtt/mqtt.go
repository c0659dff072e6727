package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"airwatch/internal/config"
	"airwatch/internal/sensor"
)

// FrameHandler receives every device frame published on the topic.
type FrameHandler func(ctx context.Context, frame sensor.DeviceFrame, now time.Time) error

// Subscriber delivers device frames published to MQTT_TOPIC. Boards that
// cannot hold a WebSocket open publish the same frame shape here.
type Subscriber struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
	handler   FrameHandler

	// ctx is handed to the handler; cancelled by Disconnect.
	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
	now      func() time.Time
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		topic:  cfg.MQTTTopic,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		// Clean sessions lose subscriptions on reconnect.
		if err := s.subscribe(c); err != nil {
			logger.Error("mqtt subscribe", "topic", s.topic, "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

func (s *Subscriber) SetFrameHandler(h FrameHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Connect blocks until the broker accepts the connection, ctx ends or the
// subscriber is stopped. Subscription happens in the connect callback.
func (s *Subscriber) Connect(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return errors.New("subscriber stopped")
	}
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()
	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.ctx.Done():
			s.client.Disconnect(0)
			return errors.New("subscriber stopped")
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (s *Subscriber) subscribe(c mqtt.Client) error {
	const qos = byte(1)
	token := c.Subscribe(s.topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}
	s.logger.Info("subscribed to mqtt topic", "topic", s.topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	frame, err := sensor.DecodeFrame(payload)
	if err != nil {
		s.logger.Warn("failed to parse device frame",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h == nil {
		return
	}
	if err := h(s.ctx, frame, s.now()); err != nil {
		s.logger.Error("frame handler failed", "topic", topic, "error", err)
	}
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber. Safe to call more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.IsConnected() {
			s.client.Unsubscribe(s.topic).WaitTimeout(2 * time.Second)
		}
		s.client.Disconnect(250)
		s.setConnected(false)
		s.logger.Info("mqtt subscriber disconnected")
	})
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
