package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MQTTOptions configures an MQTTSink.
type MQTTOptions struct {
	Broker         string // host:port
	TopicPrefix    string
	ClientID       string // random when empty
	QoS            byte
	KeepAlive      uint16 // seconds
	Timeout        time.Duration
	PublishSamples bool
}

// MQTTSink publishes each event as JSON to <prefix>/<kind>.
type MQTTSink struct {
	client  *paho.Client
	opts    MQTTOptions
	logger  *logrus.Logger
	timeout time.Duration
}

// DialMQTT connects to the broker and returns a ready sink.
func DialMQTT(ctx context.Context, opts MQTTOptions, logger *logrus.Logger) (*MQTTSink, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ClientID == "" {
		opts.ClientID = "pmdrelay-" + uuid.NewString()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", opts.Broker)
	if err != nil {
		return nil, fmt.Errorf("dial mqtt broker %s: %w", opts.Broker, err)
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: opts.ClientID,
		Conn:     conn,
		OnClientError: func(err error) {
			logger.WithError(err).Warn("MQTT client error")
		},
	})

	ack, err := client.Connect(dialCtx, &paho.Connect{
		ClientID:   opts.ClientID,
		KeepAlive:  opts.KeepAlive,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect mqtt broker %s: %w", opts.Broker, err)
	}
	if ack.ReasonCode != 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("connect mqtt broker %s: reason code %d", opts.Broker, ack.ReasonCode)
	}

	logger.WithFields(logrus.Fields{
		"broker":    opts.Broker,
		"client_id": opts.ClientID,
		"prefix":    opts.TopicPrefix,
	}).Info("MQTT event publisher connected")

	return &MQTTSink{client: client, opts: opts, logger: logger, timeout: opts.Timeout}, nil
}

// Topic returns the topic events of kind are published to.
func (s *MQTTSink) Topic(kind Kind) string {
	if s.opts.TopicPrefix == "" {
		return string(kind)
	}
	return s.opts.TopicPrefix + "/" + string(kind)
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Handle(ev Event) error {
	if ev.Kind == KindSamples && !s.opts.PublishSamples {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.client.Publish(ctx, &paho.Publish{
		Topic:   s.Topic(ev.Kind),
		QoS:     s.opts.QoS,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", s.Topic(ev.Kind), err)
	}
	return nil
}

func (s *MQTTSink) Close() error {
	return s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
