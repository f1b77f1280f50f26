// Package mqtt forwards capture lifecycle events to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/smazurov/v4l2cam/internal/events"
)

const publishTimeout = 2 * time.Second

// Retained values of the <prefix>/state topic.
const (
	StateOnline    = "online"
	StateStreaming = "streaming"
	StateOffline   = "offline"
)

// Options configures a Publisher.
type Options struct {
	Broker      string // host:port or a full tcp:// / ws:// URL
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string // e.g. v4l2cam/video0
	QoS         byte
}

// client is the part of paho.Client the publisher uses.
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	Disconnect(quiesce uint)
}

// Stats counts publish outcomes.
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// Publisher mirrors session events on <prefix>/events/<name> and keeps a
// retained <prefix>/state. Per-frame events are not forwarded.
type Publisher struct {
	client client
	bus    *events.Bus
	prefix string
	qos    byte
	logger *slog.Logger
	unsubs []func()

	mu        sync.Mutex
	connected bool
	published uint64
	errors    uint64
}

// NewPublisher creates a publisher for the broker in opts. The broker's
// last will marks the state topic offline if the process dies.
func NewPublisher(opts Options, bus *events.Bus, logger *slog.Logger) *Publisher {
	p := &Publisher{
		bus:    bus,
		prefix: opts.TopicPrefix,
		qos:    opts.QoS,
		logger: logger,
	}

	co := paho.NewClientOptions()
	co.AddBroker(brokerURL(opts.Broker))
	co.SetClientID(opts.ClientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.SetWill(p.stateTopic(), StateOffline, opts.QoS, true)
	co.SetOnConnectHandler(func(paho.Client) {
		p.setConnected(true)
		logger.Info("MQTT connection established", "broker", opts.Broker, "client_id", opts.ClientID)
	})
	co.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.setConnected(false)
		logger.Warn("MQTT connection lost, will auto-reconnect", "broker", opts.Broker, "error", err)
	})

	p.client = paho.NewClient(co)
	return p
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect dials the broker. With connect-retry enabled the token only
// completes once a connection succeeds, so ctx bounds the wait.
func (p *Publisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt connect: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.setConnected(true)
	return nil
}

// Start publishes the online state and subscribes to session events.
func (p *Publisher) Start() {
	p.publishState(StateOnline)
	p.unsubs = append(p.unsubs,
		p.bus.Subscribe(func(e events.SessionOpenedEvent) {
			p.publishEvent(e)
			p.publishState(StateStreaming)
		}),
		p.bus.Subscribe(func(e events.SessionClosedEvent) {
			p.publishEvent(e)
			p.publishState(StateOnline)
		}),
		p.bus.Subscribe(func(e events.CaptureErrorEvent) { p.publishEvent(e) }),
	)
}

// Stop unsubscribes, marks the state offline and disconnects.
func (p *Publisher) Stop() {
	for _, unsub := range p.unsubs {
		unsub()
	}
	p.unsubs = nil
	p.publishState(StateOffline)
	p.client.Disconnect(250)
	p.setConnected(false)
}

// Stats returns publish counters.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Connected: p.connected, Published: p.published, Errors: p.errors}
}

func (p *Publisher) stateTopic() string { return p.prefix + "/state" }
func (p *Publisher) eventTopic(name string) string { return p.prefix + "/events/" + name }

func (p *Publisher) publishEvent(e events.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.recordError(fmt.Errorf("marshal %T: %w", e, err))
		return
	}
	p.publish(p.eventTopic(events.Names[e.Type()]), false, payload)
}

func (p *Publisher) publishState(state string) {
	p.publish(p.stateTopic(), true, []byte(state))
}

func (p *Publisher) publish(topic string, retained bool, payload []byte) {
	if !p.isConnected() {
		p.recordError(errors.New("mqtt not connected"))
		return
	}
	token := p.client.Publish(topic, p.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.recordError(fmt.Errorf("publish to %s timed out", topic))
		return
	}
	if err := token.Error(); err != nil {
		p.recordError(fmt.Errorf("publish to %s: %w", topic, err))
		return
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	p.logger.Debug("MQTT message published", "topic", topic, "size", len(payload))
}

func (p *Publisher) recordError(err error) {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
	p.logger.Debug("MQTT publish skipped", "error", err)
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *Publisher) isConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}
