package transport

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/tupyy/mdm-agent-ng/internal/entity"
)

const (
	// qosAtLeastOnce is the quality level of every subscribe and publish.
	qosAtLeastOnce byte = 1

	defaultKeepAlive        = 60 * time.Second
	connectTimeout          = 30 * time.Second
	disconnectQuiesceMillis = 250
)

// Config describes one broker connection.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// WillTopic and WillPayload form the last-will message the broker
	// publishes on an unclean disconnect. The will is fire-and-forget and
	// not retained.
	WillTopic   string
	WillPayload []byte

	KeepAlive time.Duration
	TLS       *tls.Config
}

// Transport owns one TLS broker connection. Completion of a connect attempt
// is signaled through the handlers; failures surface only as a state
// transition. Reconnection is handled by the mqtt client itself.
type Transport struct {
	client mqtt.Client

	lock  sync.Mutex
	state entity.ConnectionState

	// OnConnect is called on every accepted connect, initial and reconnect.
	OnConnect func()
	// OnMessage is called for every inbound message.
	OnMessage func(topic string, payload []byte)
	// OnConnectionLost is called when an established connection drops.
	OnConnectionLost func(err error)
}

func New(cfg Config) *Transport {
	t := &Transport{
		state: entity.DisconnectedState,
	}

	keepAlive := cfg.KeepAlive
	if keepAlive == 0 {
		keepAlive = defaultKeepAlive
	}

	tlsConfig := cfg.TLS
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.Username).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetTLSConfig(tlsConfig)

	if cfg.WillTopic != "" {
		opts.SetBinaryWill(cfg.WillTopic, cfg.WillPayload, 0, false)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		t.setState(entity.ConnectedState)
		zap.S().Infow("broker connected", "host", cfg.Host, "port", cfg.Port)

		if t.OnConnect != nil {
			t.OnConnect()
		}
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		t.setState(entity.FailedState)
		zap.S().Warnw("broker connection lost", "error", err)

		if t.OnConnectionLost != nil {
			t.OnConnectionLost(err)
		}
	})

	opts.SetDefaultPublishHandler(func(client mqtt.Client, message mqtt.Message) {
		if t.OnMessage != nil {
			t.OnMessage(message.Topic(), message.Payload())
		}
	})

	t.client = mqtt.NewClient(opts)

	return t
}

// Connect starts a connect attempt. It does not block; the outcome is
// reported through OnConnect or as a Failed state transition.
func (t *Transport) Connect() {
	t.setState(entity.ConnectingState)

	go func() {
		token := t.client.Connect()
		token.Wait()

		if err := token.Error(); err != nil {
			t.setState(entity.FailedState)
			zap.S().Errorw("broker connect failed", "error", err)
		}
	}()
}

func (t *Transport) Subscribe(topicFilter string) error {
	token := t.client.Subscribe(topicFilter, qosAtLeastOnce, nil)
	token.Wait()

	if err := token.Error(); err != nil {
		return fmt.Errorf("cannot subscribe to %q '%w'", topicFilter, err)
	}

	zap.S().Debugw("subscribed", "filter", topicFilter)

	return nil
}

func (t *Transport) Publish(topic string, payload []byte) error {
	token := t.client.Publish(topic, qosAtLeastOnce, false, payload)
	token.Wait()

	if err := token.Error(); err != nil {
		return fmt.Errorf("cannot publish to %q '%w'", topic, err)
	}

	return nil
}

func (t *Transport) Disconnect() {
	t.client.Disconnect(disconnectQuiesceMillis)
	t.setState(entity.DisconnectedState)
}

func (t *Transport) State() entity.ConnectionState {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.state
}

func (t *Transport) setState(state entity.ConnectionState) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.state = state
}
