package agent

import (
	"go.uber.org/zap"

	"github.com/tupyy/mdm-agent-ng/internal/entity"
)

const (
	// manifestVersionTopic is the well-known global topic carrying the
	// management manifest version.
	manifestVersionTopic = "/FlyvemdmManifest/Status/Version"

	onlineTopicSuffix = "/Status/Online"
	onlinePayload     = `{"online": true}`
)

// Transport is the broker connection owned by this session.
type Transport interface {
	Connect()
	Subscribe(topicFilter string) error
	Publish(topic string, payload []byte) error
	Disconnect()
	State() entity.ConnectionState
}

// Dispatcher executes the command carried by one message payload.
type Dispatcher interface {
	Dispatch(payload []byte)
}

// Store persists the manifest version record.
type Store interface {
	SetManifestVersion(version string) error
}

type message struct {
	topic   string
	payload []byte
}

// Controller is the session core of an enrolled device. It owns the broker
// connection lifecycle and feeds every inbound message through the
// dispatcher on a single loop.
type Controller struct {
	transport  Transport
	dispatcher Dispatcher
	store      Store

	identity entity.AgentIdentity

	started   bool
	messages  chan message
	connected chan struct{}
	lost      chan error
	done      chan chan struct{}

	// MessageObserver, when set, receives every inbound message pair. It
	// is the session's log feed.
	MessageObserver func(topic string, payload []byte)
}

func New(transport Transport, dispatcher Dispatcher, store Store, identity entity.AgentIdentity) *Controller {
	return &Controller{
		transport:  transport,
		dispatcher: dispatcher,
		store:      store,
		identity:   identity,
		messages:   make(chan message, 16),
		connected:  make(chan struct{}, 1),
		lost:       make(chan error, 1),
		done:       make(chan chan struct{}, 1),
	}
}

// Start begins the session. A missing serial or base topic is a no-connect
// condition, not an error.
func (c *Controller) Start() {
	if c.identity.SerialNumber == "" || c.identity.BaseTopic == "" {
		zap.S().Infow("identity incomplete, not connecting",
			"serial", c.identity.SerialNumber, "topic", c.identity.BaseTopic)
		return
	}

	c.started = true

	go c.run()
	c.transport.Connect()
}

func (c *Controller) Shutdown() {
	if !c.started {
		return
	}

	d := make(chan struct{}, 1)
	c.done <- d
	<-d

	c.transport.Disconnect()
}

// HandleConnect is called by the transport on every accepted connect.
func (c *Controller) HandleConnect() {
	select {
	case c.connected <- struct{}{}:
	default:
	}
}

// HandleMessage is called by the transport for every inbound message.
func (c *Controller) HandleMessage(topic string, payload []byte) {
	c.messages <- message{topic: topic, payload: payload}
}

// HandleConnectionLost is called by the transport when the connection drops.
func (c *Controller) HandleConnectionLost(err error) {
	select {
	case c.lost <- err:
	default:
	}
}

func (c *Controller) run() {
	for {
		select {
		case <-c.connected:
			c.subscribeAll()

			if err := c.transport.Publish(c.identity.BaseTopic+onlineTopicSuffix, []byte(onlinePayload)); err != nil {
				zap.S().Errorw("cannot publish online status", "error", err)
			}
		case m := <-c.messages:
			if c.MessageObserver != nil {
				c.MessageObserver(m.topic, m.payload)
			}

			if m.topic == manifestVersionTopic {
				if err := c.store.SetManifestVersion(string(m.payload)); err != nil {
					zap.S().Errorw("cannot persist manifest version", "error", err)
				}
			}

			// topic is not part of dispatch routing
			c.dispatcher.Dispatch(m.payload)
		case err := <-c.lost:
			// reconnection is the transport's job; only report
			zap.S().Warnw("session connection lost", "error", err)
		case d := <-c.done:
			zap.S().Info("shutdown session")
			d <- struct{}{}
			return
		}
	}
}

func (c *Controller) subscribeAll() {
	if err := c.transport.Subscribe(c.identity.BaseTopic + "/#"); err != nil {
		zap.S().Errorw("cannot subscribe to device topics", "error", err)
	}

	if err := c.transport.Subscribe(manifestVersionTopic); err != nil {
		zap.S().Errorw("cannot subscribe to manifest topic", "error", err)
	}
}
