package agent_test

import (
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/tupyy/mdm-agent-ng/internal/agent"
	"github.com/tupyy/mdm-agent-ng/internal/entity"
)

type fakeTransport struct {
	lock       sync.Mutex
	connectCnt int
	subscribed []string
	published  map[string][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{published: make(map[string][]byte)}
}

func (f *fakeTransport) Connect() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.connectCnt++
}

func (f *fakeTransport) Subscribe(topicFilter string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.subscribed = append(f.subscribed, topicFilter)
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.published[topic] = payload
	return nil
}

func (f *fakeTransport) Disconnect() {}

func (f *fakeTransport) State() entity.ConnectionState {
	return entity.ConnectedState
}

func (f *fakeTransport) Subscriptions() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string{}, f.subscribed...)
}

func (f *fakeTransport) Published(topic string) []byte {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.published[topic]
}

func (f *fakeTransport) ConnectCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.connectCnt
}

type fakeDispatcher struct {
	lock     sync.Mutex
	payloads []string
}

func (f *fakeDispatcher) Dispatch(payload []byte) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.payloads = append(f.payloads, string(payload))
}

func (f *fakeDispatcher) Dispatched() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string{}, f.payloads...)
}

type fakeStore struct {
	lock     sync.Mutex
	manifest string
}

func (f *fakeStore) SetManifestVersion(version string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.manifest = version
	return nil
}

func (f *fakeStore) Manifest() string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.manifest
}

func identity() entity.AgentIdentity {
	return entity.AgentIdentity{
		BrokerHost:     "broker.example.com",
		BrokerPort:     8883,
		BrokerPassword: "secret",
		SerialNumber:   "serial-1",
		BaseTopic:      "/1/agent/serial-1",
	}
}

func TestStartSubscribesOnConnect(t *testing.T) {
	g := NewWithT(t)

	transport := newFakeTransport()
	dispatcher := &fakeDispatcher{}
	store := &fakeStore{}

	c := agent.New(transport, dispatcher, store, identity())
	c.Start()
	defer c.Shutdown()

	g.Expect(transport.ConnectCount()).To(Equal(1))

	c.HandleConnect()

	g.Eventually(transport.Subscriptions, 2*time.Second).Should(ConsistOf(
		"/1/agent/serial-1/#",
		"/FlyvemdmManifest/Status/Version",
	))
	g.Eventually(func() []byte {
		return transport.Published("/1/agent/serial-1/Status/Online")
	}, 2*time.Second).Should(Equal([]byte(`{"online": true}`)))
}

func TestStartWithIncompleteIdentity(t *testing.T) {
	g := NewWithT(t)

	transport := newFakeTransport()

	// no base topic: no connect attempt, no error
	incomplete := identity()
	incomplete.BaseTopic = ""

	c := agent.New(transport, &fakeDispatcher{}, &fakeStore{}, incomplete)
	c.Start()

	g.Expect(transport.ConnectCount()).To(Equal(0))
}

func TestMessagesAreDispatched(t *testing.T) {
	g := NewWithT(t)

	transport := newFakeTransport()
	dispatcher := &fakeDispatcher{}
	store := &fakeStore{}

	c := agent.New(transport, dispatcher, store, identity())
	c.Start()
	defer c.Shutdown()

	c.HandleMessage("/1/agent/serial-1", []byte(`{"query": "Ping"}`))

	g.Eventually(dispatcher.Dispatched, 2*time.Second).Should(Equal([]string{`{"query": "Ping"}`}))
}

func TestManifestVersionIsPersisted(t *testing.T) {
	g := NewWithT(t)

	transport := newFakeTransport()
	dispatcher := &fakeDispatcher{}
	store := &fakeStore{}

	c := agent.New(transport, dispatcher, store, identity())
	c.Start()
	defer c.Shutdown()

	c.HandleMessage("/FlyvemdmManifest/Status/Version", []byte(`{"version": "2.0"}`))

	g.Eventually(store.Manifest, 2*time.Second).Should(Equal(`{"version": "2.0"}`))
	// the manifest message still goes through dispatch and is dropped there
	g.Eventually(dispatcher.Dispatched, 2*time.Second).Should(HaveLen(1))
}

func TestMessageObserver(t *testing.T) {
	g := NewWithT(t)

	transport := newFakeTransport()

	c := agent.New(transport, &fakeDispatcher{}, &fakeStore{}, identity())

	var (
		lock     sync.Mutex
		observed []string
	)
	c.MessageObserver = func(topic string, payload []byte) {
		lock.Lock()
		defer lock.Unlock()
		observed = append(observed, topic)
	}

	c.Start()
	defer c.Shutdown()

	c.HandleMessage("/1/agent/serial-1/Command", []byte(`{}`))

	g.Eventually(func() []string {
		lock.Lock()
		defer lock.Unlock()
		return append([]string{}, observed...)
	}, 2*time.Second).Should(Equal([]string{"/1/agent/serial-1/Command"}))
}
