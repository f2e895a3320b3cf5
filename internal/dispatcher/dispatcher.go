package dispatcher

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"go.uber.org/zap"

	client "github.com/tupyy/mdm-agent-ng/internal/client/http"
	"github.com/tupyy/mdm-agent-ng/internal/entity"
)

const (
	pingTopicSuffix        = "/Status/Ping"
	geolocationTopicSuffix = "/Status/Geolocation"
	inventoryTopicSuffix   = "/Status/Inventory"
	unenrollTopicSuffix    = "/Status/Unenroll"

	pingReply     = "!"
	unenrollReply = `{"unenroll":"unenrolled"}`
)

// Broker is the publish side of the transport the dispatcher replies on.
type Broker interface {
	Publish(topic string, payload []byte) error
	Subscribe(topicFilter string) error
	Disconnect()
}

// SessionClient is the subset of the http client the file deploy chain uses.
type SessionClient interface {
	InitSession(ctx context.Context, userToken string) (client.SessionContext, error)
	GetFullSession(ctx context.Context, session client.SessionContext) (entity.FullSession, error)
	ChangeActiveProfile(ctx context.Context, session client.SessionContext, profileID int) error
	GetFile(ctx context.Context, session client.SessionContext, fileID string) ([]byte, error)
}

// SessionStore clears the persisted session state on unenroll.
type SessionStore interface {
	ClearAll() error
}

// LocationProvider answers one-shot fix requests.
type LocationProvider interface {
	RequestCurrentFix(ctx context.Context) (entity.Fix, error)
}

// InventoryCollector produces the device inventory snapshot.
type InventoryCollector interface {
	Collect(ctx context.Context) (entity.Inventory, error)
}

// Dispatcher turns each inbound broker payload into zero or one command and
// executes it. Dispatch must be called from a single goroutine; only the file
// generation counter is shared with the background deploy fetches.
type Dispatcher struct {
	broker    Broker
	sessions  SessionClient
	store     SessionStore
	location  LocationProvider
	inventory InventoryCollector
	documents *DocumentArea

	baseTopic string
	// userToken authenticates the deploy-time http sessions. It comes from
	// the persisted enrollment identity.
	userToken string

	pending    entity.PendingFileSet
	generation atomic.Uint64

	// OnUnenroll hands control back to the owning session after the
	// unenroll sequence completed.
	OnUnenroll func()
}

func New(broker Broker, sessions SessionClient, store SessionStore, location LocationProvider, inventory InventoryCollector, documents *DocumentArea, baseTopic, userToken string) *Dispatcher {
	return &Dispatcher{
		broker:    broker,
		sessions:  sessions,
		store:     store,
		location:  location,
		inventory: inventory,
		documents: documents,
		baseTopic: baseTopic,
		userToken: userToken,
	}
}

// Dispatch parses one message body and executes the resulting command, if
// any. Malformed or unrecognized payloads are dropped without error.
func (d *Dispatcher) Dispatch(payload []byte) {
	cmd, ok := parseCommand(payload)
	if !ok {
		zap.S().Debugw("message carries no command", "payload", string(payload))
		return
	}

	zap.S().Infow("dispatching command", "kind", cmd.Kind.String())

	switch cmd.Kind {
	case entity.PingCommand:
		d.replyPing()
	case entity.GeolocateCommand:
		d.replyGeolocate()
	case entity.InventoryCommand:
		d.replyInventory()
	case entity.UnenrollCommand:
		d.unenroll()
	case entity.SubscribeFleetCommand:
		d.subscribeFleet(cmd.FleetTopic)
	case entity.FileOpCommand:
		d.fileOp(cmd)
	}
}

// PendingFiles returns the desired file state carried by the latest file
// command.
func (d *Dispatcher) PendingFiles() entity.PendingFileSet {
	return d.pending
}

func (d *Dispatcher) replyPing() {
	if err := d.broker.Publish(d.baseTopic+pingTopicSuffix, []byte(pingReply)); err != nil {
		zap.S().Errorw("cannot publish ping reply", "error", err)
	}
}

func (d *Dispatcher) replyGeolocate() {
	fix, err := d.location.RequestCurrentFix(context.Background())
	if err != nil {
		zap.S().Errorw("cannot get location fix", "error", err)
		return
	}

	answer := struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Datetime  int64   `json:"datetime"`
	}{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		// the wire unit matches fielded agents: epoch seconds divided by 1000
		Datetime: fix.EpochMillis / 1000 / 1000,
	}

	payload, err := json.Marshal(answer)
	if err != nil {
		zap.S().Errorw("cannot marshal geolocation reply", "error", err)
		return
	}

	if err := d.broker.Publish(d.baseTopic+geolocationTopicSuffix, payload); err != nil {
		zap.S().Errorw("cannot publish geolocation reply", "error", err)
	}
}

func (d *Dispatcher) replyInventory() {
	inventory, err := d.inventory.Collect(context.Background())
	if err != nil {
		zap.S().Errorw("cannot collect inventory", "error", err)
		return
	}

	payload, err := json.Marshal(inventory)
	if err != nil {
		zap.S().Errorw("cannot marshal inventory", "error", err)
		return
	}

	if err := d.broker.Publish(d.baseTopic+inventoryTopicSuffix, payload); err != nil {
		zap.S().Errorw("cannot publish inventory", "error", err)
	}
}

func (d *Dispatcher) unenroll() {
	if err := d.broker.Publish(d.baseTopic+unenrollTopicSuffix, []byte(unenrollReply)); err != nil {
		zap.S().Errorw("cannot publish unenroll reply", "error", err)
	}

	d.broker.Disconnect()

	if err := d.store.ClearAll(); err != nil {
		zap.S().Errorw("cannot clear session state", "error", err)
	}

	zap.S().Info("device unenrolled")

	if d.OnUnenroll != nil {
		d.OnUnenroll()
	}
}

func (d *Dispatcher) subscribeFleet(fleet string) {
	if err := d.broker.Subscribe(fleet + "/#"); err != nil {
		zap.S().Errorw("cannot subscribe to fleet", "fleet", fleet, "error", err)
		return
	}

	zap.S().Infow("subscribed to fleet", "fleet", fleet)
}

// fileOp replaces the pending file set with the partition carried by the
// command. Removals run inline; deploy fetches run on a background goroutine,
// sequentially, and discard their writes when the set is superseded before
// they complete.
func (d *Dispatcher) fileOp(cmd entity.Command) {
	generation := d.generation.Add(1)

	d.pending = entity.PendingFileSet{
		Generation: generation,
		Deploy:     cmd.Deploy,
		Remove:     cmd.Remove,
	}

	for _, remove := range cmd.Remove {
		if err := d.documents.Remove(remove.Path); err != nil {
			zap.S().Warnw("cannot remove file", "path", remove.Path, "error", err)
		}
	}

	if len(cmd.Deploy) > 0 {
		go d.deploy(generation, cmd.Deploy)
	}
}

func (d *Dispatcher) deploy(generation uint64, files []entity.FileDeploy) {
	ctx := context.Background()

	session, err := d.sessions.InitSession(ctx, d.userToken)
	if err != nil {
		zap.S().Errorw("cannot open deploy session", "error", err)
		return
	}

	full, err := d.sessions.GetFullSession(ctx, session)
	if err != nil {
		zap.S().Errorw("cannot get full session", "error", err)
		return
	}

	if full.ActiveProfileID != full.GuestProfileID {
		zap.S().Errorw("deploy session is not on the guest profile", "active", full.ActiveProfileID, "guest", full.GuestProfileID)
		return
	}

	if err := d.sessions.ChangeActiveProfile(ctx, session, full.ActiveProfileID); err != nil {
		zap.S().Errorw("cannot change active profile", "error", err)
		return
	}

	// sequential to bound the concurrent download count
	for _, file := range files {
		data, err := d.sessions.GetFile(ctx, session, file.ID)
		if err != nil {
			zap.S().Errorw("cannot fetch file", "id", file.ID, "error", err)
			continue
		}

		// a later file command replaced the set; drop the stale write
		if d.generation.Load() != generation {
			zap.S().Infow("file set superseded, discarding downloads", "generation", generation)
			return
		}

		if err := d.documents.Store(file.Path, data); err != nil {
			zap.S().Errorw("cannot store file", "id", file.ID, "path", file.Path, "error", err)
			continue
		}

		zap.S().Infow("file deployed", "id", file.ID, "path", file.Path)
	}
}
