package entity

type CommandKind int

const (
	// PingCommand asks the device to answer with a ping reply.
	PingCommand CommandKind = iota
	// GeolocateCommand asks the device to report its current position.
	GeolocateCommand
	// InventoryCommand asks the device to report its hardware inventory.
	InventoryCommand
	// UnenrollCommand asks the device to leave management.
	UnenrollCommand
	// SubscribeFleetCommand asks the device to join a fleet topic namespace.
	SubscribeFleetCommand
	// FileOpCommand carries the desired file state for the device.
	FileOpCommand
)

func (k CommandKind) String() string {
	switch k {
	case PingCommand:
		return "ping"
	case GeolocateCommand:
		return "geolocate"
	case InventoryCommand:
		return "inventory"
	case UnenrollCommand:
		return "unenroll"
	case SubscribeFleetCommand:
		return "subscribe-fleet"
	case FileOpCommand:
		return "file-op"
	default:
		return "unknown"
	}
}

// Command is a single management command decoded from one broker message.
// It exists only for the duration of dispatch.
type Command struct {
	Kind CommandKind

	// Reason is set for UnenrollCommand.
	Reason string

	// FleetTopic is set for SubscribeFleetCommand.
	FleetTopic string

	// Deploy and Remove are set for FileOpCommand, each in the relative
	// order the entries appeared in the payload.
	Deploy []FileDeploy
	Remove []FileRemove
}

// FileDeploy references a server-side file to fetch and store locally.
type FileDeploy struct {
	// ID is the server-side file id.
	ID string
	// Path is the target path, possibly carrying the documents placeholder.
	Path string
}

// FileRemove references a local file to delete.
type FileRemove struct {
	Path string
}

// PendingFileSet is the desired file state carried by the latest FileOp
// command. A new FileOp replaces the whole set; Generation lets fetches
// started for a superseded set discard their writes.
type PendingFileSet struct {
	Generation uint64
	Deploy     []FileDeploy
	Remove     []FileRemove
}
