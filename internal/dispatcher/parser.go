package dispatcher

import (
	"encoding/json"

	"github.com/tupyy/mdm-agent-ng/internal/entity"
)

const (
	queryPing      = "Ping"
	queryGeolocate = "Geolocate"
	queryInventory = "Inventory"
	unenrollNow    = "now"
)

// payload is the strict schema of an inbound broker message. A message may
// carry several recognized keys; rules are applied in priority order and the
// first match wins.
type payload struct {
	Query     string           `json:"query"`
	Unenroll  string           `json:"unenroll"`
	Subscribe []subscribeEntry `json:"subscribe"`
	File      []fileEntry      `json:"file"`
}

type subscribeEntry struct {
	Topic *string `json:"topic"`
}

// fileEntry uses pointers to tell an absent key apart from an empty value:
// partitioning is keyed on presence, not content.
type fileEntry struct {
	DeployFile *string `json:"deployFile"`
	RemoveFile *string `json:"removeFile"`
	ID         string  `json:"id"`
}

// parseCommand decodes one message body into at most one command. Malformed
// json or an unrecognized shape yields no command and no error; the caller
// drops the message.
func parseCommand(data []byte) (entity.Command, bool) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return entity.Command{}, false
	}

	switch p.Query {
	case queryPing:
		return entity.Command{Kind: entity.PingCommand}, true
	case queryGeolocate:
		return entity.Command{Kind: entity.GeolocateCommand}, true
	case queryInventory:
		return entity.Command{Kind: entity.InventoryCommand}, true
	}

	if p.Unenroll == unenrollNow {
		return entity.Command{Kind: entity.UnenrollCommand, Reason: p.Unenroll}, true
	}

	if len(p.Subscribe) > 0 {
		if topic := p.Subscribe[0].Topic; topic != nil {
			return entity.Command{Kind: entity.SubscribeFleetCommand, FleetTopic: *topic}, true
		}

		return entity.Command{}, false
	}

	if len(p.File) > 0 {
		cmd := entity.Command{Kind: entity.FileOpCommand}

		// partition in payload order
		for _, f := range p.File {
			switch {
			case f.DeployFile != nil:
				cmd.Deploy = append(cmd.Deploy, entity.FileDeploy{ID: f.ID, Path: *f.DeployFile})
			case f.RemoveFile != nil:
				cmd.Remove = append(cmd.Remove, entity.FileRemove{Path: *f.RemoveFile})
			}
		}

		return cmd, true
	}

	return entity.Command{}, false
}
