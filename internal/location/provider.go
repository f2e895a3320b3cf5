package location

import (
	"context"
	"time"

	"github.com/tupyy/mdm-agent-ng/internal/entity"
)

// Provider answers one-shot position requests.
type Provider interface {
	RequestCurrentFix(ctx context.Context) (entity.Fix, error)
}

// StaticProvider reports a fixed position stamped at request time. Devices
// without a positioning source are provisioned with their site coordinates.
type StaticProvider struct {
	latitude  float64
	longitude float64
}

func NewStaticProvider(latitude, longitude float64) *StaticProvider {
	return &StaticProvider{
		latitude:  latitude,
		longitude: longitude,
	}
}

func (p *StaticProvider) RequestCurrentFix(ctx context.Context) (entity.Fix, error) {
	return entity.Fix{
		Latitude:    p.latitude,
		Longitude:   p.longitude,
		EpochMillis: time.Now().UnixMilli(),
	}, nil
}
