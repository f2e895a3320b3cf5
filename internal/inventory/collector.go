package inventory

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/jaypipes/ghw"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tupyy/mdm-agent-ng/internal/entity"
)

// Collector gathers the device hardware inventory. Facts which cannot be
// read are left zero; collection itself only fails when every probe fails.
type Collector struct {
	serial    string
	osVersion string
}

func New(serial, osVersion string) *Collector {
	return &Collector{
		serial:    serial,
		osVersion: osVersion,
	}
}

func (c *Collector) Collect(ctx context.Context) (entity.Inventory, error) {
	inventory := entity.Inventory{
		OS:           runtime.GOOS,
		OSVersion:    c.osVersion,
		SerialNumber: c.serial,
		CollectedAt:  time.Now().UTC(),
	}

	if hostname, err := os.Hostname(); err == nil {
		inventory.Hostname = hostname
	}

	// hardware probes are independent; gather them concurrently
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		cpu, err := ghw.CPU()
		if err != nil {
			zap.S().Warnw("cannot read cpu info", "error", err)
			return nil
		}

		inventory.CPUCores = cpu.TotalCores
		if len(cpu.Processors) > 0 {
			inventory.CPUModel = cpu.Processors[0].Model
		}

		return nil
	})

	g.Go(func() error {
		memory, err := ghw.Memory()
		if err != nil {
			zap.S().Warnw("cannot read memory info", "error", err)
			return nil
		}

		inventory.MemoryBytes = memory.TotalPhysicalBytes

		return nil
	})

	g.Go(func() error {
		block, err := ghw.Block()
		if err != nil {
			zap.S().Warnw("cannot read block storage info", "error", err)
			return nil
		}

		inventory.StorageBytes = block.TotalPhysicalBytes

		return nil
	})

	if err := g.Wait(); err != nil {
		return entity.Inventory{}, err
	}

	return inventory, nil
}
