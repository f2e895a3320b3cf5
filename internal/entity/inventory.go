package entity

import "time"

// Inventory is a snapshot of the device hardware and system facts.
type Inventory struct {
	Hostname     string    `json:"hostname"`
	OS           string    `json:"os"`
	OSVersion    string    `json:"version"`
	SerialNumber string    `json:"serial"`
	CPUModel     string    `json:"cpu_model"`
	CPUCores     uint32    `json:"cpu_cores"`
	MemoryBytes  int64     `json:"memory_bytes"`
	StorageBytes uint64    `json:"storage_bytes"`
	CollectedAt  time.Time `json:"collected_at"`
}
