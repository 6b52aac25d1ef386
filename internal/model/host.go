package model

import "time"

// HostSnapshot captures host resource usage right before a script runs
type HostSnapshot struct {
	Hostname    string    `json:"hostname"`
	OS          string    `json:"os"`
	Platform    string    `json:"platform"`
	Uptime      uint64    `json:"uptime_seconds"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	DiskUsage   float64   `json:"disk_usage"`
	CollectedAt time.Time `json:"collected_at"`
}
