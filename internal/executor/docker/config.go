package docker

import (
	"time"
)

// Config holds the settings of the container-backed Python interpreter.
type Config struct {
	// Image must provide a `python` executable on PATH.
	Image string
	// MemoryLimit is the per-container memory cap in bytes.
	MemoryLimit int64
	// CPULimit is the number of CPUs a container may use.
	CPULimit float64
	// PoolSize is the number of idle containers kept warm.
	PoolSize int
	// PullTimeout bounds the image pull done at start.
	PullTimeout time.Duration
}

// DefaultConfig returns the settings used when PYTHON_BACKEND=docker.
func DefaultConfig() Config {
	return Config{
		Image:       "python:3.12-alpine",
		MemoryLimit: 128 * 1024 * 1024,
		CPULimit:    0.5,
		PoolSize:    2,
		PullTimeout: 2 * time.Minute,
	}
}
