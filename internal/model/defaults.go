package model

import "time"

// Shared defaults used by both the server and CLI binaries.
const (
	DefaultPollInterval       = time.Second
	DefaultQueryTimeout       = 30 * time.Second
	DefaultMaxResultRows      = 1000
	DefaultFullscreenMinWidth = 100
)
