package core

import (
	"errors"
	"time"
)

// Server defaults
const (
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultIdleTimeout  = 5 * time.Second

	readBufferSize   = 4096
	tcpKeepAlive     = 30 * time.Second
	maxAcceptBackoff = time.Second
)

// Connection states. StateIdle covers both a fresh connection and a
// keep-alive one waiting for its next request.
const (
	StateReading int32 = iota
	StateProcessing
	StateIdle
)

// Error definitions
var (
	ErrServerClosed = errors.New("server closed")
)
