package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/rs/xid"
)

// NewID returns a short, URL-safe, time-sortable identifier.
func NewID() string {
	return xid.New().String()
}

// NewRequestID returns a random hex token for request correlation.
func NewRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
