package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateConnectionID generates a unique transport-level connection handle.
func GenerateConnectionID() string {
	return "conn_" + uuid.NewString()
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
