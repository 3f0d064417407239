package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateViewerID generates a unique ID for a connected frame viewer
func GenerateViewerID() string {
	return GenerateID("viewer")
}

// GenerateSessionID generates a unique supervision session ID
func GenerateSessionID() string {
	return GenerateID("session")
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
