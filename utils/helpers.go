/*
Package utils provides helper functions for the feed refresh agent.
*/
package utils

import (
	"github.com/google/uuid"
)

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return uuid.NewString()
}
