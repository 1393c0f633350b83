package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

// ShortID returns 12 hex characters of a random UUID, used in upload names.
func ShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
