package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewSessionID returns a random identifier for an experiment run.
func NewSessionID() string {
	return uuid.NewString()
}

// ShortID returns the first block of a UUID, handy for file names and logs.
func ShortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
