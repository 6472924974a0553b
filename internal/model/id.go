package model

import "github.com/google/uuid"

// NewID returns a time-ordered unique id for records created on this client.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
