package database

import "github.com/google/uuid"

// generateID returns a random (version 4) UUID.
func generateID() string {
	return uuid.NewString()
}
