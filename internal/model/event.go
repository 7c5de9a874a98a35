package model

import "github.com/google/uuid"

// UploadedEvent is the queue message published after a successful upload.
// Consumers use it to kick off enhancement without the client asking.
type UploadedEvent struct {
	ID uuid.UUID `json:"id"`
}
