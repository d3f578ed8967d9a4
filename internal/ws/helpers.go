package ws

import "github.com/google/uuid"

// newConnID labels one websocket connection in logs and metrics.
func newConnID() string {
	return uuid.NewString()
}
