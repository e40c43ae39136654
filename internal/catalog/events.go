package catalog

import "time"

// ArchivedEvent is published after a program reaches ARCHIVED.
type ArchivedEvent struct {
	AttemptID   string    `json:"attempt_id,omitempty"`
	ProgramID   int64     `json:"program_id"`
	BroadcastID string    `json:"broadcast_id"`
	StationID   string    `json:"station_id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Path        string    `json:"path"`
	SHA256      string    `json:"sha256,omitempty"`
	Size        int64     `json:"size,omitempty"`
	ObjectURI   string    `json:"object_uri,omitempty"`
}
