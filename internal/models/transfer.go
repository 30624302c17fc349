package models

import "time"

// Payload is a fully received download body.
type Payload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// SavedFile describes an artifact written to the local download directory.
type SavedFile struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Digest  string    `json:"digest"` // BLAKE3-256, hex
	SavedAt time.Time `json:"savedAt"`
}
