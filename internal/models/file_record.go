package models

import (
	"fmt"
	"strings"
)

// Placeholder values used when the backend omits a field.
const (
	UnnamedFile  = "Unnamed File"
	MissingValue = "-"
)

// FileRecord describes one extension build stored by the backend.
type FileRecord struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"fileName"`
	Platform    Platform `json:"browser"`
	Version     string   `json:"version"`
	SizeBytes   int64    `json:"fileSize"`
}

// UploadRequest is a build submitted for a platform and version.
// Payload must be non-nil; an empty file is still a file.
type UploadRequest struct {
	FileName string
	Payload  []byte   `validate:"required"`
	Platform Platform `validate:"required"`
	Version  string   `validate:"notblank"`
}

// Size reports the payload length in bytes.
func (r UploadRequest) Size() int64 {
	return int64(len(r.Payload))
}

// Normalized returns the platform and version as the backend stores them.
func (r UploadRequest) Normalized() (Platform, string) {
	return Platform(strings.ToLower(strings.TrimSpace(string(r.Platform)))), strings.TrimSpace(r.Version)
}

// Name is the file name sent with the upload: FileName when set, otherwise
// "{platform}-{version}.zip".
func (r UploadRequest) Name() string {
	if r.FileName != "" {
		return r.FileName
	}
	platform, version := r.Normalized()
	return fmt.Sprintf("%s-%s.zip", platform, version)
}
