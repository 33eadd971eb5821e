package models

import "time"

// MediaKind is the category a MIME type falls into.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaFile is the part shared by images and videos: one record, one file on disk.
type MediaFile struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimeType"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

type ProjectImage struct {
	MediaFile
}

type ProjectVideo struct {
	MediaFile
	// Duration in seconds, when known.
	Duration *float64 `json:"duration,omitempty"`
}

// MediaIndex is the persisted shape of the media table, keyed by project ID.
type MediaIndex struct {
	Images map[string][]ProjectImage `json:"images"`
	Videos map[string][]ProjectVideo `json:"videos"`
}

func NewMediaIndex() MediaIndex {
	return MediaIndex{
		Images: map[string][]ProjectImage{},
		Videos: map[string][]ProjectVideo{},
	}
}
