package models

import "time"

// MediaAsset is a stored media upload: the object key of its bytes plus the
// probed metadata recorded at upload time. Timelines reference assets by ID
// through their embedded MediaFile entries.
type MediaAsset struct {
	ID          string    `json:"id" db:"id"`
	Filename    string    `json:"filename" db:"filename"`
	Type        MediaType `json:"type" db:"type"`
	ObjectKey   string    `json:"object_key" db:"object_key"`
	ContentType string    `json:"content_type" db:"content_type"`
	Size        int64     `json:"size" db:"size"`
	Duration    float64   `json:"duration" db:"duration"`
	Width       int       `json:"width" db:"width"`
	Height      int       `json:"height" db:"height"`
	Codec       string    `json:"codec" db:"codec"`
	FrameRate   float64   `json:"frame_rate" db:"frame_rate"`
	HasAudio    bool      `json:"has_audio" db:"has_audio"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// AsMediaFile converts the stored asset into the timeline-embedded form
func (m *MediaAsset) AsMediaFile() MediaFile {
	return MediaFile{
		ID:       m.ID,
		Type:     m.Type,
		Filename: m.Filename,
		Locator:  m.ObjectKey,
		Size:     m.Size,
	}
}
