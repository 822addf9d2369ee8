package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ExportJob represents one export of a timeline to a deliverable file
type ExportJob struct {
	ID          string       `json:"id" db:"id"`
	Status      string       `json:"status" db:"status"`
	Driver      string       `json:"driver" db:"driver"`
	Progress    int          `json:"progress" db:"progress"`
	ErrorMsg    string       `json:"error_msg,omitempty" db:"error_msg"`
	WorkerID    string       `json:"worker_id,omitempty" db:"worker_id"`
	OutputKey   string       `json:"output_key,omitempty" db:"output_key"`
	MimeType    string       `json:"mime_type,omitempty" db:"mime_type"`
	StartedAt   *time.Time   `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
	Timeline    Timeline     `json:"timeline" db:"timeline"`
	Config      ExportConfig `json:"config" db:"config"`
}

// ExportConfig holds output parameters for an export job
type ExportConfig struct {
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	FPS     float64 `json:"fps"`
	Quality string  `json:"quality"` // high, medium, low
	Format  string  `json:"format"`  // mp4, webm
}

// CRF returns the H.264 constant rate factor for the configured quality tier
func (c ExportConfig) CRF() int {
	return CRFForQuality(c.Quality)
}

// CRFForQuality maps a quality tier to its H.264 constant rate factor
func CRFForQuality(quality string) int {
	switch quality {
	case QualityHigh:
		return 18
	case QualityLow:
		return 28
	default:
		return 23
	}
}

// Value implements driver.Valuer for database storage
func (c ExportConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for database retrieval
func (c *ExportConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, c)
}

// Value implements driver.Valuer for database storage
func (tl Timeline) Value() (driver.Value, error) {
	return json.Marshal(tl)
}

// Scan implements sql.Scanner for database retrieval
func (tl *Timeline) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, tl)
}

// ExportJob status constants
const (
	ExportStatusPending   = "pending"
	ExportStatusQueued    = "queued"
	ExportStatusRendering = "rendering"
	ExportStatusRemuxing  = "remuxing"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
	ExportStatusCancelled = "cancelled"
)

// Export driver constants
const (
	DriverCapture     = "capture"
	DriverDeclarative = "declarative"
)

// Quality tier constants
const (
	QualityHigh   = "high"
	QualityMedium = "medium"
	QualityLow    = "low"
)

// ExportResult is the deliverable produced by an export driver: a single
// encoded media blob tagged with its container MIME type.
type ExportResult struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
}
