package models

import (
	"time"

	"github.com/google/uuid"
)

// Video lifecycle states. A video becomes searchable and chattable only
// once processing has finished and the status is StatusReady.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

type Video struct {
	ID           string   `json:"id"`
	Filename     string   `json:"filename"`
	OriginalName string   `json:"original_name"`
	FilePath     string   `json:"file_path"`
	Size         int64    `json:"file_size"`
	Duration     *float64 `json:"duration,omitempty"`
	Status       string   `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewVideo(filename, originalName, filePath string, size int64) *Video {
	now := time.Now()
	return &Video{
		ID:           uuid.New().String(),
		Filename:     filename,
		OriginalName: originalName,
		FilePath:     filePath,
		Size:         size,
		Status:       StatusUploaded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
