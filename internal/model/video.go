// Package model defines database models
package model

import "time"

type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no transition can leave s
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}

	return false
}

type Sensitivity string

const (
	SensitivitySafe    Sensitivity = "safe"
	SensitivityFlagged Sensitivity = "flagged"
)

func (s Sensitivity) Valid() bool {
	return s == SensitivitySafe || s == SensitivityFlagged
}

type Video struct {
	ID           string       `gorm:"primaryKey" json:"id"`
	OwnerID      string       `gorm:"index;not null" json:"ownerId"`
	Title        string       `gorm:"not null" json:"title"`
	FilePath     string       `gorm:"not null" json:"-"` // Never exposed to clients
	OriginalName string       `gorm:"not null" json:"originalName"`
	MimeType     string       `json:"mimeType"`
	Size         int64        `json:"size"`
	Duration     *int64       `json:"duration"` // Whole seconds, null until probed
	Sensitivity  *Sensitivity `json:"sensitivity"`
	Status       Status       `gorm:"index;not null;default:uploading" json:"status"`
	Progress     int          `gorm:"not null;default:0" json:"progress"`
	Error        *string      `json:"error"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `gorm:"index" json:"updatedAt"`
}
