package models

import (
	"time"
)

// Task types recorded in task_progress
const (
	TaskTypeSchoolUpload  = "school_upload"
	TaskTypeContactUpdate = "contact_update"
)

// TaskProgress tracks the progress of long-running upload operations
type TaskProgress struct {
	ID        string    `gorm:"primaryKey" json:"id"`                        // UUID task ID
	TaskType  string    `gorm:"not null;column:task_type" json:"task_type"`  // school_upload, contact_update
	FileName  string    `gorm:"column:file_name" json:"file_name"`           // source spreadsheet
	Status    string    `gorm:"not null;default:starting" json:"status"`     // starting, running, completed, error
	Progress  int       `gorm:"not null;default:0" json:"progress"`          // 0-100
	Messages  string    `gorm:"type:text" json:"messages"`                   // JSON array of strings
	Results   string    `gorm:"type:text" json:"results"`                    // JSON blob
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (TaskProgress) TableName() string {
	return "task_progress"
}
