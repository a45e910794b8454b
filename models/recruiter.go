package models

import (
	"time"

	"gorm.io/gorm"
)

// Recruiter is an operator allowed to manage the question bank and watch
// quiz activity.
type Recruiter struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Email        string         `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Name         string         `json:"name" gorm:"not null"`
	PasswordHash string         `json:"-" gorm:"not null"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}
