package models

import "time"

// QuestionBlock groups questions by topic (e.g. "Algorithms", "Python Basics").
type QuestionBlock struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:255;uniqueIndex;not null"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relationships
	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:BlockID"`
}

func (QuestionBlock) TableName() string { return "quiz_blocks" }
