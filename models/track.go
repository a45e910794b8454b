package models

import "time"

type Track struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:255;uniqueIndex;not null"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relationships
	Blocks []TrackQuizBlock `json:"blocks,omitempty" gorm:"foreignKey:TrackID"`
}

// TrackQuizBlock says how many questions of a block make up a track's quiz.
// Blocks are filled in ascending Position order.
type TrackQuizBlock struct {
	TrackID        uint      `json:"track_id" gorm:"primaryKey"`
	BlockID        uint      `json:"block_id" gorm:"primaryKey"`
	QuestionsCount int       `json:"questions_count" gorm:"not null;default:5"`
	Position       int       `json:"position" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"created_at"`

	// Relationships
	Track Track         `json:"-" gorm:"foreignKey:TrackID;constraint:OnDelete:CASCADE"`
	Block QuestionBlock `json:"block,omitempty" gorm:"foreignKey:BlockID;constraint:OnDelete:CASCADE"`
}
