package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OptionKeys are the labels of the four answer options, in display order.
var OptionKeys = []string{"A", "B", "C", "D"}

// IsOptionKey reports whether key is one of A, B, C or D. Comparison is case-sensitive.
func IsOptionKey(key string) bool {
	for _, k := range OptionKeys {
		if k == key {
			return true
		}
	}
	return false
}

type Question struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	BlockID       uint      `json:"block_id" gorm:"not null;index:idx_block_active,priority:1"`
	Text          string    `json:"question_text" gorm:"type:text;not null"`
	OptionA       string    `json:"option_a" gorm:"type:text;not null"`
	OptionB       string    `json:"option_b" gorm:"type:text;not null"`
	OptionC       string    `json:"option_c" gorm:"type:text;not null"`
	OptionD       string    `json:"option_d" gorm:"type:text;not null"`
	CorrectAnswer string    `json:"correct_answer" gorm:"size:1;not null"`
	Difficulty    string    `json:"difficulty" gorm:"size:20;not null;default:'medium'"`
	IsActive      bool      `json:"is_active" gorm:"not null;default:true;index:idx_block_active,priority:2"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Relationships
	Block QuestionBlock `json:"-" gorm:"foreignKey:BlockID;constraint:OnDelete:CASCADE"`
}

func (Question) TableName() string { return "quiz_questions" }

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// Option returns the text of the option labelled key, or "" for an unknown label.
func (q *Question) Option(key string) string {
	switch key {
	case "A":
		return q.OptionA
	case "B":
		return q.OptionB
	case "C":
		return q.OptionC
	case "D":
		return q.OptionD
	}
	return ""
}
