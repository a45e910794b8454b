package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuizAnswer is a candidate's answer to one question. A question can be
// answered at most once per session (uq_session_question).
type QuizAnswer struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	SessionID        uuid.UUID `json:"session_id" gorm:"type:uuid;not null;uniqueIndex:uq_session_question,priority:1"`
	QuestionID       uuid.UUID `json:"question_id" gorm:"type:uuid;not null;uniqueIndex:uq_session_question,priority:2;index"`
	CandidateAnswer  string    `json:"candidate_answer" gorm:"size:1;not null"`
	IsCorrect        bool      `json:"is_correct" gorm:"not null"`
	AnsweredAt       time.Time `json:"answered_at" gorm:"not null"`
	TimeTakenSeconds int       `json:"time_taken_seconds" gorm:"not null;default:0"`

	// Relationships
	Session  QuizSession `json:"-" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Question Question    `json:"-" gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE"`
}

func (QuizAnswer) TableName() string { return "quiz_answers" }

func (a *QuizAnswer) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
