package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// CompletionReason records why a session was finalized.
type CompletionReason string

const (
	ReasonTimeout     CompletionReason = "timeout"
	ReasonAllAnswered CompletionReason = "all_questions_answered"
)

// QuizSession is one timed attempt at a track's quiz. At most one session per
// candidate and track may be in progress.
type QuizSession struct {
	ID                uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey"`
	CandidateID       uuid.UUID           `json:"candidate_id" gorm:"type:uuid;not null;index:idx_quiz_sessions_candidate;index:idx_quiz_sessions_active,unique,where:status = 'in_progress',priority:1"`
	TrackID           uint                `json:"track_id" gorm:"not null;index:idx_quiz_sessions_track;index:idx_quiz_sessions_active,priority:2"`
	Status            SessionStatus       `json:"status" gorm:"size:20;not null;default:'in_progress';index:idx_quiz_sessions_status"`
	StartedAt         time.Time           `json:"started_at" gorm:"not null"`
	ExpiresAt         time.Time           `json:"expires_at" gorm:"not null"`
	EndedAt           *time.Time          `json:"ended_at"`
	TotalQuestions    int                 `json:"total_questions" gorm:"not null;default:0"`
	CorrectAnswers    int                 `json:"correct_answers" gorm:"not null;default:0"`
	WrongAnswers      int                 `json:"wrong_answers" gorm:"not null;default:0"`
	Score             decimal.NullDecimal `json:"score" gorm:"type:numeric(5,2)"`
	CompletionReason  *CompletionReason   `json:"completion_reason" gorm:"size:32"`
	CurrentQuestionID *uuid.UUID          `json:"current_question_id,omitempty" gorm:"type:uuid"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`

	// Relationships
	Track   Track        `json:"-" gorm:"foreignKey:TrackID;constraint:OnDelete:CASCADE"`
	Answers []QuizAnswer `json:"answers,omitempty" gorm:"foreignKey:SessionID"`
}

func (QuizSession) TableName() string { return "quiz_sessions" }

func (s *QuizSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// IsCompleted reports whether the session has been finalized.
func (s *QuizSession) IsCompleted() bool {
	return s.Status == SessionCompleted
}

// IsExpired reports whether now is at or past the session's expiry.
func (s *QuizSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
