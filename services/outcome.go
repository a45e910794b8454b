package services

import (
	"encoding/json"
	"fmt"

	"github.com/dudin-george/cu-x5-bootcamp/models"

	"github.com/google/uuid"
)

type OptionPayload struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type QuestionPayload struct {
	ID             uuid.UUID       `json:"id"`
	Text           string          `json:"text"`
	BlockName      string          `json:"block_name"`
	Options        []OptionPayload `json:"options"`
	QuestionNumber int             `json:"question_number"`
}

type BlockPerformance struct {
	BlockName string  `json:"block_name"`
	Correct   int     `json:"correct"`
	Total     int     `json:"total"`
	Accuracy  float64 `json:"accuracy"`
}

type QuizResults struct {
	SessionID             uuid.UUID          `json:"session_id"`
	TotalQuestions        int                `json:"total_questions"`
	CorrectAnswers        int                `json:"correct_answers"`
	WrongAnswers          int                `json:"wrong_answers"`
	Accuracy              float64            `json:"accuracy"`
	CompletionTimeSeconds int                `json:"completion_time_seconds"`
	BlocksPerformance     []BlockPerformance `json:"blocks_performance"`
}

type OutcomeType string

const (
	OutcomeContinue OutcomeType = "continue"
	OutcomeEnd      OutcomeType = "end"
)

type ContinueOutcome struct {
	IsCorrect            bool            `json:"is_correct"`
	CorrectAnswer        string          `json:"correct_answer"`
	TimeRemainingSeconds int             `json:"time_remaining_seconds"`
	QuestionsAnswered    int             `json:"questions_answered"`
	CorrectAnswers       int             `json:"correct_answers"`
	NextQuestion         QuestionPayload `json:"next_question"`
}

// EndOutcome terminates a session. IsCorrect and CorrectAnswer are set only
// when the call that ended the session also graded an answer.
type EndOutcome struct {
	Reason        models.CompletionReason `json:"reason"`
	IsCorrect     *bool                   `json:"is_correct,omitempty"`
	CorrectAnswer string                  `json:"correct_answer,omitempty"`
	Results       QuizResults             `json:"results"`
}

// AnswerOutcome is the result of an answer submission: exactly one of
// Continue or End is set, as named by Type.
type AnswerOutcome struct {
	Type     OutcomeType
	Continue *ContinueOutcome
	End      *EndOutcome
}

func continueOutcome(c *ContinueOutcome) *AnswerOutcome {
	return &AnswerOutcome{Type: OutcomeContinue, Continue: c}
}

func endOutcome(e *EndOutcome) *AnswerOutcome {
	return &AnswerOutcome{Type: OutcomeEnd, End: e}
}

func (o AnswerOutcome) MarshalJSON() ([]byte, error) {
	switch o.Type {
	case OutcomeContinue:
		if o.Continue == nil {
			return nil, fmt.Errorf("continue outcome without payload")
		}
		return json.Marshal(struct {
			Type OutcomeType `json:"type"`
			*ContinueOutcome
		}{o.Type, o.Continue})
	case OutcomeEnd:
		if o.End == nil {
			return nil, fmt.Errorf("end outcome without payload")
		}
		return json.Marshal(struct {
			Type OutcomeType `json:"type"`
			*EndOutcome
		}{o.Type, o.End})
	default:
		return nil, fmt.Errorf("unknown outcome type %q", o.Type)
	}
}
