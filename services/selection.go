package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/dudin-george/cu-x5-bootcamp/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// selection is the next question drawn for a session and the plan entry it
// came from.
type selection struct {
	Question *models.Question
	Entry    PlanEntry
}

func randomIndex(n int) int {
	return rand.Intn(n)
}

// nextQuestion walks the plan in order and draws from the first block that
// still needs questions. Within a block the draw is uniform among active
// questions the session has not answered. A block whose pool is exhausted
// before its required count is skipped. It returns nil when the plan is
// satisfied.
func nextQuestion(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, plan []PlanEntry, pick func(n int) int) (*selection, error) {
	for _, entry := range plan {
		var answered []uuid.UUID
		if sessionID != uuid.Nil {
			err := tx.WithContext(ctx).
				Model(&models.QuizAnswer{}).
				Joins("JOIN quiz_questions ON quiz_questions.id = quiz_answers.question_id").
				Where("quiz_answers.session_id = ? AND quiz_questions.block_id = ?", sessionID, entry.BlockID).
				Pluck("quiz_answers.question_id", &answered).Error
			if err != nil {
				return nil, fmt.Errorf("count answers in block %d: %w", entry.BlockID, err)
			}
		}
		if len(answered) >= entry.Required {
			continue
		}

		query := tx.WithContext(ctx).
			Model(&models.Question{}).
			Where("block_id = ? AND is_active = ?", entry.BlockID, true)
		if len(answered) > 0 {
			query = query.Where("id NOT IN ?", answered)
		}

		var pool []uuid.UUID
		if err := query.Order("id").Pluck("id", &pool).Error; err != nil {
			return nil, fmt.Errorf("load pool for block %d: %w", entry.BlockID, err)
		}
		if len(pool) == 0 {
			VerboseLog("Block %d exhausted after %d of %d questions", entry.BlockID, len(answered), entry.Required)
			continue
		}

		var question models.Question
		err := tx.WithContext(ctx).First(&question, "id = ?", pool[pick(len(pool))]).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("drawn question vanished: %w", ErrQuestionNotFound)
			}
			return nil, err
		}
		return &selection{Question: &question, Entry: entry}, nil
	}
	return nil, nil
}

// questionPayload renders a question for the candidate, without its answer.
func questionPayload(q *models.Question, blockName string, number int) QuestionPayload {
	options := make([]OptionPayload, 0, len(models.OptionKeys))
	for _, key := range models.OptionKeys {
		options = append(options, OptionPayload{Key: key, Text: q.Option(key)})
	}
	return QuestionPayload{
		ID:             q.ID,
		Text:           q.Text,
		BlockName:      blockName,
		Options:        options,
		QuestionNumber: number,
	}
}
