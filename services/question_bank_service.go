package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dudin-george/cu-x5-bootcamp/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuestionBankService manages blocks, questions, tracks and the per-track
// block plan. The quiz engine only reads from it.
type QuestionBankService struct {
	db    *gorm.DB
	cache PlanCache
}

func NewQuestionBankService(db *gorm.DB, cache PlanCache) *QuestionBankService {
	return &QuestionBankService{db: db, cache: cache}
}

type CreateBlockRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

type CreateTrackRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

type CreateQuestionRequest struct {
	BlockID       uint   `json:"block_id" binding:"required"`
	QuestionText  string `json:"question_text" binding:"required"`
	OptionA       string `json:"option_a" binding:"required"`
	OptionB       string `json:"option_b" binding:"required"`
	OptionC       string `json:"option_c" binding:"required"`
	OptionD       string `json:"option_d" binding:"required"`
	CorrectAnswer string `json:"correct_answer" binding:"required,oneof=A B C D"`
	Difficulty    string `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	IsActive      *bool  `json:"is_active"`
}

type LinkTrackBlockRequest struct {
	TrackID        uint `json:"track_id" binding:"required"`
	BlockID        uint `json:"block_id" binding:"required"`
	QuestionsCount int  `json:"questions_count" binding:"required,min=1"`
	Position       *int `json:"position"`
}

func boolOrTrue(b *bool) bool {
	return b == nil || *b
}

func (s *QuestionBankService) CreateBlock(ctx context.Context, req *CreateBlockRequest) (*models.QuestionBlock, error) {
	active := boolOrTrue(req.IsActive)
	block := models.QuestionBlock{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		IsActive:    active,
	}

	if err := s.db.WithContext(ctx).Create(&block).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("block %q: %w", block.Name, ErrDuplicateName)
		}
		return nil, err
	}
	// gorm skips zero-value bools on insert when a default tag is present and
	// reads the column default back into the struct.
	if !active {
		if err := s.db.WithContext(ctx).Model(&block).Update("is_active", false).Error; err != nil {
			return nil, err
		}
		block.IsActive = false
	}
	return &block, nil
}

func (s *QuestionBankService) GetBlock(ctx context.Context, id uint) (*models.QuestionBlock, error) {
	var block models.QuestionBlock
	if err := s.db.WithContext(ctx).First(&block, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("block %d: %w", id, ErrBlockNotFound)
		}
		return nil, err
	}
	return &block, nil
}

// ListBlocks returns blocks ordered by name, optionally filtered by the active flag.
func (s *QuestionBankService) ListBlocks(ctx context.Context, isActive *bool) ([]models.QuestionBlock, error) {
	query := s.db.WithContext(ctx).Model(&models.QuestionBlock{})
	if isActive != nil {
		query = query.Where("is_active = ?", *isActive)
	}

	var blocks []models.QuestionBlock
	err := query.Order("name").Find(&blocks).Error
	return blocks, err
}

func (s *QuestionBankService) CreateTrack(ctx context.Context, req *CreateTrackRequest) (*models.Track, error) {
	active := boolOrTrue(req.IsActive)
	track := models.Track{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		IsActive:    active,
	}

	if err := s.db.WithContext(ctx).Create(&track).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("track %q: %w", track.Name, ErrDuplicateName)
		}
		return nil, err
	}
	if !active {
		if err := s.db.WithContext(ctx).Model(&track).Update("is_active", false).Error; err != nil {
			return nil, err
		}
		track.IsActive = false
	}
	return &track, nil
}

func (s *QuestionBankService) GetTrack(ctx context.Context, id uint) (*models.Track, error) {
	var track models.Track
	if err := s.db.WithContext(ctx).First(&track, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("track %d: %w", id, ErrTrackNotFound)
		}
		return nil, err
	}
	return &track, nil
}

func (s *QuestionBankService) ListTracks(ctx context.Context, activeOnly bool) ([]models.Track, error) {
	query := s.db.WithContext(ctx).Model(&models.Track{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var tracks []models.Track
	err := query.Order("name").Find(&tracks).Error
	return tracks, err
}

func (s *QuestionBankService) CreateQuestion(ctx context.Context, req *CreateQuestionRequest) (*models.Question, error) {
	if !models.IsOptionKey(req.CorrectAnswer) {
		return nil, ErrInvalidOption
	}

	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}
	switch difficulty {
	case "easy", "medium", "hard":
	default:
		return nil, ErrInvalidDifficulty
	}

	if _, err := s.GetBlock(ctx, req.BlockID); err != nil {
		return nil, err
	}

	active := boolOrTrue(req.IsActive)
	question := models.Question{
		BlockID:       req.BlockID,
		Text:          req.QuestionText,
		OptionA:       req.OptionA,
		OptionB:       req.OptionB,
		OptionC:       req.OptionC,
		OptionD:       req.OptionD,
		CorrectAnswer: req.CorrectAnswer,
		Difficulty:    difficulty,
		IsActive:      active,
	}

	if err := s.db.WithContext(ctx).Create(&question).Error; err != nil {
		return nil, err
	}
	if !active {
		if err := s.db.WithContext(ctx).Model(&question).Update("is_active", false).Error; err != nil {
			return nil, err
		}
		question.IsActive = false
	}
	return &question, nil
}

func (s *QuestionBankService) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	var question models.Question
	if err := s.db.WithContext(ctx).Preload("Block").First(&question, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("question %s: %w", id, ErrQuestionNotFound)
		}
		return nil, err
	}
	return &question, nil
}

func (s *QuestionBankService) ListBlockQuestions(ctx context.Context, blockID uint) ([]models.Question, error) {
	if _, err := s.GetBlock(ctx, blockID); err != nil {
		return nil, err
	}

	var questions []models.Question
	err := s.db.WithContext(ctx).
		Where("block_id = ?", blockID).
		Order("created_at, id").
		Find(&questions).Error
	return questions, err
}

// LinkTrackBlock adds a block to a track's plan. Without an explicit position
// the block is appended after the track's current last block.
func (s *QuestionBankService) LinkTrackBlock(ctx context.Context, req *LinkTrackBlockRequest) (*models.TrackQuizBlock, error) {
	if req.QuestionsCount < 1 {
		return nil, ErrInvalidCount
	}
	if _, err := s.GetTrack(ctx, req.TrackID); err != nil {
		return nil, err
	}
	block, err := s.GetBlock(ctx, req.BlockID)
	if err != nil {
		return nil, err
	}

	link := models.TrackQuizBlock{
		TrackID:        req.TrackID,
		BlockID:        req.BlockID,
		QuestionsCount: req.QuestionsCount,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.TrackQuizBlock{}).
			Where("track_id = ? AND block_id = ?", req.TrackID, req.BlockID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return gorm.ErrDuplicatedKey
		}

		if req.Position != nil {
			link.Position = *req.Position
		} else {
			var last struct{ Max *int }
			if err := tx.Model(&models.TrackQuizBlock{}).
				Select("MAX(position) AS max").
				Where("track_id = ?", req.TrackID).
				Scan(&last).Error; err != nil {
				return err
			}
			if last.Max != nil {
				link.Position = *last.Max + 1
			}
		}
		return tx.Create(&link).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("track %d block %d: %w", req.TrackID, req.BlockID, ErrAlreadyLinked)
		}
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, req.TrackID)
	}

	link.Block = *block
	return &link, nil
}

// TrackBlocks lists a track's block links in fill order.
func (s *QuestionBankService) TrackBlocks(ctx context.Context, trackID uint) ([]models.TrackQuizBlock, error) {
	return trackBlocks(ctx, s.db, trackID)
}

func trackBlocks(ctx context.Context, db *gorm.DB, trackID uint) ([]models.TrackQuizBlock, error) {
	var links []models.TrackQuizBlock
	err := db.WithContext(ctx).
		Preload("Block").
		Where("track_id = ?", trackID).
		Order("position, block_id").
		Find(&links).Error
	return links, err
}

// TrackPlan returns the ordered block plan for a track, served from the plan
// cache when possible. An empty plan is returned as is; callers decide
// whether that is an error.
func (s *QuestionBankService) TrackPlan(ctx context.Context, trackID uint) ([]PlanEntry, error) {
	return s.trackPlan(ctx, s.db, trackID)
}

// trackPlan is TrackPlan reading through db, so callers inside a
// transaction stay on its connection.
func (s *QuestionBankService) trackPlan(ctx context.Context, db *gorm.DB, trackID uint) ([]PlanEntry, error) {
	if s.cache != nil {
		if plan, ok := s.cache.GetPlan(ctx, trackID); ok {
			return plan, nil
		}
	}

	links, err := trackBlocks(ctx, db, trackID)
	if err != nil {
		return nil, err
	}

	plan := make([]PlanEntry, 0, len(links))
	for _, link := range links {
		plan = append(plan, PlanEntry{
			BlockID:   link.BlockID,
			BlockName: link.Block.Name,
			Required:  link.QuestionsCount,
			Position:  link.Position,
		})
	}

	if s.cache != nil && len(plan) > 0 {
		s.cache.SetPlan(ctx, trackID, plan)
	}
	return plan, nil
}
