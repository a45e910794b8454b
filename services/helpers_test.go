package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dudin-george/cu-x5-bootcamp/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []QuizEvent
}

func (s *recordingSink) Publish(ctx context.Context, event QuizEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]EventType, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.Type)
	}
	return types
}

type blockSpec struct {
	name     string
	required int
	answers  []string // correct option per question
}

type fixture struct {
	db        *gorm.DB
	bank      *QuestionBankService
	engine    *QuizEngine
	clock     *testClock
	sink      *recordingSink
	track     *models.Track
	blocks    map[string]*models.QuestionBlock
	questions map[uuid.UUID]*models.Question
}

func newFixture(t *testing.T, blocks ...blockSpec) *fixture {
	t.Helper()
	ctx := context.Background()

	db := newTestDB(t)
	bank := NewQuestionBankService(db, nil)
	sink := &recordingSink{}
	clock := newTestClock()

	engine := NewQuizEngine(db, bank, 15*time.Minute, sink)
	engine.now = clock.Now

	track, err := bank.CreateTrack(ctx, &CreateTrackRequest{Name: "Backend"})
	if err != nil {
		t.Fatalf("Failed to create track: %v", err)
	}

	f := &fixture{
		db:        db,
		bank:      bank,
		engine:    engine,
		clock:     clock,
		sink:      sink,
		track:     track,
		blocks:    make(map[string]*models.QuestionBlock),
		questions: make(map[uuid.UUID]*models.Question),
	}
	for _, spec := range blocks {
		f.addBlock(t, spec, true)
	}
	return f
}

func (f *fixture) addBlock(t *testing.T, spec blockSpec, link bool) *models.QuestionBlock {
	t.Helper()
	ctx := context.Background()

	block, err := f.bank.CreateBlock(ctx, &CreateBlockRequest{Name: spec.name})
	if err != nil {
		t.Fatalf("Failed to create block %s: %v", spec.name, err)
	}
	f.blocks[spec.name] = block

	for i, answer := range spec.answers {
		q, err := f.bank.CreateQuestion(ctx, &CreateQuestionRequest{
			BlockID:       block.ID,
			QuestionText:  spec.name + " question " + string(rune('1'+i)),
			OptionA:       "alpha",
			OptionB:       "beta",
			OptionC:       "gamma",
			OptionD:       "delta",
			CorrectAnswer: answer,
		})
		if err != nil {
			t.Fatalf("Failed to create question: %v", err)
		}
		f.questions[q.ID] = q
	}

	if link {
		if _, err := f.bank.LinkTrackBlock(ctx, &LinkTrackBlockRequest{
			TrackID:        f.track.ID,
			BlockID:        block.ID,
			QuestionsCount: spec.required,
		}); err != nil {
			t.Fatalf("Failed to link block %s: %v", spec.name, err)
		}
	}
	return block
}

func (f *fixture) start(t *testing.T, candidateID uuid.UUID) *StartQuizResponse {
	t.Helper()
	resp, err := f.engine.Start(context.Background(), &StartQuizRequest{CandidateID: candidateID, TrackID: f.track.ID})
	if err != nil {
		t.Fatalf("Failed to start quiz: %v", err)
	}
	return resp
}

func (f *fixture) session(t *testing.T, id uuid.UUID) models.QuizSession {
	t.Helper()
	var s models.QuizSession
	if err := f.db.First(&s, "id = ?", id).Error; err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	return s
}

func (f *fixture) answerCount(t *testing.T, sessionID uuid.UUID) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&models.QuizAnswer{}).Where("session_id = ?", sessionID).Count(&n).Error; err != nil {
		t.Fatalf("Failed to count answers: %v", err)
	}
	return n
}
