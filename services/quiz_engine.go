package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/dudin-george/cu-x5-bootcamp/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultQuizDuration = 15 * time.Minute

var lockForUpdate = clause.Locking{Strength: "UPDATE"}

// QuizEngine runs quiz sessions: start, answer, finalize. All session state
// lives in the database; answers to one session are serialized by a row lock
// on the session.
type QuizEngine struct {
	db       *gorm.DB
	bank     *QuestionBankService
	duration time.Duration
	events   EventSink

	now  func() time.Time
	pick func(n int) int
}

func NewQuizEngine(db *gorm.DB, bank *QuestionBankService, duration time.Duration, events EventSink) *QuizEngine {
	if duration <= 0 {
		duration = DefaultQuizDuration
	}
	return &QuizEngine{
		db:       db,
		bank:     bank,
		duration: duration,
		events:   events,
		now:      time.Now,
		pick:     randomIndex,
	}
}

type StartQuizRequest struct {
	CandidateID uuid.UUID `json:"candidate_id" binding:"required"`
	TrackID     uint      `json:"track_id" binding:"required"`
}

type StartQuizResponse struct {
	SessionID            uuid.UUID       `json:"session_id"`
	TrackName            string          `json:"track_name"`
	TotalDurationSeconds int             `json:"total_duration_seconds"`
	StartedAt            time.Time       `json:"started_at"`
	ExpiresAt            time.Time       `json:"expires_at"`
	Question             QuestionPayload `json:"question"`
}

type SubmitAnswerRequest struct {
	SessionID  uuid.UUID `json:"session_id" binding:"required"`
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Answer     string    `json:"answer" binding:"required"`
}

type SessionResultsResponse struct {
	Status           models.SessionStatus     `json:"status"`
	CompletionReason *models.CompletionReason `json:"completion_reason"`
	Results          QuizResults              `json:"results"`
}

type AttemptSummary struct {
	SessionID        uuid.UUID                `json:"session_id"`
	TrackID          uint                     `json:"track_id"`
	TrackName        string                   `json:"track_name"`
	StartedAt        time.Time                `json:"started_at"`
	ExpiresAt        time.Time                `json:"expires_at"`
	EndedAt          *time.Time               `json:"ended_at"`
	Status           models.SessionStatus     `json:"status"`
	CompletionReason *models.CompletionReason `json:"completion_reason"`
	Score            *float64                 `json:"score"`
	TotalQuestions   int                      `json:"total_questions"`
	CorrectAnswers   int                      `json:"correct_answers"`

	// CurrentQuestion is set for a running attempt so a client can resume it.
	CurrentQuestion *QuestionPayload `json:"current_question,omitempty"`
}

// Start opens a new session for the candidate on the track and serves its
// first question. An in-progress session that is already past its expiry is
// finalized with reason timeout first; one that is still running is a
// conflict.
func (e *QuizEngine) Start(ctx context.Context, req *StartQuizRequest) (*StartQuizResponse, error) {
	track, err := e.bank.GetTrack(ctx, req.TrackID)
	if err != nil {
		return nil, err
	}
	plan, err := e.bank.TrackPlan(ctx, track.ID)
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("track %q: %w", track.Name, ErrTrackNotConfigured)
	}

	now := e.now().UTC()
	var events []QuizEvent

	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var active models.QuizSession
	err = tx.Clauses(lockForUpdate).
		Where("candidate_id = ? AND track_id = ? AND status = ?", req.CandidateID, track.ID, models.SessionInProgress).
		First(&active).Error
	switch {
	case err == nil:
		if !active.IsExpired(now) {
			tx.Rollback()
			return nil, ErrDuplicateSession
		}
		finalized, err := e.finalize(tx, &active, models.ReasonTimeout, now)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if finalized {
			events = append(events, sessionEvent(EventSessionCompleted, &active, now))
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		tx.Rollback()
		return nil, err
	}

	next, err := nextQuestion(ctx, tx, uuid.Nil, plan, e.pick)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if next == nil {
		tx.Rollback()
		return nil, fmt.Errorf("track %q: %w", track.Name, ErrNoQuestions)
	}

	session := models.QuizSession{
		CandidateID:       req.CandidateID,
		TrackID:           track.ID,
		Status:            models.SessionInProgress,
		StartedAt:         now,
		ExpiresAt:         now.Add(e.duration),
		CurrentQuestionID: &next.Question.ID,
	}
	if err := tx.Create(&session).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateSession
		}
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	log.Printf("Quiz session %s started for candidate %s on track %q", session.ID, session.CandidateID, track.Name)
	e.emit(ctx, append(events, sessionEvent(EventSessionStarted, &session, now))...)

	return &StartQuizResponse{
		SessionID:            session.ID,
		TrackName:            track.Name,
		TotalDurationSeconds: int(e.duration / time.Second),
		StartedAt:            session.StartedAt,
		ExpiresAt:            session.ExpiresAt,
		Question:             questionPayload(next.Question, next.Entry.BlockName, 1),
	}, nil
}

// Answer grades one answer and either serves the next question or ends the
// session. A call at or past expiry ends the session with reason timeout and
// does not record the answer. A call against a completed session returns
// its final results unchanged.
func (e *QuizEngine) Answer(ctx context.Context, req *SubmitAnswerRequest) (*AnswerOutcome, error) {
	timer := prometheus.NewTimer(answerDuration)
	defer timer.ObserveDuration()

	if !models.IsOptionKey(req.Answer) {
		return nil, ErrInvalidOption
	}

	now := e.now().UTC()

	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	outcome, events, err := e.answer(ctx, tx, req, now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	e.emit(ctx, events...)
	return outcome, nil
}

func (e *QuizEngine) answer(ctx context.Context, tx *gorm.DB, req *SubmitAnswerRequest, now time.Time) (*AnswerOutcome, []QuizEvent, error) {
	var session models.QuizSession
	if err := tx.Clauses(lockForUpdate).First(&session, "id = ?", req.SessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("session %s: %w", req.SessionID, ErrSessionNotFound)
		}
		return nil, nil, err
	}

	if session.IsCompleted() {
		results, err := e.results(ctx, tx, &session, now)
		if err != nil {
			return nil, nil, err
		}
		reason := models.ReasonAllAnswered
		if session.CompletionReason != nil {
			reason = *session.CompletionReason
		}
		VerboseLog("Answer for completed session %s ignored", session.ID)
		return endOutcome(&EndOutcome{Reason: reason, Results: *results}), nil, nil
	}

	if session.IsExpired(now) {
		if _, err := e.finalize(tx, &session, models.ReasonTimeout, now); err != nil {
			return nil, nil, err
		}
		results, err := e.results(ctx, tx, &session, now)
		if err != nil {
			return nil, nil, err
		}
		events := []QuizEvent{sessionEvent(EventSessionCompleted, &session, now)}
		return endOutcome(&EndOutcome{Reason: models.ReasonTimeout, Results: *results}), events, nil
	}

	var question models.Question
	if err := tx.First(&question, "id = ?", req.QuestionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("question %s: %w", req.QuestionID, ErrQuestionNotFound)
		}
		return nil, nil, err
	}

	var previous []models.QuizAnswer
	if err := tx.Where("session_id = ?", session.ID).Order("answered_at DESC").Find(&previous).Error; err != nil {
		return nil, nil, err
	}
	for _, a := range previous {
		if a.QuestionID == question.ID {
			return nil, nil, ErrAlreadyAnswered
		}
	}
	if session.CurrentQuestionID == nil || *session.CurrentQuestionID != question.ID {
		return nil, nil, ErrQuestionNotServed
	}

	servedAt := session.StartedAt
	if len(previous) > 0 {
		servedAt = previous[0].AnsweredAt
	}

	isCorrect := req.Answer == question.CorrectAnswer
	answer := models.QuizAnswer{
		SessionID:        session.ID,
		QuestionID:       question.ID,
		CandidateAnswer:  req.Answer,
		IsCorrect:        isCorrect,
		AnsweredAt:       now,
		TimeTakenSeconds: ElapsedSeconds(servedAt, now),
	}
	if err := tx.Create(&answer).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, ErrAlreadyAnswered
		}
		return nil, nil, err
	}

	counters := map[string]interface{}{
		"total_questions": gorm.Expr("total_questions + 1"),
	}
	if isCorrect {
		counters["correct_answers"] = gorm.Expr("correct_answers + 1")
		session.CorrectAnswers++
	} else {
		counters["wrong_answers"] = gorm.Expr("wrong_answers + 1")
		session.WrongAnswers++
	}
	session.TotalQuestions++
	if err := tx.Model(&models.QuizSession{}).Where("id = ?", session.ID).Updates(counters).Error; err != nil {
		return nil, nil, err
	}

	recorded := sessionEvent(EventAnswerRecorded, &session, now)
	recorded.QuestionID = &question.ID
	recorded.IsCorrect = &isCorrect
	events := []QuizEvent{recorded}

	plan, err := e.bank.trackPlan(ctx, tx, session.TrackID)
	if err != nil {
		return nil, nil, err
	}
	next, err := nextQuestion(ctx, tx, session.ID, plan, e.pick)
	if err != nil {
		return nil, nil, err
	}

	if next != nil {
		if err := tx.Model(&models.QuizSession{}).
			Where("id = ?", session.ID).
			Update("current_question_id", next.Question.ID).Error; err != nil {
			return nil, nil, err
		}
		return continueOutcome(&ContinueOutcome{
			IsCorrect:            isCorrect,
			CorrectAnswer:        question.CorrectAnswer,
			TimeRemainingSeconds: RemainingSeconds(session.ExpiresAt, now),
			QuestionsAnswered:    session.TotalQuestions,
			CorrectAnswers:       session.CorrectAnswers,
			NextQuestion:         questionPayload(next.Question, next.Entry.BlockName, session.TotalQuestions+1),
		}), events, nil
	}

	if _, err := e.finalize(tx, &session, models.ReasonAllAnswered, now); err != nil {
		return nil, nil, err
	}
	results, err := e.results(ctx, tx, &session, now)
	if err != nil {
		return nil, nil, err
	}
	events = append(events, sessionEvent(EventSessionCompleted, &session, now))

	return endOutcome(&EndOutcome{
		Reason:        models.ReasonAllAnswered,
		IsCorrect:     &isCorrect,
		CorrectAnswer: question.CorrectAnswer,
		Results:       *results,
	}), events, nil
}

// finalize moves an in-progress session to completed and stores its score.
// It is a compare-and-set on the status: when the session is no longer in
// progress nothing is written and false is returned.
func (e *QuizEngine) finalize(tx *gorm.DB, session *models.QuizSession, reason models.CompletionReason, now time.Time) (bool, error) {
	score := Percentage(session.CorrectAnswers, session.TotalQuestions)

	res := tx.Model(&models.QuizSession{}).
		Where("id = ? AND status = ?", session.ID, models.SessionInProgress).
		Updates(map[string]interface{}{
			"status":              models.SessionCompleted,
			"ended_at":            now,
			"score":               decimal.NewNullDecimal(score),
			"completion_reason":   reason,
			"current_question_id": nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("finalize session %s: %w", session.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	session.Status = models.SessionCompleted
	session.EndedAt = &now
	session.Score = decimal.NewNullDecimal(score)
	session.CompletionReason = &reason
	session.CurrentQuestionID = nil

	log.Printf("Quiz session %s completed (%s): %d/%d correct", session.ID, reason, session.CorrectAnswers, session.TotalQuestions)
	return true, nil
}

type blockTally struct {
	BlockID   uint
	BlockName string
	Total     int
	Correct   int
}

// results computes the summary of a session from its counters and recorded
// answers. For a session still in progress the completion time runs to now.
func (e *QuizEngine) results(ctx context.Context, db *gorm.DB, session *models.QuizSession, now time.Time) (*QuizResults, error) {
	end := now
	if session.EndedAt != nil {
		end = *session.EndedAt
	}

	var tallies []blockTally
	err := db.WithContext(ctx).
		Model(&models.QuizAnswer{}).
		Select("quiz_questions.block_id AS block_id, quiz_blocks.name AS block_name, " +
			"COUNT(*) AS total, SUM(CASE WHEN quiz_answers.is_correct THEN 1 ELSE 0 END) AS correct").
		Joins("JOIN quiz_questions ON quiz_questions.id = quiz_answers.question_id").
		Joins("JOIN quiz_blocks ON quiz_blocks.id = quiz_questions.block_id").
		Where("quiz_answers.session_id = ?", session.ID).
		Group("quiz_questions.block_id, quiz_blocks.name").
		Scan(&tallies).Error
	if err != nil {
		return nil, fmt.Errorf("block breakdown for session %s: %w", session.ID, err)
	}

	plan, err := e.bank.trackPlan(ctx, db, session.TrackID)
	if err != nil {
		return nil, err
	}
	order := make(map[uint]int, len(plan))
	for i, entry := range plan {
		order[entry.BlockID] = i
	}
	rank := func(blockID uint) int {
		if i, ok := order[blockID]; ok {
			return i
		}
		return len(plan)
	}
	sort.SliceStable(tallies, func(i, j int) bool {
		ri, rj := rank(tallies[i].BlockID), rank(tallies[j].BlockID)
		if ri != rj {
			return ri < rj
		}
		return tallies[i].BlockID < tallies[j].BlockID
	})

	blocks := make([]BlockPerformance, 0, len(tallies))
	for _, t := range tallies {
		blocks = append(blocks, BlockPerformance{
			BlockName: t.BlockName,
			Correct:   t.Correct,
			Total:     t.Total,
			Accuracy:  Percentage(t.Correct, t.Total).InexactFloat64(),
		})
	}

	return &QuizResults{
		SessionID:             session.ID,
		TotalQuestions:        session.TotalQuestions,
		CorrectAnswers:        session.CorrectAnswers,
		WrongAnswers:          session.WrongAnswers,
		Accuracy:              Percentage(session.CorrectAnswers, session.TotalQuestions).InexactFloat64(),
		CompletionTimeSeconds: ElapsedSeconds(session.StartedAt, end),
		BlocksPerformance:     blocks,
	}, nil
}

// Results returns the status and results of a session. Sessions still in
// progress get a running projection.
func (e *QuizEngine) Results(ctx context.Context, sessionID uuid.UUID) (*SessionResultsResponse, error) {
	var session models.QuizSession
	if err := e.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
		}
		return nil, err
	}

	results, err := e.results(ctx, e.db, &session, e.now().UTC())
	if err != nil {
		return nil, err
	}
	return &SessionResultsResponse{
		Status:           session.Status,
		CompletionReason: session.CompletionReason,
		Results:          *results,
	}, nil
}

// Attempts lists a candidate's sessions, newest first, optionally for one
// track. A running attempt that has not expired carries its current question.
func (e *QuizEngine) Attempts(ctx context.Context, candidateID uuid.UUID, trackID *uint) ([]AttemptSummary, error) {
	now := e.now().UTC()

	query := e.db.WithContext(ctx).Preload("Track").Where("candidate_id = ?", candidateID)
	if trackID != nil {
		query = query.Where("track_id = ?", *trackID)
	}

	var sessions []models.QuizSession
	if err := query.Order("started_at DESC").Find(&sessions).Error; err != nil {
		return nil, err
	}

	attempts := make([]AttemptSummary, 0, len(sessions))
	for _, s := range sessions {
		attempt := AttemptSummary{
			SessionID:        s.ID,
			TrackID:          s.TrackID,
			TrackName:        s.Track.Name,
			StartedAt:        s.StartedAt,
			ExpiresAt:        s.ExpiresAt,
			EndedAt:          s.EndedAt,
			Status:           s.Status,
			CompletionReason: s.CompletionReason,
			TotalQuestions:   s.TotalQuestions,
			CorrectAnswers:   s.CorrectAnswers,
		}
		if s.Score.Valid {
			score := s.Score.Decimal.InexactFloat64()
			attempt.Score = &score
		}
		if !s.IsCompleted() && !s.IsExpired(now) && s.CurrentQuestionID != nil {
			current, err := e.currentQuestion(ctx, &s)
			if err != nil {
				return nil, err
			}
			attempt.CurrentQuestion = current
		}
		attempts = append(attempts, attempt)
	}
	return attempts, nil
}

func (e *QuizEngine) currentQuestion(ctx context.Context, session *models.QuizSession) (*QuestionPayload, error) {
	var question models.Question
	err := e.db.WithContext(ctx).Preload("Block").First(&question, "id = ?", *session.CurrentQuestionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("current question of session %s: %w", session.ID, ErrQuestionNotFound)
		}
		return nil, err
	}
	payload := questionPayload(&question, question.Block.Name, session.TotalQuestions+1)
	return &payload, nil
}

// ExpireOverdue finalizes in-progress sessions whose expiry has passed and
// returns how many it finalized. The lazy check in Answer does the same for
// any session it touches first.
func (e *QuizEngine) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	now := e.now().UTC()

	var ids []uuid.UUID
	err := e.db.WithContext(ctx).
		Model(&models.QuizSession{}).
		Where("status = ? AND expires_at <= ?", models.SessionInProgress, now).
		Order("expires_at").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		ok, err := e.expireSession(ctx, id, now)
		if err != nil {
			log.Printf("Failed to expire session %s: %v", id, err)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (e *QuizEngine) expireSession(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	var session models.QuizSession
	finalized := false

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(lockForUpdate).First(&session, "id = ?", id).Error; err != nil {
			return err
		}
		if session.IsCompleted() || !session.IsExpired(now) {
			return nil
		}
		var err error
		finalized, err = e.finalize(tx, &session, models.ReasonTimeout, now)
		return err
	})
	if err != nil {
		return false, err
	}

	if finalized {
		e.emit(ctx, sessionEvent(EventSessionCompleted, &session, now))
	}
	return finalized, nil
}

func sessionEvent(typ EventType, session *models.QuizSession, now time.Time) QuizEvent {
	event := QuizEvent{
		Type:        typ,
		SessionID:   session.ID,
		CandidateID: session.CandidateID,
		TrackID:     session.TrackID,
		Reason:      session.CompletionReason,
		Timestamp:   now,
	}
	if session.Score.Valid {
		score := session.Score.Decimal.InexactFloat64()
		event.Score = &score
	}
	return event
}

// emit records metrics for committed events and hands them to the sink.
// Sink failures are logged only.
func (e *QuizEngine) emit(ctx context.Context, events ...QuizEvent) {
	for _, event := range events {
		switch event.Type {
		case EventSessionStarted:
			sessionsStarted.Inc()
		case EventAnswerRecorded:
			if event.IsCorrect != nil {
				answersRecorded.WithLabelValues(resultLabel(*event.IsCorrect)).Inc()
			}
		case EventSessionCompleted:
			if event.Reason != nil {
				sessionsFinalized.WithLabelValues(string(*event.Reason)).Inc()
			}
		}

		if e.events == nil {
			continue
		}
		if err := e.events.Publish(ctx, event); err != nil {
			log.Printf("Failed to publish %s for session %s: %v", event.Type, event.SessionID, err)
		}
	}
}
