package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dudin-george/cu-x5-bootcamp/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func TestQuizScenario(t *testing.T) {
	f := newFixture(t,
		blockSpec{name: "Algorithms", required: 2, answers: []string{"A", "B"}},
		blockSpec{name: "Databases", required: 1, answers: []string{"C"}},
	)
	ctx := context.Background()

	// Answer every question with "A" except the Databases one, so exactly
	// one Algorithms question is wrong.
	submitted := func(q QuestionPayload) string {
		if q.BlockName == "Databases" {
			return "C"
		}
		return "A"
	}

	start := f.start(t, uuid.New())
	if start.Question.BlockName != "Algorithms" {
		t.Fatalf("Expected first question from Algorithms, got %s", start.Question.BlockName)
	}
	if start.Question.QuestionNumber != 1 {
		t.Errorf("Expected question number 1, got %d", start.Question.QuestionNumber)
	}
	if len(start.Question.Options) != 4 || start.Question.Options[0].Key != "A" || start.Question.Options[3].Text != "delta" {
		t.Errorf("Unexpected options: %+v", start.Question.Options)
	}
	if start.TotalDurationSeconds != 900 {
		t.Errorf("Expected 900 seconds, got %d", start.TotalDurationSeconds)
	}
	if !start.ExpiresAt.Equal(start.StartedAt.Add(15 * time.Minute)) {
		t.Errorf("Expected expiry 15 minutes after start, got %s -> %s", start.StartedAt, start.ExpiresAt)
	}

	current := start.Question
	blocksSeen := []string{current.BlockName}
	var final *EndOutcome

	for i := 0; i < 3; i++ {
		f.clock.Advance(10 * time.Second)
		out, err := f.engine.Answer(ctx, &SubmitAnswerRequest{
			SessionID:  start.SessionID,
			QuestionID: current.ID,
			Answer:     submitted(current),
		})
		if err != nil {
			t.Fatalf("Answer %d failed: %v", i+1, err)
		}

		switch out.Type {
		case OutcomeContinue:
			if i == 2 {
				t.Fatalf("Expected end after third answer")
			}
			if out.Continue.QuestionsAnswered != i+1 {
				t.Errorf("Expected %d answered, got %d", i+1, out.Continue.QuestionsAnswered)
			}
			if out.Continue.NextQuestion.QuestionNumber != i+2 {
				t.Errorf("Expected question number %d, got %d", i+2, out.Continue.NextQuestion.QuestionNumber)
			}
			wantRemaining := 900 - 10*(i+1)
			if out.Continue.TimeRemainingSeconds != wantRemaining {
				t.Errorf("Expected %d seconds remaining, got %d", wantRemaining, out.Continue.TimeRemainingSeconds)
			}
			current = out.Continue.NextQuestion
			blocksSeen = append(blocksSeen, current.BlockName)
		case OutcomeEnd:
			if i != 2 {
				t.Fatalf("Session ended early after %d answers", i+1)
			}
			final = out.End
		default:
			t.Fatalf("Unknown outcome type %q", out.Type)
		}
	}

	if blocksSeen[0] != "Algorithms" || blocksSeen[1] != "Algorithms" || blocksSeen[2] != "Databases" {
		t.Errorf("Expected blocks to be filled in order, got %v", blocksSeen)
	}

	if final.Reason != models.ReasonAllAnswered {
		t.Errorf("Expected reason all_questions_answered, got %s", final.Reason)
	}
	if final.IsCorrect == nil || !*final.IsCorrect || final.CorrectAnswer != "C" {
		t.Errorf("Expected last answer graded correct with C, got %v %q", final.IsCorrect, final.CorrectAnswer)
	}

	r := final.Results
	if r.TotalQuestions != 3 || r.CorrectAnswers != 2 || r.WrongAnswers != 1 {
		t.Errorf("Expected 3/2/1, got %d/%d/%d", r.TotalQuestions, r.CorrectAnswers, r.WrongAnswers)
	}
	if math.Abs(r.Accuracy-66.67) > 0.01 {
		t.Errorf("Expected accuracy 66.67, got %v", r.Accuracy)
	}
	if r.CompletionTimeSeconds != 30 {
		t.Errorf("Expected completion time 30s, got %d", r.CompletionTimeSeconds)
	}

	want := []BlockPerformance{
		{BlockName: "Algorithms", Correct: 1, Total: 2, Accuracy: 50},
		{BlockName: "Databases", Correct: 1, Total: 1, Accuracy: 100},
	}
	if len(r.BlocksPerformance) != len(want) {
		t.Fatalf("Expected %d blocks, got %+v", len(want), r.BlocksPerformance)
	}
	for i, w := range want {
		if r.BlocksPerformance[i] != w {
			t.Errorf("Block %d: expected %+v, got %+v", i, w, r.BlocksPerformance[i])
		}
	}

	s := f.session(t, start.SessionID)
	if s.Status != models.SessionCompleted || s.EndedAt == nil {
		t.Errorf("Expected completed session with end time, got %s", s.Status)
	}
	if !s.Score.Valid || s.Score.Decimal.StringFixed(2) != "66.67" {
		t.Errorf("Expected stored score 66.67, got %v", s.Score)
	}
	if s.TotalQuestions != s.CorrectAnswers+s.WrongAnswers {
		t.Errorf("Counters out of balance: %d != %d + %d", s.TotalQuestions, s.CorrectAnswers, s.WrongAnswers)
	}

	wantEvents := []EventType{
		EventSessionStarted,
		EventAnswerRecorded, EventAnswerRecorded, EventAnswerRecorded,
		EventSessionCompleted,
	}
	got := f.sink.Types()
	if len(got) != len(wantEvents) {
		t.Fatalf("Expected events %v, got %v", wantEvents, got)
	}
	for i := range wantEvents {
		if got[i] != wantEvents[i] {
			t.Errorf("Event %d: expected %s, got %s", i, wantEvents[i], got[i])
		}
	}
}

func TestStartErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown track", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Start(ctx, &StartQuizRequest{CandidateID: uuid.New(), TrackID: 999})
		if !errors.Is(err, ErrTrackNotFound) || KindOf(err) != KindNotFound {
			t.Errorf("Expected track not found, got %v", err)
		}
	})

	t.Run("track without blocks", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Start(ctx, &StartQuizRequest{CandidateID: uuid.New(), TrackID: f.track.ID})
		if !errors.Is(err, ErrTrackNotConfigured) || KindOf(err) != KindConfiguration {
			t.Errorf("Expected configuration error, got %v", err)
		}
	})

	t.Run("blocks without active questions", func(t *testing.T) {
		f := newFixture(t, blockSpec{name: "Empty", required: 2})
		_, err := f.engine.Start(ctx, &StartQuizRequest{CandidateID: uuid.New(), TrackID: f.track.ID})
		if !errors.Is(err, ErrNoQuestions) || KindOf(err) != KindConfiguration {
			t.Errorf("Expected no questions error, got %v", err)
		}
	})
}

func TestStartDuplicateSession(t *testing.T) {
	f := newFixture(t, blockSpec{name: "Go", required: 2, answers: []string{"A", "B"}})
	ctx := context.Background()
	candidate := uuid.New()

	first := f.start(t, candidate)

	_, err := f.engine.Start(ctx, &StartQuizRequest{CandidateID: candidate, TrackID: f.track.ID})
	if !errors.Is(err, ErrDuplicateSession) || KindOf(err) != KindConflict {
		t.Fatalf("Expected duplicate session conflict, got %v", err)
	}

	// Another candidate is unaffected.
	f.start(t, uuid.New())

	// Once the first session is overdue a new one may start, and the old
	// one is closed as timed out.
	f.clock.Advance(16 * time.Minute)
	second := f.start(t, candidate)
	if second.SessionID == first.SessionID {
		t.Fatal("Expected a new session")
	}

	old := f.session(t, first.SessionID)
	if old.Status != models.SessionCompleted || old.CompletionReason == nil || *old.CompletionReason != models.ReasonTimeout {
		t.Errorf("Expected old session completed by timeout, got %s %v", old.Status, old.CompletionReason)
	}
}

func TestAnswerAfterExpiry(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
	}{
		{"exactly at expiry", 15 * time.Minute},
		{"well past expiry", 2 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, blockSpec{name: "Go", required: 2, answers: []string{"A", "A"}})
			ctx := context.Background()

			start := f.start(t, uuid.New())
			f.clock.Advance(tt.advance)

			out, err := f.engine.Answer(ctx, &SubmitAnswerRequest{
				SessionID:  start.SessionID,
				QuestionID: start.Question.ID,
				Answer:     "A",
			})
			if err != nil {
				t.Fatalf("Answer failed: %v", err)
			}
			if out.Type != OutcomeEnd || out.End.Reason != models.ReasonTimeout {
				t.Fatalf("Expected timeout end, got %+v", out)
			}
			if out.End.IsCorrect != nil {
				t.Error("Expected the late answer not to be graded")
			}
			if out.End.Results.TotalQuestions != 0 || out.End.Results.Accuracy != 0 {
				t.Errorf("Expected empty results, got %+v", out.End.Results)
			}

			if n := f.answerCount(t, start.SessionID); n != 0 {
				t.Errorf("Expected late answer not persisted, found %d", n)
			}
			s := f.session(t, start.SessionID)
			if s.Status != models.SessionCompleted || s.CorrectAnswers != 0 || s.WrongAnswers != 0 {
				t.Errorf("Expected completed session with untouched counters, got %+v", s)
			}
			if !s.Score.Valid || !s.Score.Decimal.IsZero() {
				t.Errorf("Expected score 0, got %v", s.Score)
			}
		})
	}
}

func TestAnswerTimeoutKeepsRecordedAnswers(t *testing.T) {
	f := newFixture(t, blockSpec{name: "Go", required: 3, answers: []string{"A", "A", "A"}})
	ctx := context.Background()

	start := f.start(t, uuid.New())
	f.clock.Advance(time.Minute)
	out, err := f.engine.Answer(ctx, &SubmitAnswerRequest{SessionID: start.SessionID, QuestionID: start.Question.ID, Answer: "A"})
	if err != nil || out.Type != OutcomeContinue {
		t.Fatalf("Expected continue, got %v %v", out, err)
	}

	f.clock.Advance(20 * time.Minute)
	out, err = f.engine.Answer(ctx, &SubmitAnswerRequest{SessionID: start.SessionID, QuestionID: out.Continue.NextQuestion.ID, Answer: "B"})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if out.Type != OutcomeEnd || out.End.Reason != models.ReasonTimeout {
		t.Fatalf("Expected timeout, got %+v", out)
	}
	r := out.End.Results
	if r.TotalQuestions != 1 || r.CorrectAnswers != 1 || r.WrongAnswers != 0 || r.Accuracy != 100 {
		t.Errorf("Expected only the first answer counted, got %+v", r)
	}
}

func TestAnswerCompletedSessionReplaysResult(t *testing.T) {
	f := newFixture(t, blockSpec{name: "Go", required: 1, answers: []string{"D"}})
	ctx := context.Background()

	start := f.start(t, uuid.New())
	req := &SubmitAnswerRequest{SessionID: start.SessionID, QuestionID: start.Question.ID, Answer: "D"}

	first, err := f.engine.Answer(ctx, req)
	if err != nil || first.Type != OutcomeEnd {
		t.Fatalf("Expected end, got %v %v", first, err)
	}

	again, err := f.engine.Answer(ctx, req)
	if err != nil {
		t.Fatalf("Expected replay, got %v", err)
	}
	if again.Type != OutcomeEnd || again.End.Reason != models.ReasonAllAnswered {
		t.Fatalf("Expected replayed end, got %+v", again)
	}
	if again.End.Results.TotalQuestions != 1 || again.End.Results.CorrectAnswers != 1 {
		t.Errorf("Expected unchanged results, got %+v", again.End.Results)
	}
	if n := f.answerCount(t, start.SessionID); n != 1 {
		t.Errorf("Expected one stored answer, got %d", n)
	}
	if got := f.sink.Types(); len(got) != 3 {
		t.Errorf("Expected no events from the replay, got %v", got)
	}
}

func TestAnswerRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid label", func(t *testing.T) {
		f := newFixture(t, blockSpec{name: "Go", required: 1, answers: []string{"A"}})
		start := f.start(t, uuid.New())

		for _, label := range []string{"a", "E", "AB", ""} {
			_, err := f.engine.Answer(ctx, &SubmitAnswerRequest{SessionID: start.SessionID, QuestionID: start.Question.ID, Answer: label})
			if !errors.Is(err, ErrInvalidOption) || KindOf(err) != KindValidation {
				t.Errorf("Label %q: expected validation error, got %v", label, err)
			}
		}
		if n := f.answerCount(t, start.SessionID); n != 0 {
			t.Errorf("Expected no answers stored, got %d", n)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t, blockSpec{name: "Go", required: 1, answers: []string{"A"}})
		_, err := f.engine.Answer(ctx, &SubmitAnswerRequest{SessionID: uuid.New(), QuestionID: uuid.New(), Answer: "A"})
		if !errors.Is(err, ErrSessionNotFound) || KindOf(err) != KindNotFound {
			t.Errorf("Expected session not found, got %v", err)
		}
	})

	t.Run("unknown question", func(t *testing.T) {
		f := newFixture(t, blockSpec{name: "Go", required: 1, answers: []string{"A"}})
		start := f.start(t, uuid.New())
		_, err := f.engine.Answer(ctx, &SubmitAnswerRequest{SessionID: start.SessionID, QuestionID: uuid.New(), Answer: "A"})
		if !errors.Is(err, ErrQuestionNotFound) {
			t.Errorf("Expected question not found, got %v", err)
		}
	})

	t.Run("question not served", func(t *testing.T) {
		f := newFixture(t,
			blockSpec{name: "Go", required: 1, answers: []string{"A"}},
			blockSpec{name: "SQL", required: 1, answers: []string{"B"}},
		)
		start := f.start(t, uuid.New())

		var other uuid.UUID
		for id, q := range f.questions {
			if q.BlockID == f.blocks["SQL"].ID {
				other = id
			}
		}
		_, err := f.engine.Answer(ctx, &SubmitAnswerRequest{SessionID: start.SessionID, QuestionID: other, Answer: "B"})
		if !errors.Is(err, ErrQuestionNotServed) || KindOf(err) != KindValidation {
			t.Errorf("Expected not served error, got %v", err)
		}
	})

	t.Run("same question twice", func(t *testing.T) {
		f := newFixture(t, blockSpec{name: "Go", required: 2, answers: []string{"A", "B"}})
		start := f.start(t, uuid.New())
		req := &SubmitAnswerRequest{SessionID: start.SessionID, QuestionID: start.Question.ID, Answer: "A"}

		if _, err := f.engine.Answer(ctx, req); err != nil {
			t.Fatalf("First answer failed: %v", err)
		}
		_, err := f.engine.Answer(ctx, req)
		if !errors.Is(err, ErrAlreadyAnswered) || KindOf(err) != KindConflict {
			t.Errorf("Expected already answered, got %v", err)
		}

		s := f.session(t, start.SessionID)
		if s.TotalQuestions != 1 {
			t.Errorf("Expected one counted answer, got %d", s.TotalQuestions)
		}
	})
}

func TestExhaustedBlockSkipsToNext(t *testing.T) {
	f := newFixture(t,
		blockSpec{name: "Small", required: 3, answers: []string{"A"}},
		blockSpec{name: "Next", required: 1, answers: []string{"B"}},
	)
	ctx := context.Background()

	start := f.start(t, uuid.New())
	if start.Question.BlockName != "Small" {
		t.Fatalf("Expected first question from Small, got %s", start.Question.BlockName)
	}

	out, err := f.engine.Answer(ctx, &SubmitAnswerRequest{SessionID: start.SessionID, QuestionID: start.Question.ID, Answer: "A"})
	if err != nil || out.Type != OutcomeContinue {
		t.Fatalf("Expected continue, got %v %v", out, err)
	}
	if out.Continue.NextQuestion.BlockName != "Next" {
		t.Errorf("Expected exhausted block to be skipped, got %s", out.Continue.NextQuestion.BlockName)
	}

	out, err = f.engine.Answer(ctx, &SubmitAnswerRequest{SessionID: start.SessionID, QuestionID: out.Continue.NextQuestion.ID, Answer: "B"})
	if err != nil || out.Type != OutcomeEnd {
		t.Fatalf("Expected end, got %v %v", out, err)
	}
	if out.End.Results.TotalQuestions != 2 {
		t.Errorf("Expected 2 answered, got %d", out.End.Results.TotalQuestions)
	}
}

func TestInactiveQuestionsAreNotServed(t *testing.T) {
	f := newFixture(t, blockSpec{name: "Go", required: 5, answers: []string{"A"}})
	ctx := context.Background()
	inactive := false

	if _, err := f.bank.CreateQuestion(ctx, &CreateQuestionRequest{
		BlockID: f.blocks["Go"].ID, QuestionText: "retired", OptionA: "1", OptionB: "2", OptionC: "3", OptionD: "4",
		CorrectAnswer: "A", IsActive: &inactive,
	}); err != nil {
		t.Fatalf("Failed to create inactive question: %v", err)
	}

	start := f.start(t, uuid.New())
	if start.Question.Text == "retired" {
		t.Fatal("Inactive question was served")
	}
	out, err := f.engine.Answer(ctx, &SubmitAnswerRequest{SessionID: start.SessionID, QuestionID: start.Question.ID, Answer: "A"})
	if err != nil || out.Type != OutcomeEnd {
		t.Fatalf("Expected end once the active pool is used up, got %v %v", out, err)
	}
}

func TestFinalizeIsCompareAndSet(t *testing.T) {
	f := newFixture(t, blockSpec{name: "Go", required: 2, answers: []string{"A", "A"}})
	start := f.start(t, uuid.New())
	s := f.session(t, start.SessionID)
	stale := s
	now := f.clock.Now()

	// The single test connection is held by the transaction, so everything
	// inside it goes through tx.
	err := f.db.Transaction(func(tx *gorm.DB) error {
		ok, err := f.engine.finalize(tx, &s, models.ReasonTimeout, now)
		if err != nil || !ok {
			t.Errorf("Expected first finalize to apply, got %v %v", ok, err)
		}

		ok, err = f.engine.finalize(tx, &stale, models.ReasonAllAnswered, now.Add(time.Minute))
		if err != nil || ok {
			t.Errorf("Expected second finalize to be a no-op, got %v %v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	got := f.session(t, start.SessionID)
	if got.CompletionReason == nil || *got.CompletionReason != models.ReasonTimeout {
		t.Errorf("Expected reason to stay timeout, got %v", got.CompletionReason)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(now) {
		t.Errorf("Expected end time %s, got %v", now, got.EndedAt)
	}
}

func TestResultsAndAttempts(t *testing.T) {
	f := newFixture(t, blockSpec{name: "Go", required: 2, answers: []string{"A", "A"}})
	ctx := context.Background()
	candidate := uuid.New()

	first := f.start(t, candidate)
	f.clock.Advance(30 * time.Second)
	if _, err := f.engine.Answer(ctx, &SubmitAnswerRequest{SessionID: first.SessionID, QuestionID: first.Question.ID, Answer: "A"}); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	res, err := f.engine.Results(ctx, first.SessionID)
	if err != nil {
		t.Fatalf("Results failed: %v", err)
	}
	if res.Status != models.SessionInProgress || res.CompletionReason != nil {
		t.Errorf("Expected running session, got %s", res.Status)
	}
	if res.Results.TotalQuestions != 1 || res.Results.Accuracy != 100 || res.Results.CompletionTimeSeconds != 30 {
		t.Errorf("Unexpected running projection: %+v", res.Results)
	}

	f.clock.Advance(time.Hour)
	second := f.start(t, candidate)

	attempts, err := f.engine.Attempts(ctx, candidate, nil)
	if err != nil {
		t.Fatalf("Attempts failed: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].SessionID != second.SessionID {
		t.Errorf("Expected newest attempt first")
	}
	if attempts[0].TrackName != "Backend" || attempts[0].Score != nil {
		t.Errorf("Unexpected newest attempt: %+v", attempts[0])
	}
	cur := attempts[0].CurrentQuestion
	if cur == nil || cur.ID != second.Question.ID || cur.QuestionNumber != 1 || cur.BlockName != "Go" || len(cur.Options) != 4 {
		t.Errorf("Expected running attempt to carry its current question, got %+v", cur)
	}
	if !attempts[0].ExpiresAt.Equal(second.ExpiresAt) {
		t.Errorf("Expected expiry %s, got %s", second.ExpiresAt, attempts[0].ExpiresAt)
	}
	if attempts[1].CurrentQuestion != nil {
		t.Errorf("Expected no current question on a finished attempt")
	}
	if attempts[1].Status != models.SessionCompleted || attempts[1].Score == nil || *attempts[1].Score != 100 {
		t.Errorf("Expected finished attempt with score 100, got %+v", attempts[1])
	}

	otherTrack := uint(9999)
	none, err := f.engine.Attempts(ctx, candidate, &otherTrack)
	if err != nil || len(none) != 0 {
		t.Errorf("Expected no attempts for other track, got %v %v", none, err)
	}

	if _, err := f.engine.Results(ctx, uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestAnsweredNeverExceedsPlan(t *testing.T) {
	f := newFixture(t,
		blockSpec{name: "One", required: 2, answers: []string{"A", "B", "C", "D"}},
		blockSpec{name: "Two", required: 1, answers: []string{"A", "B"}},
	)
	ctx := context.Background()

	for run := 0; run < 5; run++ {
		start := f.start(t, uuid.New())
		current := start.Question
		answered := 0
		for {
			out, err := f.engine.Answer(ctx, &SubmitAnswerRequest{SessionID: start.SessionID, QuestionID: current.ID, Answer: "B"})
			if err != nil {
				t.Fatalf("Answer failed: %v", err)
			}
			answered++
			if out.Type == OutcomeEnd {
				break
			}
			current = out.Continue.NextQuestion
		}
		if answered != 3 {
			t.Errorf("Run %d: expected 3 answers, got %d", run, answered)
		}
	}
}
