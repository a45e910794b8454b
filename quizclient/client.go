// Package quizclient is a small client for the candidate-facing quiz API.
package quizclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx response from the quiz API.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Code       string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("quiz api: status %d", e.StatusCode)
	}
	return e.Message
}

type Track struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type Question struct {
	ID             uuid.UUID `json:"id"`
	Text           string    `json:"text"`
	BlockName      string    `json:"block_name"`
	Options        []Option  `json:"options"`
	QuestionNumber int       `json:"question_number"`
}

type StartResponse struct {
	SessionID            uuid.UUID `json:"session_id"`
	TrackName            string    `json:"track_name"`
	TotalDurationSeconds int       `json:"total_duration_seconds"`
	StartedAt            time.Time `json:"started_at"`
	ExpiresAt            time.Time `json:"expires_at"`
	Question             Question  `json:"question"`
}

type BlockPerformance struct {
	BlockName string  `json:"block_name"`
	Correct   int     `json:"correct"`
	Total     int     `json:"total"`
	Accuracy  float64 `json:"accuracy"`
}

type Results struct {
	SessionID             uuid.UUID          `json:"session_id"`
	TotalQuestions        int                `json:"total_questions"`
	CorrectAnswers        int                `json:"correct_answers"`
	WrongAnswers          int                `json:"wrong_answers"`
	Accuracy              float64            `json:"accuracy"`
	CompletionTimeSeconds int                `json:"completion_time_seconds"`
	BlocksPerformance     []BlockPerformance `json:"blocks_performance"`
}

type Continue struct {
	IsCorrect            bool     `json:"is_correct"`
	CorrectAnswer        string   `json:"correct_answer"`
	TimeRemainingSeconds int      `json:"time_remaining_seconds"`
	QuestionsAnswered    int      `json:"questions_answered"`
	CorrectAnswers       int      `json:"correct_answers"`
	NextQuestion         Question `json:"next_question"`
}

type End struct {
	Reason        string  `json:"reason"`
	IsCorrect     *bool   `json:"is_correct"`
	CorrectAnswer string  `json:"correct_answer"`
	Results       Results `json:"results"`
}

const (
	TypeContinue = "continue"
	TypeEnd      = "end"
)

// AnswerResult holds exactly one of Continue or End, as named by Type.
type AnswerResult struct {
	Type     string
	Continue *Continue
	End      *End
}

func (r *AnswerResult) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Type {
	case TypeContinue:
		var c Continue
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		*r = AnswerResult{Type: head.Type, Continue: &c}
	case TypeEnd:
		var e End
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		*r = AnswerResult{Type: head.Type, End: &e}
	default:
		return fmt.Errorf("unknown answer result type %q", head.Type)
	}
	return nil
}

type Attempt struct {
	SessionID      uuid.UUID  `json:"session_id"`
	TrackID        uint       `json:"track_id"`
	TrackName      string     `json:"track_name"`
	StartedAt      time.Time  `json:"started_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	EndedAt        *time.Time `json:"ended_at"`
	Status         string     `json:"status"`
	Score          *float64   `json:"score"`
	TotalQuestions int        `json:"total_questions"`
	CorrectAnswers int        `json:"correct_answers"`

	// CurrentQuestion is set only for a running attempt.
	CurrentQuestion *Question `json:"current_question"`
}

const StatusInProgress = "in_progress"

func (c *Client) ListTracks(ctx context.Context) ([]Track, error) {
	var resp struct {
		Tracks []Track `json:"tracks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tracks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

func (c *Client) StartQuiz(ctx context.Context, candidateID uuid.UUID, trackID uint) (*StartResponse, error) {
	body := map[string]interface{}{
		"candidate_id": candidateID,
		"track_id":     trackID,
	}
	var resp StartResponse
	if err := c.do(ctx, http.MethodPost, "/api/quiz/start", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, sessionID, questionID uuid.UUID, answer string) (*AnswerResult, error) {
	body := map[string]interface{}{
		"session_id":  sessionID,
		"question_id": questionID,
		"answer":      answer,
	}
	var resp AnswerResult
	if err := c.do(ctx, http.MethodPost, "/api/quiz/answer", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Attempts(ctx context.Context, candidateID uuid.UUID, trackID uint) ([]Attempt, error) {
	q := url.Values{}
	q.Set("candidate_id", candidateID.String())
	if trackID != 0 {
		q.Set("track_id", strconv.FormatUint(uint64(trackID), 10))
	}

	var resp struct {
		Attempts []Attempt `json:"attempts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/quiz/attempts?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Attempts, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
