package telegram

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dudin-george/cu-x5-bootcamp/quizclient"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

const (
	callbackStartQuiz  = "start_quiz"
	callbackBackToMenu = "back_to_menu"
	prefixTrack        = "track_"
	prefixAnswer       = "quiz_ans_"
)

// candidateNamespace scopes the name-based UUIDs derived from Telegram user ids.
var candidateNamespace = uuid.MustParse("6f1c2b0e-3d4a-5e8f-9a7b-2c1d0e4f8a93")

// CandidateID maps a Telegram user to a stable candidate id, so the same
// person gets the same id on every start.
func CandidateID(telegramUserID int64) uuid.UUID {
	return uuid.NewSHA1(candidateNamespace, []byte(strconv.FormatInt(telegramUserID, 10)))
}

// QuizAPI is the part of the quiz service the bot talks to.
type QuizAPI interface {
	ListTracks(ctx context.Context) ([]quizclient.Track, error)
	StartQuiz(ctx context.Context, candidateID uuid.UUID, trackID uint) (*quizclient.StartResponse, error)
	SubmitAnswer(ctx context.Context, sessionID, questionID uuid.UUID, answer string) (*quizclient.AnswerResult, error)
	Attempts(ctx context.Context, candidateID uuid.UUID, trackID uint) ([]quizclient.Attempt, error)
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// chatQuiz is the quiz a chat is currently taking. The server owns the
// session; the bot only remembers which question it showed last.
type chatQuiz struct {
	candidateID uuid.UUID
	sessionID   uuid.UUID
	questionID  uuid.UUID
	trackID     uint
}

type Bot struct {
	api    *tgbotapi.BotAPI
	sender sender
	quiz   QuizAPI

	mu      sync.Mutex
	quizzes map[int64]*chatQuiz
}

func NewBot(token string, quiz QuizAPI, debug bool) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = debug

	b := newBot(api, quiz)
	b.api = api
	return b, nil
}

func newBot(s sender, quiz QuizAPI) *Bot {
	return &Bot{
		sender:  s,
		quiz:    quiz,
		quizzes: make(map[int64]*chatQuiz),
	}
}

// Start long-polls Telegram until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	log.Printf("Authorised on account: %s", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		chatID := update.Message.Chat.ID
		switch update.Message.Command() {
		case "start":
			b.sendMainMenu(chatID)
		case "quiz":
			b.showTracks(ctx, chatID)
		default:
			b.sendText(chatID, "Unknown command. Use /start to open the menu.")
		}
	}
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if _, err := b.sender.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		log.Printf("Error answering callback: %v", err)
	}
	if callback.Message == nil {
		return
	}

	chatID := callback.Message.Chat.ID
	data := callback.Data

	switch {
	case data == callbackStartQuiz:
		b.showTracks(ctx, chatID)
	case data == callbackBackToMenu:
		b.sendMainMenu(chatID)
	case strings.HasPrefix(data, prefixTrack):
		trackID, err := strconv.ParseUint(strings.TrimPrefix(data, prefixTrack), 10, 32)
		if err != nil {
			b.sendText(chatID, "❌ Unknown track.")
			return
		}
		var userID int64
		if callback.From != nil {
			userID = callback.From.ID
		}
		b.startQuiz(ctx, chatID, userID, uint(trackID))
	case strings.HasPrefix(data, prefixAnswer):
		b.handleAnswer(ctx, chatID, strings.TrimPrefix(data, prefixAnswer))
	default:
		b.sendText(chatID, "Unknown command. Use /start to open the menu.")
	}
}

func (b *Bot) sendMainMenu(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "📋 <b>Main menu</b>\n\nTake a short timed quiz for the track you are applying to.")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎯 Start quiz", callbackStartQuiz),
		),
	)
	b.send(msg)
}

func (b *Bot) showTracks(ctx context.Context, chatID int64) {
	tracks, err := b.quiz.ListTracks(ctx)
	if err != nil {
		log.Printf("Error loading tracks: %v", err)
		b.sendError(chatID, err)
		return
	}
	if len(tracks) == 0 {
		b.sendText(chatID, "❌ No tracks are open right now. Try again later.")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tracks))
	for _, track := range tracks {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(track.Name, prefixTrack+strconv.FormatUint(uint64(track.ID), 10)),
		))
	}

	msg := tgbotapi.NewMessage(chatID, "📚 Choose a track for the quiz:\n\n⏱ The quiz is timed\n❗ One attempt at a time")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(msg)
}

func (b *Bot) startQuiz(ctx context.Context, chatID, userID int64, trackID uint) {
	candidateID := CandidateID(userID)
	resp, err := b.quiz.StartQuiz(ctx, candidateID, trackID)
	if err != nil {
		var apiErr *quizclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			b.resumeQuiz(ctx, chatID, candidateID, trackID, err)
			return
		}
		log.Printf("Error starting quiz for chat %d: %v", chatID, err)
		b.sendError(chatID, err)
		return
	}

	b.mu.Lock()
	b.quizzes[chatID] = &chatQuiz{
		candidateID: candidateID,
		sessionID:   resp.SessionID,
		questionID:  resp.Question.ID,
		trackID:     trackID,
	}
	b.mu.Unlock()

	b.sendHTML(chatID, FormatStart(resp), nil)
	b.sendQuestion(chatID, resp.Question)
}

// resumeQuiz picks up a running attempt the server still holds for the
// candidate, e.g. after the bot restarted and lost its chat state.
func (b *Bot) resumeQuiz(ctx context.Context, chatID int64, candidateID uuid.UUID, trackID uint, startErr error) {
	attempts, err := b.quiz.Attempts(ctx, candidateID, trackID)
	if err != nil {
		log.Printf("Error loading attempts for chat %d: %v", chatID, err)
		b.sendError(chatID, startErr)
		return
	}

	for _, attempt := range attempts {
		if attempt.Status != quizclient.StatusInProgress || attempt.CurrentQuestion == nil {
			continue
		}

		b.mu.Lock()
		b.quizzes[chatID] = &chatQuiz{
			candidateID: candidateID,
			sessionID:   attempt.SessionID,
			questionID:  attempt.CurrentQuestion.ID,
			trackID:     trackID,
		}
		b.mu.Unlock()

		log.Printf("Resumed quiz session %s for chat %d", attempt.SessionID, chatID)
		b.sendHTML(chatID, FormatResume(attempt, time.Now()), nil)
		b.sendQuestion(chatID, *attempt.CurrentQuestion)
		return
	}

	b.sendError(chatID, startErr)
}

func (b *Bot) handleAnswer(ctx context.Context, chatID int64, label string) {
	b.mu.Lock()
	current, ok := b.quizzes[chatID]
	var state chatQuiz
	if ok {
		state = *current
	}
	b.mu.Unlock()

	if !ok {
		b.sendText(chatID, "No quiz in progress. Use /start to begin.")
		return
	}

	result, err := b.quiz.SubmitAnswer(ctx, state.sessionID, state.questionID, label)
	if err != nil {
		log.Printf("Error submitting answer for chat %d: %v", chatID, err)
		b.sendError(chatID, err)
		return
	}

	switch result.Type {
	case quizclient.TypeContinue:
		next := result.Continue.NextQuestion
		b.mu.Lock()
		if current, ok := b.quizzes[chatID]; ok {
			current.questionID = next.ID
		}
		b.mu.Unlock()

		b.sendHTML(chatID, FormatFeedback(result.Continue.IsCorrect, result.Continue.CorrectAnswer), nil)
		b.sendQuestion(chatID, next)

	case quizclient.TypeEnd:
		b.mu.Lock()
		delete(b.quizzes, chatID)
		b.mu.Unlock()

		if result.End.IsCorrect != nil {
			b.sendHTML(chatID, FormatFeedback(*result.End.IsCorrect, result.End.CorrectAnswer), nil)
		}
		text := FormatResults(result.End)
		if history := b.attemptHistory(ctx, state); history != "" {
			text += "\n\n" + history
		}
		b.sendHTML(chatID, text, tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🔙 Menu", callbackBackToMenu),
			),
		))

	default:
		log.Printf("Unknown quiz response type %q for chat %d", result.Type, chatID)
		b.sendText(chatID, "❌ Unexpected response from the quiz service.")
	}
}

func (b *Bot) attemptHistory(ctx context.Context, state chatQuiz) string {
	attempts, err := b.quiz.Attempts(ctx, state.candidateID, state.trackID)
	if err != nil {
		log.Printf("Error loading attempts for track %d: %v", state.trackID, err)
		return ""
	}
	return FormatAttemptHistory(attempts)
}

func (b *Bot) sendQuestion(chatID int64, q quizclient.Question) {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(q.Options))
	for _, opt := range q.Options {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(opt.Key, prefixAnswer+opt.Key))
	}
	b.sendHTML(chatID, FormatQuestion(q), tgbotapi.NewInlineKeyboardMarkup(buttons))
}

func (b *Bot) sendError(chatID int64, err error) {
	var apiErr *quizclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		b.sendText(chatID, "❌ "+apiErr.Message)
		return
	}
	b.sendText(chatID, "❌ The quiz service is unavailable. Try again later.")
}

func (b *Bot) sendHTML(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	b.send(msg)
}

func (b *Bot) sendText(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	if _, err := b.sender.Send(msg); err != nil {
		log.Printf("Error sending message to chat %d: %v", msg.ChatID, err)
	}
}
