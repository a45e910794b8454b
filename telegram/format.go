package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dudin-george/cu-x5-bootcamp/quizclient"
)

func FormatStart(resp *quizclient.StartResponse) string {
	minutes := resp.TotalDurationSeconds / 60
	return fmt.Sprintf("🚀 <b>%s</b> quiz started!\n⏱ You have %d min. Good luck!",
		html.EscapeString(resp.TrackName), minutes)
}

func FormatQuestion(q quizclient.Question) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "📝 <b>Question %d</b>", q.QuestionNumber)
	if q.BlockName != "" {
		fmt.Fprintf(&sb, " (%s)", html.EscapeString(q.BlockName))
	}
	sb.WriteString("\n\n")
	sb.WriteString(html.EscapeString(q.Text))
	sb.WriteString("\n")

	for _, opt := range q.Options {
		fmt.Fprintf(&sb, "\n<b>%s.</b> %s", html.EscapeString(opt.Key), html.EscapeString(opt.Text))
	}
	return sb.String()
}

func FormatFeedback(isCorrect bool, correctAnswer string) string {
	if isCorrect {
		return "✅ <b>Correct!</b>"
	}
	return fmt.Sprintf("❌ <b>Wrong.</b> Correct answer: %s", html.EscapeString(correctAnswer))
}

func FormatResults(end *quizclient.End) string {
	var sb strings.Builder

	if end.Reason == "timeout" {
		sb.WriteString("⏰ <b>Time is up!</b>\n\n")
	} else {
		sb.WriteString("🏁 <b>Quiz completed!</b>\n\n")
	}

	r := end.Results
	fmt.Fprintf(&sb, "📊 Result: %d/%d (%.1f%%)\n", r.CorrectAnswers, r.TotalQuestions, r.Accuracy)
	fmt.Fprintf(&sb, "⏱ Time: %s\n", formatDuration(r.CompletionTimeSeconds))

	if len(r.BlocksPerformance) > 0 {
		sb.WriteString("\n<b>By topic:</b>\n")
		for _, block := range r.BlocksPerformance {
			fmt.Fprintf(&sb, "• %s: %d/%d (%.1f%%)\n",
				html.EscapeString(block.BlockName), block.Correct, block.Total, block.Accuracy)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatDuration(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// FormatResume tells the candidate their running attempt was picked up and
// when it ends.
func FormatResume(attempt quizclient.Attempt, now time.Time) string {
	left := attempt.ExpiresAt.Sub(now)
	if left < 0 {
		left = 0
	}
	return fmt.Sprintf("⏳ You already have a <b>%s</b> quiz in progress.\nIt ends at %s UTC (%s left). Continue below.",
		html.EscapeString(attempt.TrackName),
		attempt.ExpiresAt.UTC().Format("15:04"),
		formatDuration(int(left/time.Second)))
}

// FormatAttemptHistory summarises finished attempts on a track. It returns ""
// when there are none.
func FormatAttemptHistory(attempts []quizclient.Attempt) string {
	finished := 0
	var best *float64
	for i := range attempts {
		a := &attempts[i]
		if a.Status == quizclient.StatusInProgress {
			continue
		}
		finished++
		if a.Score != nil && (best == nil || *a.Score > *best) {
			best = a.Score
		}
	}
	if finished == 0 {
		return ""
	}

	text := fmt.Sprintf("📚 Attempts on this track: %d", finished)
	if best != nil {
		text += fmt.Sprintf("\n🏆 Best score: %.1f%%", *best)
	}
	return text
}
