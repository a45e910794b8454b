package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_sessions_started_total",
			Help: "Total number of quiz sessions started",
		},
	)

	answersRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_answers_total",
			Help: "Total number of recorded answers",
		},
		[]string{"result"}, // correct, wrong
	)

	sessionsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_sessions_finalized_total",
			Help: "Total number of finalized quiz sessions",
		},
		[]string{"reason"},
	)

	answerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiz_answer_duration_seconds",
			Help:    "Duration of answer submissions",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func resultLabel(correct bool) string {
	if correct {
		return "correct"
	}
	return "wrong"
}
