package models

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Track{},
		&QuestionBlock{},
		&TrackQuizBlock{},
		&Question{},
		&QuizSession{},
		&QuizAnswer{},
		&Recruiter{},
	}
}
