package domain

import "time"

// QuestionType distinguishes the two supported question shapes.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
)

// Answer is one candidate answer owned by a question.
type Answer struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
	Correct    bool   `json:"correct"`
	Position   int    `json:"position"`
}

// Question is one quiz question with its answer bank. Positions are
// contiguous 1..N within a quiz.
type Question struct {
	ID               string       `json:"id"`
	QuizID           string       `json:"quizId"`
	Text             string       `json:"text"`
	Type             QuestionType `json:"type"`
	TimeLimitSeconds int          `json:"timeLimitSeconds"`
	Points           int          `json:"points"`
	Position         int          `json:"position"`
	Answers          []Answer     `json:"answers"`
}

// AnswerByID returns the answer with the given id, if it belongs to q.
func (q Question) AnswerByID(answerID string) (Answer, bool) {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return a, true
		}
	}
	return Answer{}, false
}

// PlayerView returns a copy of the question with correctness flags stripped,
// safe to hand to non-admin clients mid-session.
func (q Question) PlayerView() Question {
	view := q
	view.Answers = make([]Answer, len(q.Answers))
	for i, a := range q.Answers {
		a.Correct = false
		view.Answers[i] = a
	}
	return view
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Active      bool       `json:"active"`
	Locked      bool       `json:"locked"`
	Questions   []Question `json:"questions"`
}

// QuestionByID returns the question with the given id, if present.
func (z Quiz) QuestionByID(questionID string) (Question, bool) {
	for _, q := range z.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

// SessionStatus is the closed set of game-session lifecycle states.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusActive   SessionStatus = "active"
	StatusPaused   SessionStatus = "paused"
	StatusFinished SessionStatus = "finished"
)

// CanTransitionTo reports whether the lifecycle permits moving from s to next.
// finished is terminal.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case StatusWaiting:
		return next == StatusActive || next == StatusFinished
	case StatusActive:
		return next == StatusPaused || next == StatusFinished
	case StatusPaused:
		return next == StatusActive || next == StatusFinished
	default:
		return false
	}
}

// Terminal reports whether no transition may leave s.
func (s SessionStatus) Terminal() bool { return s == StatusFinished }

// GameSession is one timed playthrough of a quiz, identified by a 6-digit
// join code unique among non-finished sessions.
type GameSession struct {
	ID                string        `json:"id"`
	QuizID            string        `json:"quizId"`
	AdminID           string        `json:"adminId"`
	Code              string        `json:"code"`
	CurrentQuestionID string        `json:"currentQuestionId,omitempty"`
	Status            SessionStatus `json:"status"`
	CreatedAt         time.Time     `json:"createdAt"`
	StartedAt         *time.Time    `json:"startedAt,omitempty"`
	FinishedAt        *time.Time    `json:"finishedAt,omitempty"`
}

// Participant is a player's membership record within one session.
// TotalScore is mutated only by the scoring engine and never decreases.
type Participant struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	TotalScore int       `json:"totalScore"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// PlayerResponse records one participant's answer to one question.
// Immutable once created; at most one exists per (participant, question).
type PlayerResponse struct {
	ID             string    `json:"id"`
	ParticipantID  string    `json:"participantId"`
	QuestionID     string    `json:"questionId"`
	AnswerID       string    `json:"answerId"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	PointsEarned   int       `json:"pointsEarned"`
	Correct        bool      `json:"correct"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

// GameHistory is the write-once per-participant summary materialized when a
// session finishes. It is the source of truth for post-hoc player statistics.
type GameHistory struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"sessionId"`
	UserID            string    `json:"userId"`
	QuizID            string    `json:"quizId"`
	FinalScore        int       `json:"finalScore"`
	TotalQuestions    int       `json:"totalQuestions"`
	CorrectAnswers    int       `json:"correctAnswers"`
	CompletionSeconds int64     `json:"completionSeconds"`
	RecordedAt        time.Time `json:"recordedAt"`
}

// SubmitResult is the outcome of an answer submission. AlreadyAnswered marks
// an idempotent replay of a previously recorded response.
type SubmitResult struct {
	Correct         bool `json:"correct"`
	PointsEarned    int  `json:"pointsEarned"`
	TotalScore      int  `json:"totalScore"`
	AlreadyAnswered bool `json:"alreadyAnswered"`
}

// LeaderboardEntry is one ranked row of a session scoreboard.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	ParticipantID  string `json:"participantId"`
	UserID         string `json:"userId"`
	TotalScore     int    `json:"totalScore"`
	CorrectAnswers int    `json:"correctAnswers"`
}

// Leaderboard captures the ordered standings for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// AnswerCount is the number of responses that picked one answer.
type AnswerCount struct {
	AnswerID string `json:"answerId"`
	Count    int    `json:"count"`
}

// QuestionStats summarizes response progress for one question in a session.
// TotalResponses counts distinct participants who answered, which lets player
// clients detect that everyone has responded.
type QuestionStats struct {
	SessionID         string        `json:"sessionId"`
	QuestionID        string        `json:"questionId"`
	Counts            []AnswerCount `json:"counts"`
	AverageResponseMs float64       `json:"averageResponseMs"`
	TotalResponses    int           `json:"totalResponses"`
}

// SessionEventType labels push events emitted by a live session hub.
type SessionEventType string

const (
	EventStatusChanged     SessionEventType = "statusChanged"
	EventQuestionChanged   SessionEventType = "questionChanged"
	EventAnswerRecorded    SessionEventType = "answerRecorded"
	EventParticipantJoined SessionEventType = "participantJoined"
)

// SessionEvent is a broadcastable snapshot of a session transition.
type SessionEvent struct {
	Type              SessionEventType `json:"type"`
	SessionID         string           `json:"sessionId"`
	Status            SessionStatus    `json:"status"`
	CurrentQuestionID string           `json:"currentQuestionId,omitempty"`
	AnsweredCount     int              `json:"answeredCount"`
	Leaderboard       *Leaderboard     `json:"leaderboard,omitempty"`
}

// SessionSnapshot is the poll-friendly view of a session returned to clients.
type SessionSnapshot struct {
	Session          GameSession `json:"session"`
	ParticipantCount int         `json:"participantCount"`
	TotalQuestions   int         `json:"totalQuestions"`
}
