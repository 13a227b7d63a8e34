package app

import (
	"context"
	"time"

	"kuizu-session-service/internal/domain"
)

// Store is the authoritative persistence boundary for live-session state.
// Implementations must enforce the uniqueness invariants at the storage
// level (not check-then-act): one non-finished session per quiz, unique
// join code among non-finished sessions, one participant per (session,
// user), one response per (participant, question).
type Store interface {
	// CreateSession persists a new session in waiting state. Returns
	// domain.ErrActiveSessionExists if the quiz already has a non-finished
	// session, domain.ErrCodeTaken on a join-code collision.
	CreateSession(ctx context.Context, session *domain.GameSession) error
	GetSession(ctx context.Context, sessionID string) (domain.GameSession, error)
	// GetSessionByCode returns the newest session with the given code.
	GetSessionByCode(ctx context.Context, code string) (domain.GameSession, error)
	// UpdateStatus compare-and-swaps the session status from `from` to `to`,
	// returning domain.ErrInvalidTransition if the stored status differs.
	UpdateStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus, startedAt *time.Time) (domain.GameSession, error)
	// SetCurrentQuestion overwrites the current-question pointer; valid only
	// while the session is active.
	SetCurrentQuestion(ctx context.Context, sessionID, questionID string) (domain.GameSession, error)
	// FinishSession moves a non-finished session to finished and materializes
	// one GameHistory row per participant in the same transaction. A session
	// that is already finished yields domain.ErrSessionFinished.
	FinishSession(ctx context.Context, sessionID string, totalQuestions int, finishedAt time.Time) (domain.GameSession, error)

	// AddParticipant inserts a membership row; domain.ErrAlreadyJoined if
	// (session, user) already exists.
	AddParticipant(ctx context.Context, participant *domain.Participant) error
	GetParticipant(ctx context.Context, participantID string) (domain.Participant, error)
	GetParticipantByUser(ctx context.Context, sessionID, userID string) (domain.Participant, error)
	// ListParticipants returns the session roster ordered by join time.
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)

	// InsertResponse records a response and atomically increments the
	// participant's total score in one transaction, returning the new total.
	// domain.ErrDuplicateResponse if (participant, question) already answered.
	InsertResponse(ctx context.Context, response *domain.PlayerResponse) (int, error)
	GetResponse(ctx context.Context, participantID, questionID string) (domain.PlayerResponse, error)
	ListResponsesByQuestion(ctx context.Context, sessionID, questionID string) ([]domain.PlayerResponse, error)
	// CorrectCounts returns, per participant id, how many correct responses
	// that participant has recorded in the session.
	CorrectCounts(ctx context.Context, sessionID string) (map[string]int, error)

	ListHistory(ctx context.Context, sessionID string) ([]domain.GameHistory, error)
}

// QuizRepository loads quiz content (from cache/backing store) for the
// session hot path.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// CatalogStore persists the quiz/question/answer catalog.
type CatalogStore interface {
	CreateQuiz(ctx context.Context, quiz *domain.Quiz) error
	GetQuizCatalog(ctx context.Context, quizID string) (domain.Quiz, error)
	// HasLiveSession reports whether a non-finished session references the quiz.
	HasLiveSession(ctx context.Context, quizID string) (bool, error)
	// InsertQuestion stores a question together with its answers.
	InsertQuestion(ctx context.Context, question *domain.Question) error
	// UpdateQuestion replaces a question's fields and its answer set.
	UpdateQuestion(ctx context.Context, question *domain.Question) error
	DeleteQuestion(ctx context.Context, questionID string) error
	// UpdatePositions renumbers questions of a quiz; keys are question ids.
	UpdatePositions(ctx context.Context, quizID string, positions map[string]int) error
}
