package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"kuizu-session-service/internal/domain"
)

// codeDrawAttempts bounds rejection sampling of join codes. A collision is
// improbable with 10^6 codes, so hitting the bound means the code space is
// effectively exhausted.
const codeDrawAttempts = 50

// SessionService owns the session lifecycle state machine and the
// participant registry.
type SessionService struct {
	store   Store
	quizzes QuizRepository
	live    LiveRegistry
	baseURL string
	now     func() time.Time
	newID   func() string
}

func NewSessionService(store Store, quizzes QuizRepository, live LiveRegistry, baseURL string) *SessionService {
	return &SessionService{
		store:   store,
		quizzes: quizzes,
		live:    live,
		baseURL: baseURL,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// Create opens a new session for a quiz in waiting state. The join code is
// drawn by rejection sampling against currently non-finished sessions; the
// one-non-finished-session-per-quiz invariant is enforced by the store.
func (s *SessionService) Create(ctx context.Context, quizID, adminID string) (domain.GameSession, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.GameSession{}, domain.Validationf("quiz %s has no questions", quizID)
	}

	for attempt := 0; attempt < codeDrawAttempts; attempt++ {
		session := domain.GameSession{
			ID:        s.newID(),
			QuizID:    quizID,
			AdminID:   adminID,
			Code:      fmt.Sprintf("%06d", rand.Intn(1000000)),
			Status:    domain.StatusWaiting,
			CreatedAt: s.now(),
		}
		err := s.store.CreateSession(ctx, &session)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return domain.GameSession{}, err
		}
		return session, nil
	}
	return domain.GameSession{}, domain.ErrCodeTaken
}

// Start moves a waiting session to active and stamps started_at.
func (s *SessionService) Start(ctx context.Context, sessionID, adminID string) (domain.GameSession, error) {
	session, err := s.authorize(ctx, sessionID, adminID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if session.Status != domain.StatusWaiting {
		return domain.GameSession{}, domain.ErrInvalidTransition
	}
	now := s.now()
	updated, err := s.store.UpdateStatus(ctx, sessionID, domain.StatusWaiting, domain.StatusActive, &now)
	if err != nil {
		return domain.GameSession{}, err
	}
	s.publish(updated, domain.EventStatusChanged, 0)
	return updated, nil
}

// Pause suspends an active session.
func (s *SessionService) Pause(ctx context.Context, sessionID, adminID string) (domain.GameSession, error) {
	return s.swap(ctx, sessionID, adminID, domain.StatusActive, domain.StatusPaused)
}

// Resume reactivates a paused session.
func (s *SessionService) Resume(ctx context.Context, sessionID, adminID string) (domain.GameSession, error) {
	return s.swap(ctx, sessionID, adminID, domain.StatusPaused, domain.StatusActive)
}

func (s *SessionService) swap(ctx context.Context, sessionID, adminID string, from, to domain.SessionStatus) (domain.GameSession, error) {
	session, err := s.authorize(ctx, sessionID, adminID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if session.Status != from {
		return domain.GameSession{}, domain.ErrInvalidTransition
	}
	updated, err := s.store.UpdateStatus(ctx, sessionID, from, to, nil)
	if err != nil {
		return domain.GameSession{}, err
	}
	s.publish(updated, domain.EventStatusChanged, 0)
	return updated, nil
}

// SetCurrentQuestion points the session at a question. Only valid while
// active; the pointer is overwritten unconditionally, so responses still in
// flight for the previous question are abandoned rather than voided.
func (s *SessionService) SetCurrentQuestion(ctx context.Context, sessionID, adminID, questionID string) (domain.GameSession, error) {
	session, err := s.authorize(ctx, sessionID, adminID)
	if err != nil {
		return domain.GameSession{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if _, ok := quiz.QuestionByID(questionID); !ok {
		return domain.GameSession{}, domain.ErrQuestionNotFound
	}
	updated, err := s.store.SetCurrentQuestion(ctx, sessionID, questionID)
	if err != nil {
		return domain.GameSession{}, err
	}
	s.publish(updated, domain.EventQuestionChanged, 0)
	return updated, nil
}

// Finish moves any non-finished session to finished and materializes one
// GameHistory row per participant in a single transaction. Finishing an
// already-finished session is an idempotent no-op.
func (s *SessionService) Finish(ctx context.Context, sessionID, adminID string) (domain.GameSession, error) {
	session, err := s.authorize(ctx, sessionID, adminID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if session.Status.Terminal() {
		return session, nil
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.GameSession{}, err
	}
	updated, err := s.store.FinishSession(ctx, sessionID, len(quiz.Questions), s.now())
	if errors.Is(err, domain.ErrSessionFinished) {
		// Lost the race against a concurrent finish; the history rows exist.
		return s.store.GetSession(ctx, sessionID)
	}
	if err != nil {
		return domain.GameSession{}, err
	}
	s.publish(updated, domain.EventStatusChanged, 0)
	s.live.Remove(sessionID)
	return updated, nil
}

// JoinResult is the outcome of a join-by-code request.
type JoinResult struct {
	Participant domain.Participant     `json:"participant"`
	Snapshot    domain.SessionSnapshot `json:"snapshot"`
	Rejoined    bool                   `json:"rejoined"`
}

// Join registers a user in the session identified by code. Joining twice is
// an idempotent rejoin that returns the existing membership.
func (s *SessionService) Join(ctx context.Context, code, userID string) (JoinResult, error) {
	if len(code) != 6 {
		return JoinResult{}, domain.Validationf("malformed session code %q", code)
	}
	session, err := s.store.GetSessionByCode(ctx, code)
	if err != nil {
		return JoinResult{}, err
	}
	if session.Status.Terminal() {
		return JoinResult{}, domain.ErrSessionFinished
	}

	participant := domain.Participant{
		ID:        s.newID(),
		SessionID: session.ID,
		UserID:    userID,
		JoinedAt:  s.now(),
	}
	rejoined := false
	if err := s.store.AddParticipant(ctx, &participant); err != nil {
		if !errors.Is(err, domain.ErrAlreadyJoined) {
			return JoinResult{}, err
		}
		participant, err = s.store.GetParticipantByUser(ctx, session.ID, userID)
		if err != nil {
			return JoinResult{}, err
		}
		rejoined = true
	}

	snapshot, err := s.Snapshot(ctx, session.ID)
	if err != nil {
		return JoinResult{}, err
	}
	if !rejoined {
		s.publish(session, domain.EventParticipantJoined, 0)
	}
	return JoinResult{Participant: participant, Snapshot: snapshot, Rejoined: rejoined}, nil
}

// Snapshot returns the poll-friendly state of a session by id.
func (s *SessionService) Snapshot(ctx context.Context, sessionID string) (domain.SessionSnapshot, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	return s.snapshotOf(ctx, session)
}

// SnapshotByCode returns the poll-friendly state of a session by join code.
func (s *SessionService) SnapshotByCode(ctx context.Context, code string) (domain.SessionSnapshot, error) {
	session, err := s.store.GetSessionByCode(ctx, code)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	return s.snapshotOf(ctx, session)
}

func (s *SessionService) snapshotOf(ctx context.Context, session domain.GameSession) (domain.SessionSnapshot, error) {
	participants, err := s.store.ListParticipants(ctx, session.ID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	return domain.SessionSnapshot{
		Session:          session,
		ParticipantCount: len(participants),
		TotalQuestions:   len(quiz.Questions),
	}, nil
}

// CurrentQuestion returns the question a session is presenting. Correctness
// flags are stripped unless the caller is the session admin.
func (s *SessionService) CurrentQuestion(ctx context.Context, sessionID string, asAdmin bool) (domain.Question, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Question{}, err
	}
	if session.CurrentQuestionID == "" {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.Question{}, err
	}
	question, ok := quiz.QuestionByID(session.CurrentQuestionID)
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if asAdmin {
		return question, nil
	}
	return question.PlayerView(), nil
}

// Participants returns the session roster in join order.
func (s *SessionService) Participants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	return s.store.ListParticipants(ctx, sessionID)
}

// History returns the materialized summary rows of a finished session.
func (s *SessionService) History(ctx context.Context, sessionID string) ([]domain.GameHistory, error) {
	return s.store.ListHistory(ctx, sessionID)
}

// JoinURL renders the joinable URL a QR collaborator encodes for players.
func (s *SessionService) JoinURL(code string) string {
	return fmt.Sprintf("%s/join?code=%s", s.baseURL, code)
}

func (s *SessionService) authorize(ctx context.Context, sessionID, adminID string) (domain.GameSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if session.AdminID != adminID {
		return domain.GameSession{}, domain.ErrNotSessionAdmin
	}
	return session, nil
}

func (s *SessionService) publish(session domain.GameSession, eventType domain.SessionEventType, answered int) {
	hub, ok := s.live.Get(session.ID)
	if !ok {
		return
	}
	hub.Publish(domain.SessionEvent{
		Type:              eventType,
		SessionID:         session.ID,
		Status:            session.Status,
		CurrentQuestionID: session.CurrentQuestionID,
		AnsweredCount:     answered,
	})
}
