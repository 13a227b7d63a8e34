package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kuizu-session-service/internal/domain"
)

// Store is an in-memory implementation of app.Store and app.CatalogStore,
// used by tests and the single-node demo mode. A single mutex gives every
// multi-step mutation the same all-or-nothing visibility the SQL store gets
// from transactions.
type Store struct {
	mu           sync.RWMutex
	quizzes      map[string]domain.Quiz
	sessions     map[string]domain.GameSession
	participants map[string]domain.Participant
	byUser       map[string]string // sessionID/userID -> participantID
	responses    map[string]domain.PlayerResponse
	history      map[string][]domain.GameHistory
}

func NewStore() *Store {
	return &Store{
		quizzes:      make(map[string]domain.Quiz),
		sessions:     make(map[string]domain.GameSession),
		participants: make(map[string]domain.Participant),
		byUser:       make(map[string]string),
		responses:    make(map[string]domain.PlayerResponse),
		history:      make(map[string][]domain.GameHistory),
	}
}

func userKey(sessionID, userID string) string      { return sessionID + "/" + userID }
func responseKey(participantID, qID string) string { return participantID + "/" + qID }

// --- app.Store ---

func (s *Store) CreateSession(_ context.Context, session *domain.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.Status.Terminal() {
			continue
		}
		if existing.QuizID == session.QuizID {
			return domain.ErrActiveSessionExists
		}
		if existing.Code == session.Code {
			return domain.ErrCodeTaken
		}
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) GetSessionByCode(_ context.Context, code string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found domain.GameSession
	ok := false
	for _, session := range s.sessions {
		if session.Code != code {
			continue
		}
		if !ok || session.CreatedAt.After(found.CreatedAt) {
			found = session
			ok = true
		}
	}
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return found, nil
}

func (s *Store) UpdateStatus(_ context.Context, sessionID string, from, to domain.SessionStatus, startedAt *time.Time) (domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if session.Status != from {
		return domain.GameSession{}, domain.ErrInvalidTransition
	}
	session.Status = to
	if startedAt != nil {
		session.StartedAt = startedAt
	}
	s.sessions[sessionID] = session
	return session, nil
}

func (s *Store) SetCurrentQuestion(_ context.Context, sessionID, questionID string) (domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusActive {
		return domain.GameSession{}, domain.ErrInvalidTransition
	}
	session.CurrentQuestionID = questionID
	s.sessions[sessionID] = session
	return session, nil
}

func (s *Store) FinishSession(_ context.Context, sessionID string, totalQuestions int, finishedAt time.Time) (domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if session.Status.Terminal() {
		return domain.GameSession{}, domain.ErrSessionFinished
	}

	session.Status = domain.StatusFinished
	session.FinishedAt = &finishedAt
	s.sessions[sessionID] = session

	var completion int64
	if session.StartedAt != nil {
		completion = int64(finishedAt.Sub(*session.StartedAt) / time.Second)
	}
	rows := make([]domain.GameHistory, 0)
	for _, p := range s.participantsOfLocked(sessionID) {
		correct := 0
		for _, r := range s.responses {
			if r.ParticipantID == p.ID && r.Correct {
				correct++
			}
		}
		rows = append(rows, domain.GameHistory{
			ID:                uuid.NewString(),
			SessionID:         sessionID,
			UserID:            p.UserID,
			QuizID:            session.QuizID,
			FinalScore:        p.TotalScore,
			TotalQuestions:    totalQuestions,
			CorrectAnswers:    correct,
			CompletionSeconds: completion,
			RecordedAt:        finishedAt,
		})
	}
	s.history[sessionID] = rows
	return session, nil
}

func (s *Store) AddParticipant(_ context.Context, participant *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[participant.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status.Terminal() {
		// History is already materialized; the roster is frozen.
		return domain.ErrSessionFinished
	}
	key := userKey(participant.SessionID, participant.UserID)
	if _, ok := s.byUser[key]; ok {
		return domain.ErrAlreadyJoined
	}
	s.byUser[key] = participant.ID
	s.participants[participant.ID] = *participant
	return nil
}

func (s *Store) GetParticipant(_ context.Context, participantID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participant, ok := s.participants[participantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return participant, nil
}

func (s *Store) GetParticipantByUser(_ context.Context, sessionID, userID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[userKey(sessionID, userID)]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return s.participants[id], nil
}

func (s *Store) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.participantsOfLocked(sessionID), nil
}

func (s *Store) participantsOfLocked(sessionID string) []domain.Participant {
	out := make([]domain.Participant, 0)
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) InsertResponse(_ context.Context, response *domain.PlayerResponse) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	participant, ok := s.participants[response.ParticipantID]
	if !ok {
		return 0, domain.ErrParticipantNotFound
	}
	if session, ok := s.sessions[participant.SessionID]; !ok || session.Status.Terminal() {
		return 0, domain.ErrSessionFinished
	}
	key := responseKey(response.ParticipantID, response.QuestionID)
	if _, ok := s.responses[key]; ok {
		return 0, domain.ErrDuplicateResponse
	}
	s.responses[key] = *response
	participant.TotalScore += response.PointsEarned
	s.participants[participant.ID] = participant
	return participant.TotalScore, nil
}

func (s *Store) GetResponse(_ context.Context, participantID, questionID string) (domain.PlayerResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	response, ok := s.responses[responseKey(participantID, questionID)]
	if !ok {
		return domain.PlayerResponse{}, domain.ErrResponseNotFound
	}
	return response, nil
}

func (s *Store) ListResponsesByQuestion(_ context.Context, sessionID, questionID string) ([]domain.PlayerResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PlayerResponse, 0)
	for _, r := range s.responses {
		if r.QuestionID != questionID {
			continue
		}
		if p, ok := s.participants[r.ParticipantID]; ok && p.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnsweredAt.Before(out[j].AnsweredAt) })
	return out, nil
}

func (s *Store) CorrectCounts(_ context.Context, sessionID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, r := range s.responses {
		if !r.Correct {
			continue
		}
		if p, ok := s.participants[r.ParticipantID]; ok && p.SessionID == sessionID {
			counts[r.ParticipantID]++
		}
	}
	return counts, nil
}

func (s *Store) ListHistory(_ context.Context, sessionID string) ([]domain.GameHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]domain.GameHistory, len(s.history[sessionID]))
	copy(rows, s.history[sessionID])
	return rows, nil
}

// --- app.CatalogStore ---

func (s *Store) CreateQuiz(_ context.Context, quiz *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = copyQuiz(*quiz)
	return nil
}

func (s *Store) GetQuizCatalog(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return copyQuiz(quiz), nil
}

// LoadQuiz makes the store usable as a cache-layer quiz loader.
func (s *Store) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.GetQuizCatalog(ctx, quizID)
}

func (s *Store) HasLiveSession(_ context.Context, quizID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.QuizID == quizID && !session.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) InsertQuestion(_ context.Context, question *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[question.QuizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Questions = append(quiz.Questions, copyQuestion(*question))
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *Store) UpdateQuestion(_ context.Context, question *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[question.QuizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	for i, q := range quiz.Questions {
		if q.ID == question.ID {
			quiz.Questions[i] = copyQuestion(*question)
			s.quizzes[quiz.ID] = quiz
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

func (s *Store) DeleteQuestion(_ context.Context, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for quizID, quiz := range s.quizzes {
		for i, q := range quiz.Questions {
			if q.ID == questionID {
				quiz.Questions = append(quiz.Questions[:i], quiz.Questions[i+1:]...)
				s.quizzes[quizID] = quiz
				return nil
			}
		}
	}
	return domain.ErrQuestionNotFound
}

func (s *Store) UpdatePositions(_ context.Context, quizID string, positions map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	for i, q := range quiz.Questions {
		if pos, ok := positions[q.ID]; ok {
			quiz.Questions[i].Position = pos
		}
	}
	sort.Slice(quiz.Questions, func(i, j int) bool {
		return quiz.Questions[i].Position < quiz.Questions[j].Position
	})
	s.quizzes[quizID] = quiz
	return nil
}

func copyQuiz(quiz domain.Quiz) domain.Quiz {
	out := quiz
	out.Questions = make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		out.Questions[i] = copyQuestion(q)
	}
	sort.Slice(out.Questions, func(i, j int) bool {
		return out.Questions[i].Position < out.Questions[j].Position
	})
	return out
}

func copyQuestion(question domain.Question) domain.Question {
	out := question
	out.Answers = make([]domain.Answer, len(question.Answers))
	copy(out.Answers, question.Answers)
	return out
}
