package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"kuizu-session-service/internal/domain"
)

// ScoringService validates and records answers and derives the leaderboard
// and per-question progress views.
type ScoringService struct {
	store   Store
	quizzes QuizRepository
	live    LiveRegistry
	now     func() time.Time
	newID   func() string
}

func NewScoringService(store Store, quizzes QuizRepository, live LiveRegistry) *ScoringService {
	return &ScoringService{
		store:   store,
		quizzes: quizzes,
		live:    live,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SubmitAnswer records one response per (participant, question) and credits
// speed-weighted points atomically with the response insert. A duplicate
// submission replays the originally recorded result so client retries stay
// harmless. Finished sessions refuse answers: their history is already
// materialized. response_time_ms is client-reported and trusted; the server
// does not enforce the question deadline, it only zeroes the bonus past the
// limit.
func (s *ScoringService) SubmitAnswer(ctx context.Context, sessionID, participantID, questionID, answerID string, responseTimeMs int64) (domain.SubmitResult, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if session.Status.Terminal() {
		return domain.SubmitResult{}, domain.ErrSessionFinished
	}
	participant, err := s.store.GetParticipant(ctx, participantID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return domain.SubmitResult{}, domain.ErrNotAParticipant
	}
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if participant.SessionID != sessionID {
		return domain.SubmitResult{}, domain.ErrNotAParticipant
	}

	// Fast-path duplicate check; the conflict-aware insert below closes the
	// race this read leaves open.
	if prev, err := s.store.GetResponse(ctx, participantID, questionID); err == nil {
		return s.replay(prev, participant), nil
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	question, ok := quiz.QuestionByID(questionID)
	if !ok {
		return domain.SubmitResult{}, domain.ErrQuestionNotFound
	}
	answer, ok := question.AnswerByID(answerID)
	if !ok {
		return domain.SubmitResult{}, domain.ErrAnswerMismatch
	}

	points := 0
	if answer.Correct {
		points = domain.ScorePoints(question.Points, question.TimeLimitSeconds, responseTimeMs)
	}
	if responseTimeMs < 0 {
		responseTimeMs = 0
	}

	response := domain.PlayerResponse{
		ID:             s.newID(),
		ParticipantID:  participantID,
		QuestionID:     questionID,
		AnswerID:       answerID,
		ResponseTimeMs: responseTimeMs,
		PointsEarned:   points,
		Correct:        answer.Correct,
		AnsweredAt:     s.now(),
	}
	total, err := s.store.InsertResponse(ctx, &response)
	if errors.Is(err, domain.ErrDuplicateResponse) {
		prev, err := s.store.GetResponse(ctx, participantID, questionID)
		if err != nil {
			return domain.SubmitResult{}, err
		}
		current, err := s.store.GetParticipant(ctx, participantID)
		if err != nil {
			return domain.SubmitResult{}, err
		}
		return s.replay(prev, current), nil
	}
	if err != nil {
		return domain.SubmitResult{}, err
	}

	s.broadcast(ctx, session, questionID)
	return domain.SubmitResult{
		Correct:      answer.Correct,
		PointsEarned: points,
		TotalScore:   total,
	}, nil
}

func (s *ScoringService) replay(prev domain.PlayerResponse, participant domain.Participant) domain.SubmitResult {
	return domain.SubmitResult{
		Correct:         prev.Correct,
		PointsEarned:    prev.PointsEarned,
		TotalScore:      participant.TotalScore,
		AlreadyAnswered: true,
	}
}

// Leaderboard recomputes the ranked standings: total score descending,
// ties broken by correct-answer count descending, then join order.
func (s *ScoringService) Leaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	correct, err := s.store.CorrectCounts(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID:  p.ID,
			UserID:         p.UserID,
			TotalScore:     p.TotalScore,
			CorrectAnswers: correct[p.ID],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].CorrectAnswers > entries[j].CorrectAnswers
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return domain.Leaderboard{
		SessionID: sessionID,
		Entries:   entries,
		UpdatedAt: s.now(),
	}, nil
}

// QuestionStats summarizes responses for one question: per-answer counts,
// average response time, and the number of distinct participants who
// answered (the at-most-once invariant makes responses distinct by
// participant already).
func (s *ScoringService) QuestionStats(ctx context.Context, sessionID, questionID string) (domain.QuestionStats, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return domain.QuestionStats{}, err
	}
	responses, err := s.store.ListResponsesByQuestion(ctx, sessionID, questionID)
	if err != nil {
		return domain.QuestionStats{}, err
	}

	counts := make(map[string]int)
	var totalMs int64
	for _, r := range responses {
		counts[r.AnswerID]++
		totalMs += r.ResponseTimeMs
	}
	answerIDs := make([]string, 0, len(counts))
	for id := range counts {
		answerIDs = append(answerIDs, id)
	}
	sort.Strings(answerIDs)

	stats := domain.QuestionStats{
		SessionID:      sessionID,
		QuestionID:     questionID,
		TotalResponses: len(responses),
	}
	for _, id := range answerIDs {
		stats.Counts = append(stats.Counts, domain.AnswerCount{AnswerID: id, Count: counts[id]})
	}
	if len(responses) > 0 {
		stats.AverageResponseMs = float64(totalMs) / float64(len(responses))
	}
	return stats, nil
}

func (s *ScoringService) broadcast(ctx context.Context, session domain.GameSession, questionID string) {
	hub, ok := s.live.Get(session.ID)
	if !ok {
		return
	}
	answered := 0
	if responses, err := s.store.ListResponsesByQuestion(ctx, session.ID, questionID); err == nil {
		answered = len(responses)
	}
	event := domain.SessionEvent{
		Type:              domain.EventAnswerRecorded,
		SessionID:         session.ID,
		Status:            session.Status,
		CurrentQuestionID: session.CurrentQuestionID,
		AnsweredCount:     answered,
	}
	if lb, err := s.Leaderboard(ctx, session.ID); err == nil {
		event.Leaderboard = &lb
	}
	hub.Publish(event)
}
