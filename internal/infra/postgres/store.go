package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"kuizu-session-service/internal/domain"
)

// Store is the bun-backed implementation of app.Store and app.CatalogStore.
// Uniqueness invariants live in the schema (partial unique indexes, unique
// constraints); the store translates constraint violations into domain
// errors instead of doing check-then-act reads.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:qz"`

	ID          string `bun:"id,pk"`
	Title       string `bun:"title"`
	Description string `bun:"description"`
	Active      bool   `bun:"active"`
	Locked      bool   `bun:"locked"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qn"`

	ID               string `bun:"id,pk"`
	QuizID           string `bun:"quiz_id"`
	Text             string `bun:"text"`
	Type             string `bun:"type"`
	TimeLimitSeconds int    `bun:"time_limit_seconds"`
	Points           int    `bun:"points"`
	Position         int    `bun:"position"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:an"`

	ID         string `bun:"id,pk"`
	QuestionID string `bun:"question_id"`
	Text       string `bun:"text"`
	IsCorrect  bool   `bun:"is_correct"`
	Position   int    `bun:"position"`
}

type sessionRow struct {
	bun.BaseModel `bun:"table:game_sessions,alias:gs"`

	ID                string     `bun:"id,pk"`
	QuizID            string     `bun:"quiz_id"`
	AdminID           string     `bun:"admin_id"`
	Code              string     `bun:"code"`
	CurrentQuestionID string     `bun:"current_question_id,nullzero"`
	Status            string     `bun:"status"`
	CreatedAt         time.Time  `bun:"created_at"`
	StartedAt         *time.Time `bun:"started_at"`
	FinishedAt        *time.Time `bun:"finished_at"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:participants,alias:pt"`

	ID         string    `bun:"id,pk"`
	SessionID  string    `bun:"session_id"`
	UserID     string    `bun:"user_id"`
	TotalScore int       `bun:"total_score"`
	JoinedAt   time.Time `bun:"joined_at"`
}

type responseRow struct {
	bun.BaseModel `bun:"table:player_responses,alias:pr"`

	ID             string    `bun:"id,pk"`
	ParticipantID  string    `bun:"participant_id"`
	QuestionID     string    `bun:"question_id"`
	AnswerID       string    `bun:"answer_id"`
	ResponseTimeMs int64     `bun:"response_time_ms"`
	PointsEarned   int       `bun:"points_earned"`
	IsCorrect      bool      `bun:"is_correct"`
	AnsweredAt     time.Time `bun:"answered_at"`
}

type historyRow struct {
	bun.BaseModel `bun:"table:game_history,alias:gh"`

	ID                string    `bun:"id,pk"`
	SessionID         string    `bun:"session_id"`
	UserID            string    `bun:"user_id"`
	QuizID            string    `bun:"quiz_id"`
	FinalScore        int       `bun:"final_score"`
	TotalQuestions    int       `bun:"total_questions"`
	CorrectAnswers    int       `bun:"correct_answers"`
	CompletionSeconds int64     `bun:"completion_seconds"`
	RecordedAt        time.Time `bun:"recorded_at"`
}

// constraintOf returns the violated constraint/index name, or "".
func constraintOf(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		return pgErr.Field('n')
	}
	return ""
}

// --- app.Store ---

func (s *Store) CreateSession(ctx context.Context, session *domain.GameSession) error {
	row := sessionRowFrom(*session)
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	switch name := constraintOf(err); {
	case strings.Contains(name, "code"):
		return domain.ErrCodeTaken
	case strings.Contains(name, "quiz"):
		return domain.ErrActiveSessionExists
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.GameSession, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("gs.id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) GetSessionByCode(ctx context.Context, code string) (domain.GameSession, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).
		Where("gs.code = ?", code).
		OrderExpr("gs.created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus, startedAt *time.Time) (domain.GameSession, error) {
	q := s.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("status = ?", string(to)).
		Where("id = ?", sessionID).
		Where("status = ?", string(from))
	if startedAt != nil {
		q = q.Set("started_at = ?", *startedAt)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return domain.GameSession{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		// Either missing or a concurrent transition won; distinguish.
		if _, err := s.GetSession(ctx, sessionID); err != nil {
			return domain.GameSession{}, err
		}
		return domain.GameSession{}, domain.ErrInvalidTransition
	}
	return s.GetSession(ctx, sessionID)
}

func (s *Store) SetCurrentQuestion(ctx context.Context, sessionID, questionID string) (domain.GameSession, error) {
	res, err := s.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("current_question_id = ?", questionID).
		Where("id = ?", sessionID).
		Where("status = ?", string(domain.StatusActive)).
		Exec(ctx)
	if err != nil {
		return domain.GameSession{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, err := s.GetSession(ctx, sessionID); err != nil {
			return domain.GameSession{}, err
		}
		return domain.GameSession{}, domain.ErrInvalidTransition
	}
	return s.GetSession(ctx, sessionID)
}

func (s *Store) FinishSession(ctx context.Context, sessionID string, totalQuestions int, finishedAt time.Time) (domain.GameSession, error) {
	var finished domain.GameSession
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*sessionRow)(nil)).
			Set("status = ?", string(domain.StatusFinished)).
			Set("finished_at = ?", finishedAt).
			Where("id = ?", sessionID).
			Where("status <> ?", string(domain.StatusFinished)).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			var row sessionRow
			if err := tx.NewSelect().Model(&row).Where("gs.id = ?", sessionID).Scan(ctx); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return domain.ErrSessionNotFound
				}
				return err
			}
			return domain.ErrSessionFinished
		}

		var row sessionRow
		if err := tx.NewSelect().Model(&row).Where("gs.id = ?", sessionID).Scan(ctx); err != nil {
			return err
		}
		finished = row.toDomain()

		var completion int64
		if row.StartedAt != nil {
			completion = int64(finishedAt.Sub(*row.StartedAt) / time.Second)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO game_history
				(id, session_id, user_id, quiz_id, final_score, total_questions, correct_answers, completion_seconds, recorded_at)
			SELECT gen_random_uuid(), p.session_id, p.user_id, ?, p.total_score, ?, COALESCE(c.correct, 0), ?, ?
			FROM participants p
			LEFT JOIN (
				SELECT participant_id, COUNT(*) AS correct
				FROM player_responses
				WHERE is_correct
				GROUP BY participant_id
			) c ON c.participant_id = p.id
			WHERE p.session_id = ?`,
			row.QuizID, totalQuestions, completion, finishedAt, sessionID)
		return err
	})
	if err != nil {
		return domain.GameSession{}, err
	}
	return finished, nil
}

// AddParticipant inserts only while the session row is still non-finished,
// so a join racing a concurrent finish cannot slip past the materialized
// history.
func (s *Store) AddParticipant(ctx context.Context, participant *domain.Participant) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, session_id, user_id, total_score, joined_at)
		SELECT ?, gs.id, ?, ?, ?
		FROM game_sessions gs
		WHERE gs.id = ? AND gs.status <> ?`,
		participant.ID, participant.UserID, participant.TotalScore, participant.JoinedAt,
		participant.SessionID, string(domain.StatusFinished))
	if strings.Contains(constraintOf(err), "session_user") {
		return domain.ErrAlreadyJoined
	}
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, err := s.GetSession(ctx, participant.SessionID); err != nil {
			return err
		}
		return domain.ErrSessionFinished
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	var row participantRow
	err := s.db.NewSelect().Model(&row).Where("pt.id = ?", participantID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) GetParticipantByUser(ctx context.Context, sessionID, userID string) (domain.Participant, error) {
	var row participantRow
	err := s.db.NewSelect().Model(&row).
		Where("pt.session_id = ?", sessionID).
		Where("pt.user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	var rows []participantRow
	err := s.db.NewSelect().Model(&rows).
		Where("pt.session_id = ?", sessionID).
		OrderExpr("pt.joined_at ASC, pt.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Participant, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (s *Store) InsertResponse(ctx context.Context, response *domain.PlayerResponse) (int, error) {
	total := 0
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		// Insert only while the owning session is non-finished; a submission
		// racing a concurrent finish must not change totals after history
		// rows were written.
		res, err := tx.ExecContext(ctx, `
			INSERT INTO player_responses
				(id, participant_id, question_id, answer_id, response_time_ms, points_earned, is_correct, answered_at)
			SELECT ?, p.id, ?, ?, ?, ?, ?, ?
			FROM participants p
			JOIN game_sessions gs ON gs.id = p.session_id
			WHERE p.id = ? AND gs.status <> ?`,
			response.ID, response.QuestionID, response.AnswerID,
			response.ResponseTimeMs, response.PointsEarned, response.Correct, response.AnsweredAt,
			response.ParticipantID, string(domain.StatusFinished))
		if err != nil {
			if strings.Contains(constraintOf(err), "participant_question") {
				return domain.ErrDuplicateResponse
			}
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			var participant participantRow
			err := tx.NewSelect().Model(&participant).
				Where("pt.id = ?", response.ParticipantID).
				Scan(ctx)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrParticipantNotFound
			}
			if err != nil {
				return err
			}
			return domain.ErrSessionFinished
		}
		// Atomic increment; read-modify-write would lose concurrent updates.
		return tx.QueryRowContext(ctx,
			`UPDATE participants SET total_score = total_score + ? WHERE id = ? RETURNING total_score`,
			response.PointsEarned, response.ParticipantID).Scan(&total)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) GetResponse(ctx context.Context, participantID, questionID string) (domain.PlayerResponse, error) {
	var row responseRow
	err := s.db.NewSelect().Model(&row).
		Where("pr.participant_id = ?", participantID).
		Where("pr.question_id = ?", questionID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlayerResponse{}, domain.ErrResponseNotFound
	}
	if err != nil {
		return domain.PlayerResponse{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListResponsesByQuestion(ctx context.Context, sessionID, questionID string) ([]domain.PlayerResponse, error) {
	var rows []responseRow
	err := s.db.NewSelect().Model(&rows).
		Join("JOIN participants AS pt ON pt.id = pr.participant_id").
		Where("pt.session_id = ?", sessionID).
		Where("pr.question_id = ?", questionID).
		OrderExpr("pr.answered_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PlayerResponse, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (s *Store) CorrectCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	var rows []struct {
		ParticipantID string `bun:"participant_id"`
		Correct       int    `bun:"correct"`
	}
	err := s.db.NewSelect().
		TableExpr("player_responses AS pr").
		ColumnExpr("pr.participant_id").
		ColumnExpr("COUNT(*) AS correct").
		Join("JOIN participants AS pt ON pt.id = pr.participant_id").
		Where("pt.session_id = ?", sessionID).
		Where("pr.is_correct").
		GroupExpr("pr.participant_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ParticipantID] = row.Correct
	}
	return counts, nil
}

func (s *Store) ListHistory(ctx context.Context, sessionID string) ([]domain.GameHistory, error) {
	var rows []historyRow
	err := s.db.NewSelect().Model(&rows).
		Where("gh.session_id = ?", sessionID).
		OrderExpr("gh.final_score DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.GameHistory, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// --- app.CatalogStore ---

func (s *Store) CreateQuiz(ctx context.Context, quiz *domain.Quiz) error {
	row := quizRow{
		ID:          quiz.ID,
		Title:       quiz.Title,
		Description: quiz.Description,
		Active:      quiz.Active,
		Locked:      quiz.Locked,
	}
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	return err
}

func (s *Store) GetQuizCatalog(ctx context.Context, quizID string) (domain.Quiz, error) {
	var qz quizRow
	err := s.db.NewSelect().Model(&qz).Where("qz.id = ?", quizID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, err
	}

	var questions []questionRow
	if err := s.db.NewSelect().Model(&questions).
		Where("qn.quiz_id = ?", quizID).
		OrderExpr("qn.position ASC").
		Scan(ctx); err != nil {
		return domain.Quiz{}, err
	}
	var answers []answerRow
	if err := s.db.NewSelect().Model(&answers).
		Join("JOIN questions AS qn ON qn.id = an.question_id").
		Where("qn.quiz_id = ?", quizID).
		OrderExpr("an.position ASC").
		Scan(ctx); err != nil {
		return domain.Quiz{}, err
	}

	byQuestion := make(map[string][]domain.Answer)
	for _, a := range answers {
		byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], domain.Answer{
			ID:         a.ID,
			QuestionID: a.QuestionID,
			Text:       a.Text,
			Correct:    a.IsCorrect,
			Position:   a.Position,
		})
	}

	quiz := domain.Quiz{
		ID:          qz.ID,
		Title:       qz.Title,
		Description: qz.Description,
		Active:      qz.Active,
		Locked:      qz.Locked,
	}
	for _, q := range questions {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:               q.ID,
			QuizID:           q.QuizID,
			Text:             q.Text,
			Type:             domain.QuestionType(q.Type),
			TimeLimitSeconds: q.TimeLimitSeconds,
			Points:           q.Points,
			Position:         q.Position,
			Answers:          byQuestion[q.ID],
		})
	}
	return quiz, nil
}

func (s *Store) HasLiveSession(ctx context.Context, quizID string) (bool, error) {
	return s.db.NewSelect().
		Model((*sessionRow)(nil)).
		Where("gs.quiz_id = ?", quizID).
		Where("gs.status <> ?", string(domain.StatusFinished)).
		Exists(ctx)
}

func (s *Store) InsertQuestion(ctx context.Context, question *domain.Question) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		row := questionRow{
			ID:               question.ID,
			QuizID:           question.QuizID,
			Text:             question.Text,
			Type:             string(question.Type),
			TimeLimitSeconds: question.TimeLimitSeconds,
			Points:           question.Points,
			Position:         question.Position,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return err
		}
		return insertAnswers(ctx, tx, question.Answers)
	})
}

func (s *Store) UpdateQuestion(ctx context.Context, question *domain.Question) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*questionRow)(nil)).
			Set("text = ?", question.Text).
			Set("type = ?", string(question.Type)).
			Set("time_limit_seconds = ?", question.TimeLimitSeconds).
			Set("points = ?", question.Points).
			Where("id = ?", question.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return domain.ErrQuestionNotFound
		}
		if _, err := tx.NewDelete().Model((*answerRow)(nil)).
			Where("question_id = ?", question.ID).
			Exec(ctx); err != nil {
			return err
		}
		return insertAnswers(ctx, tx, question.Answers)
	})
}

func insertAnswers(ctx context.Context, tx bun.Tx, answers []domain.Answer) error {
	for _, a := range answers {
		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}
		row := answerRow{
			ID:         id,
			QuestionID: a.QuestionID,
			Text:       a.Text,
			IsCorrect:  a.Correct,
			Position:   a.Position,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, questionID string) error {
	res, err := s.db.NewDelete().Model((*questionRow)(nil)).
		Where("id = ?", questionID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (s *Store) UpdatePositions(ctx context.Context, quizID string, positions map[string]int) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for questionID, position := range positions {
			if _, err := tx.NewUpdate().Model((*questionRow)(nil)).
				Set("position = ?", position).
				Where("id = ?", questionID).
				Where("quiz_id = ?", quizID).
				Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func sessionRowFrom(session domain.GameSession) sessionRow {
	return sessionRow{
		ID:                session.ID,
		QuizID:            session.QuizID,
		AdminID:           session.AdminID,
		Code:              session.Code,
		CurrentQuestionID: session.CurrentQuestionID,
		Status:            string(session.Status),
		CreatedAt:         session.CreatedAt,
		StartedAt:         session.StartedAt,
		FinishedAt:        session.FinishedAt,
	}
}

func (r sessionRow) toDomain() domain.GameSession {
	return domain.GameSession{
		ID:                r.ID,
		QuizID:            r.QuizID,
		AdminID:           r.AdminID,
		Code:              r.Code,
		CurrentQuestionID: r.CurrentQuestionID,
		Status:            domain.SessionStatus(r.Status),
		CreatedAt:         r.CreatedAt,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
	}
}

func (r participantRow) toDomain() domain.Participant {
	return domain.Participant{
		ID:         r.ID,
		SessionID:  r.SessionID,
		UserID:     r.UserID,
		TotalScore: r.TotalScore,
		JoinedAt:   r.JoinedAt,
	}
}

func (r responseRow) toDomain() domain.PlayerResponse {
	return domain.PlayerResponse{
		ID:             r.ID,
		ParticipantID:  r.ParticipantID,
		QuestionID:     r.QuestionID,
		AnswerID:       r.AnswerID,
		ResponseTimeMs: r.ResponseTimeMs,
		PointsEarned:   r.PointsEarned,
		Correct:        r.IsCorrect,
		AnsweredAt:     r.AnsweredAt,
	}
}

func (r historyRow) toDomain() domain.GameHistory {
	return domain.GameHistory{
		ID:                r.ID,
		SessionID:         r.SessionID,
		UserID:            r.UserID,
		QuizID:            r.QuizID,
		FinalScore:        r.FinalScore,
		TotalQuestions:    r.TotalQuestions,
		CorrectAnswers:    r.CorrectAnswers,
		CompletionSeconds: r.CompletionSeconds,
		RecordedAt:        r.RecordedAt,
	}
}
