package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"kuizu-session-service/internal/domain"
)

// QuizLoader serves the session hot path: full quiz content read through a
// pgx pool, ordered by position. Catalog writes go through the bun Store;
// this loader only feeds the cache layer.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := l.pool.QueryRow(ctx,
		`SELECT id, title, description, active, locked FROM quizzes WHERE id = $1`, quizID).
		Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.Active, &quiz.Locked)
	if err == pgx.ErrNoRows {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := l.pool.Query(ctx,
		`SELECT id, quiz_id, text, type, time_limit_seconds, points, position
		 FROM questions WHERE quiz_id = $1 ORDER BY position`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()
	index := make(map[string]int)
	for rows.Next() {
		var q domain.Question
		var qType string
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &qType, &q.TimeLimitSeconds, &q.Points, &q.Position); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(qType)
		index[q.ID] = len(quiz.Questions)
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}

	answerRows, err := l.pool.Query(ctx,
		`SELECT a.id, a.question_id, a.text, a.is_correct, a.position
		 FROM answers a JOIN questions q ON q.id = a.question_id
		 WHERE q.quiz_id = $1 ORDER BY a.position`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load answers: %w", err)
	}
	defer answerRows.Close()
	for answerRows.Next() {
		var a domain.Answer
		if err := answerRows.Scan(&a.ID, &a.QuestionID, &a.Text, &a.Correct, &a.Position); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan answer: %w", err)
		}
		if i, ok := index[a.QuestionID]; ok {
			quiz.Questions[i].Answers = append(quiz.Questions[i].Answers, a)
		}
	}
	if err := answerRows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load answers: %w", err)
	}
	return quiz, nil
}
