package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"kuizu-session-service/internal/domain"
)

type countingLoader struct {
	quizzes map[string]domain.Quiz
	calls   int
}

func (l *countingLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	quiz, ok := l.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func TestQuizCacheHit(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{quizzes: map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1", Title: "Rope rescue"},
	}}
	cache := NewQuizCache(loader, time.Minute)

	quiz, err := cache.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if quiz.Title != "Rope rescue" {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	if loader.calls != 1 {
		t.Fatalf("loader calls = %d, want 1", loader.calls)
	}

	if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls = %d", loader.calls)
	}
}

func TestQuizCacheInvalidateForcesReload(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{quizzes: map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1", Title: "Before edit"},
	}}
	cache := NewQuizCache(loader, time.Minute)

	if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	loader.quizzes["quiz-1"] = domain.Quiz{ID: "quiz-1", Title: "After edit"}
	cache.Invalidate("quiz-1")

	quiz, err := cache.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if quiz.Title != "After edit" {
		t.Fatalf("stale quiz after invalidate: %+v", quiz)
	}
	if loader.calls != 2 {
		t.Fatalf("loader calls = %d, want 2", loader.calls)
	}
}

func TestQuizCacheExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{quizzes: map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1", Title: "Ladder drills"},
	}}
	cache := NewQuizCache(loader, time.Minute)

	if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	// Past the TTL even with maximum jitter.
	cache.clock = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("loader calls = %d, want reload after expiry", loader.calls)
	}
}

func TestQuizCacheZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{quizzes: map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1", Title: "Knots refresher"},
	}}
	cache := NewQuizCache(loader, 0)

	if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	cache.clock = func() time.Time { return time.Now().Add(24 * time.Hour) }
	if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get much later: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("loader calls = %d, zero ttl should pin the entry", loader.calls)
	}
}

func TestQuizCacheDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{quizzes: map[string]domain.Quiz{}}
	cache := NewQuizCache(loader, time.Minute)

	if _, err := cache.GetQuiz(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}

	loader.quizzes["missing"] = domain.Quiz{ID: "missing", Title: "Now present"}
	quiz, err := cache.GetQuiz(ctx, "missing")
	if err != nil {
		t.Fatalf("get after load: %v", err)
	}
	if quiz.Title != "Now present" {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
}
