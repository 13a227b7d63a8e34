package app_test

import (
	"context"
	"errors"
	"testing"

	"kuizu-session-service/internal/app"
	"kuizu-session-service/internal/domain"
	"kuizu-session-service/internal/infra/memory"
)

func newCatalog(t *testing.T) (*app.CatalogService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return app.NewCatalogService(store), store
}

func questionInput(text string) app.QuestionInput {
	return app.QuestionInput{
		Text:             text,
		Type:             domain.QuestionMultipleChoice,
		TimeLimitSeconds: 30,
		Points:           100,
		Answers: []app.AnswerInput{
			{Text: "Right", Correct: true},
			{Text: "Wrong"},
		},
	}
}

func TestCreateQuizRequiresTitle(t *testing.T) {
	catalog, _ := newCatalog(t)
	if _, err := catalog.CreateQuiz(context.Background(), "", "desc"); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQuestionValidation(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newCatalog(t)
	quiz, err := catalog.CreateQuiz(ctx, "Ladder drills", "")
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	cases := []struct {
		name  string
		input app.QuestionInput
	}{
		{"empty text", app.QuestionInput{Type: domain.QuestionMultipleChoice, TimeLimitSeconds: 30, Points: 10,
			Answers: []app.AnswerInput{{Text: "a", Correct: true}, {Text: "b"}}}},
		{"zero time limit", app.QuestionInput{Text: "t", Type: domain.QuestionMultipleChoice, Points: 10,
			Answers: []app.AnswerInput{{Text: "a", Correct: true}, {Text: "b"}}}},
		{"zero points", app.QuestionInput{Text: "t", Type: domain.QuestionMultipleChoice, TimeLimitSeconds: 30,
			Answers: []app.AnswerInput{{Text: "a", Correct: true}, {Text: "b"}}}},
		{"one answer", app.QuestionInput{Text: "t", Type: domain.QuestionMultipleChoice, TimeLimitSeconds: 30, Points: 10,
			Answers: []app.AnswerInput{{Text: "a", Correct: true}}}},
		{"seven answers", app.QuestionInput{Text: "t", Type: domain.QuestionMultipleChoice, TimeLimitSeconds: 30, Points: 10,
			Answers: []app.AnswerInput{{Text: "a", Correct: true}, {Text: "b"}, {Text: "c"}, {Text: "d"}, {Text: "e"}, {Text: "f"}, {Text: "g"}}}},
		{"no correct answer", app.QuestionInput{Text: "t", Type: domain.QuestionMultipleChoice, TimeLimitSeconds: 30, Points: 10,
			Answers: []app.AnswerInput{{Text: "a"}, {Text: "b"}}}},
		{"blank answer text", app.QuestionInput{Text: "t", Type: domain.QuestionMultipleChoice, TimeLimitSeconds: 30, Points: 10,
			Answers: []app.AnswerInput{{Text: "a", Correct: true}, {Text: ""}}}},
		{"true/false with three answers", app.QuestionInput{Text: "t", Type: domain.QuestionTrueFalse, TimeLimitSeconds: 30, Points: 10,
			Answers: []app.AnswerInput{{Text: "True", Correct: true}, {Text: "False"}, {Text: "Maybe"}}}},
		{"true/false both correct", app.QuestionInput{Text: "t", Type: domain.QuestionTrueFalse, TimeLimitSeconds: 30, Points: 10,
			Answers: []app.AnswerInput{{Text: "True", Correct: true}, {Text: "False", Correct: true}}}},
		{"unknown type", app.QuestionInput{Text: "t", Type: "essay", TimeLimitSeconds: 30, Points: 10,
			Answers: []app.AnswerInput{{Text: "a", Correct: true}, {Text: "b"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := catalog.AddQuestion(ctx, quiz.ID, tc.input); domain.KindOf(err) != domain.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAddQuestionAssignsContiguousPositions(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newCatalog(t)
	quiz, err := catalog.CreateQuiz(ctx, "Knots", "")
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	for i, text := range []string{"first", "second", "third"} {
		question, err := catalog.AddQuestion(ctx, quiz.ID, questionInput(text))
		if err != nil {
			t.Fatalf("add %q: %v", text, err)
		}
		if question.Position != i+1 {
			t.Fatalf("%q placed at %d, want %d", text, question.Position, i+1)
		}
	}
}

func TestDeleteQuestionRenumbers(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newCatalog(t)
	quiz, _ := catalog.CreateQuiz(ctx, "Pump ops", "")

	var ids []string
	for _, text := range []string{"first", "second", "third"} {
		question, err := catalog.AddQuestion(ctx, quiz.ID, questionInput(text))
		if err != nil {
			t.Fatalf("add %q: %v", text, err)
		}
		ids = append(ids, question.ID)
	}

	if err := catalog.DeleteQuestion(ctx, quiz.ID, ids[1]); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := catalog.GetQuiz(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if len(got.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(got.Questions))
	}
	for i, q := range got.Questions {
		if q.Position != i+1 {
			t.Fatalf("position gap after delete: %q at %d", q.Text, q.Position)
		}
	}
	if got.Questions[0].ID != ids[0] || got.Questions[1].ID != ids[2] {
		t.Fatalf("unexpected order after delete: %+v", got.Questions)
	}
}

func TestMoveQuestion(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newCatalog(t)
	quiz, _ := catalog.CreateQuiz(ctx, "SCBA checks", "")

	var ids []string
	for _, text := range []string{"first", "second", "third"} {
		question, err := catalog.AddQuestion(ctx, quiz.ID, questionInput(text))
		if err != nil {
			t.Fatalf("add %q: %v", text, err)
		}
		ids = append(ids, question.ID)
	}

	// Move "third" to the front; out-of-range positions clamp.
	if err := catalog.MoveQuestion(ctx, quiz.ID, ids[2], -5); err != nil {
		t.Fatalf("move: %v", err)
	}
	got, _ := catalog.GetQuiz(ctx, quiz.ID)
	order := []string{got.Questions[0].ID, got.Questions[1].ID, got.Questions[2].ID}
	want := []string{ids[2], ids[0], ids[1]}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order after move = %v, want %v", order, want)
		}
		if got.Questions[i].Position != i+1 {
			t.Fatalf("position %d not contiguous: %d", i, got.Questions[i].Position)
		}
	}
}

func TestEditsLockedWhileSessionLive(t *testing.T) {
	ctx := context.Background()
	catalog, store := newCatalog(t)
	quiz, _ := catalog.CreateQuiz(ctx, "Hydrant map", "")
	question, err := catalog.AddQuestion(ctx, quiz.ID, questionInput("first"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	session := domain.GameSession{
		ID:     "s1",
		QuizID: quiz.ID,
		Code:   "123456",
		Status: domain.StatusWaiting,
	}
	if err := store.CreateSession(ctx, &session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := catalog.AddQuestion(ctx, quiz.ID, questionInput("second")); !errors.Is(err, domain.ErrQuizLocked) {
		t.Fatalf("add while live: expected ErrQuizLocked, got %v", err)
	}
	if _, err := catalog.UpdateQuestion(ctx, quiz.ID, question.ID, questionInput("edited")); !errors.Is(err, domain.ErrQuizLocked) {
		t.Fatalf("update while live: expected ErrQuizLocked, got %v", err)
	}
	if err := catalog.DeleteQuestion(ctx, quiz.ID, question.ID); !errors.Is(err, domain.ErrQuizLocked) {
		t.Fatalf("delete while live: expected ErrQuizLocked, got %v", err)
	}

	// Finishing the session unlocks the catalog.
	if _, err := store.FinishSession(ctx, session.ID, 1, session.CreatedAt); err != nil {
		t.Fatalf("finish session: %v", err)
	}
	if _, err := catalog.AddQuestion(ctx, quiz.ID, questionInput("second")); err != nil {
		t.Fatalf("add after finish: %v", err)
	}
}
