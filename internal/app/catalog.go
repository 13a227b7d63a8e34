package app

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"kuizu-session-service/internal/domain"
)

// CatalogService maintains the quiz/question/answer catalog: ordered CRUD
// with contiguous positions and the answer validation invariants. Edits are
// refused while a non-finished session references the quiz.
type CatalogService struct {
	store CatalogStore
	newID func() string
}

func NewCatalogService(store CatalogStore) *CatalogService {
	return &CatalogService{store: store, newID: uuid.NewString}
}

// AnswerInput is one candidate answer supplied by an author.
type AnswerInput struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// QuestionInput is the author-supplied shape of a question.
type QuestionInput struct {
	Text             string              `json:"text"`
	Type             domain.QuestionType `json:"type"`
	TimeLimitSeconds int                 `json:"timeLimitSeconds"`
	Points           int                 `json:"points"`
	Answers          []AnswerInput       `json:"answers"`
}

// CreateQuiz registers an empty quiz.
func (c *CatalogService) CreateQuiz(ctx context.Context, title, description string) (domain.Quiz, error) {
	if title == "" {
		return domain.Quiz{}, domain.Validationf("quiz title is required")
	}
	quiz := domain.Quiz{
		ID:          c.newID(),
		Title:       title,
		Description: description,
		Active:      true,
	}
	if err := c.store.CreateQuiz(ctx, &quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// GetQuiz returns the full catalog entry, questions ordered by position.
func (c *CatalogService) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return c.store.GetQuizCatalog(ctx, quizID)
}

// AddQuestion appends a question at position max+1.
func (c *CatalogService) AddQuestion(ctx context.Context, quizID string, input QuestionInput) (domain.Question, error) {
	if err := validateQuestionInput(input); err != nil {
		return domain.Question{}, err
	}
	quiz, err := c.editableQuiz(ctx, quizID)
	if err != nil {
		return domain.Question{}, err
	}

	question := c.buildQuestion(quizID, input)
	question.Position = len(quiz.Questions) + 1
	if err := c.store.InsertQuestion(ctx, &question); err != nil {
		return domain.Question{}, err
	}
	return question, nil
}

// UpdateQuestion replaces a question's content and answer set in place,
// keeping its position.
func (c *CatalogService) UpdateQuestion(ctx context.Context, quizID, questionID string, input QuestionInput) (domain.Question, error) {
	if err := validateQuestionInput(input); err != nil {
		return domain.Question{}, err
	}
	quiz, err := c.editableQuiz(ctx, quizID)
	if err != nil {
		return domain.Question{}, err
	}
	existing, ok := quiz.QuestionByID(questionID)
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}

	question := c.buildQuestion(quizID, input)
	question.ID = questionID
	question.Position = existing.Position
	for i := range question.Answers {
		question.Answers[i].QuestionID = questionID
	}
	if err := c.store.UpdateQuestion(ctx, &question); err != nil {
		return domain.Question{}, err
	}
	return question, nil
}

// DeleteQuestion removes a question and renumbers later siblings so
// positions stay contiguous 1..N.
func (c *CatalogService) DeleteQuestion(ctx context.Context, quizID, questionID string) error {
	quiz, err := c.editableQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if _, ok := quiz.QuestionByID(questionID); !ok {
		return domain.ErrQuestionNotFound
	}
	if err := c.store.DeleteQuestion(ctx, questionID); err != nil {
		return err
	}

	positions := make(map[string]int)
	next := 1
	for _, q := range quiz.Questions {
		if q.ID == questionID {
			continue
		}
		positions[q.ID] = next
		next++
	}
	return c.store.UpdatePositions(ctx, quizID, positions)
}

// MoveQuestion places a question at a new 1-based position, shifting the
// questions in between.
func (c *CatalogService) MoveQuestion(ctx context.Context, quizID, questionID string, newPosition int) error {
	quiz, err := c.editableQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	moving, ok := quiz.QuestionByID(questionID)
	if !ok {
		return domain.ErrQuestionNotFound
	}
	if newPosition < 1 {
		newPosition = 1
	}
	if newPosition > len(quiz.Questions) {
		newPosition = len(quiz.Questions)
	}
	if newPosition == moving.Position {
		return nil
	}

	ordered := make([]domain.Question, len(quiz.Questions))
	copy(ordered, quiz.Questions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	without := ordered[:0:0]
	for _, q := range ordered {
		if q.ID != questionID {
			without = append(without, q)
		}
	}
	positions := make(map[string]int, len(ordered))
	idx := 1
	for _, q := range without {
		if idx == newPosition {
			positions[questionID] = idx
			idx++
		}
		positions[q.ID] = idx
		idx++
	}
	if _, ok := positions[questionID]; !ok {
		positions[questionID] = idx
	}
	return c.store.UpdatePositions(ctx, quizID, positions)
}

func (c *CatalogService) buildQuestion(quizID string, input QuestionInput) domain.Question {
	question := domain.Question{
		ID:               c.newID(),
		QuizID:           quizID,
		Text:             input.Text,
		Type:             input.Type,
		TimeLimitSeconds: input.TimeLimitSeconds,
		Points:           input.Points,
	}
	for i, a := range input.Answers {
		question.Answers = append(question.Answers, domain.Answer{
			ID:         c.newID(),
			QuestionID: question.ID,
			Text:       a.Text,
			Correct:    a.Correct,
			Position:   i + 1,
		})
	}
	return question
}

func (c *CatalogService) editableQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := c.store.GetQuizCatalog(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	live, err := c.store.HasLiveSession(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if live || quiz.Locked {
		return domain.Quiz{}, domain.ErrQuizLocked
	}
	return quiz, nil
}

func validateQuestionInput(input QuestionInput) error {
	if input.Text == "" {
		return domain.Validationf("question text is required")
	}
	if input.TimeLimitSeconds <= 0 {
		return domain.Validationf("time limit must be positive")
	}
	if input.Points <= 0 {
		return domain.Validationf("points must be positive")
	}
	switch input.Type {
	case domain.QuestionMultipleChoice:
		if len(input.Answers) < 2 || len(input.Answers) > 6 {
			return domain.Validationf("multiple choice questions need 2 to 6 answers, got %d", len(input.Answers))
		}
	case domain.QuestionTrueFalse:
		if len(input.Answers) != 2 {
			return domain.Validationf("true/false questions need exactly 2 answers, got %d", len(input.Answers))
		}
		if input.Answers[0].Correct == input.Answers[1].Correct {
			return domain.Validationf("true/false answers must have exactly one correct")
		}
	default:
		return domain.Validationf("unknown question type %q", input.Type)
	}
	correct := 0
	for _, a := range input.Answers {
		if a.Text == "" {
			return domain.Validationf("answer text is required")
		}
		if a.Correct {
			correct++
		}
	}
	if correct == 0 {
		return domain.Validationf("at least one answer must be correct")
	}
	return nil
}
