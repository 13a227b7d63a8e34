package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kuizu-session-service/internal/app"
	"kuizu-session-service/internal/domain"
	"kuizu-session-service/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	if err := store.CreateQuiz(context.Background(), sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	quizzes := memory.NewQuizCache(store, time.Minute)
	live := memory.NewLiveRegistry()
	sessions := app.NewSessionService(store, quizzes, live, "http://quiz.local")
	scoring := app.NewScoringService(store, quizzes, live)
	catalog := app.NewCatalogService(store)

	mux := http.NewServeMux()
	NewHandler(sessions, scoring, catalog).Register(mux)
	mux.HandleFunc("/ws", NewWSHandler(sessions, scoring, live).ServeWS)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func sampleQuiz() *domain.Quiz {
	return &domain.Quiz{
		ID:     "quiz-1",
		Title:  "Extinguisher drill",
		Active: true,
		Questions: []domain.Question{
			{
				ID:               "q1",
				QuizID:           "quiz-1",
				Text:             "Which class covers flammable liquids?",
				Type:             domain.QuestionMultipleChoice,
				TimeLimitSeconds: 30,
				Points:           100,
				Position:         1,
				Answers: []domain.Answer{
					{ID: "a1", QuestionID: "q1", Text: "Class A", Position: 1},
					{ID: "a2", QuestionID: "q1", Text: "Class B", Correct: true, Position: 2},
				},
			},
		},
	}
}

func doJSON(t *testing.T, method, url string, body any, wantStatus int, out any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader([]byte("{}"))
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d", method, url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func TestSessionFlowOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	api := server.URL + "/api"

	var created createSessionResponse
	doJSON(t, http.MethodPost, api+"/sessions",
		map[string]string{"quizId": "quiz-1", "adminId": "admin-1"}, http.StatusCreated, &created)
	if created.Session.Status != domain.StatusWaiting {
		t.Fatalf("created status %s", created.Session.Status)
	}
	if created.JoinURL != "http://quiz.local/join?code="+created.Session.Code {
		t.Fatalf("join url %q", created.JoinURL)
	}
	sessionID := created.Session.ID

	var joined app.JoinResult
	doJSON(t, http.MethodPost, api+"/sessions/join",
		map[string]string{"code": created.Session.Code, "userId": "u1"}, http.StatusCreated, &joined)
	if joined.Snapshot.ParticipantCount != 1 {
		t.Fatalf("snapshot %+v", joined.Snapshot)
	}

	// Rejoin returns 200, not 201.
	doJSON(t, http.MethodPost, api+"/sessions/join",
		map[string]string{"code": created.Session.Code, "userId": "u1"}, http.StatusOK, nil)

	var session domain.GameSession
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/start", api, sessionID),
		map[string]string{"adminId": "admin-1"}, http.StatusOK, &session)
	if session.Status != domain.StatusActive {
		t.Fatalf("start status %s", session.Status)
	}

	doJSON(t, http.MethodPut, fmt.Sprintf("%s/sessions/%s/question", api, sessionID),
		map[string]string{"adminId": "admin-1", "questionId": "q1"}, http.StatusOK, &session)

	// Player view of the current question must not leak correctness.
	var question domain.Question
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/sessions/%s/question", api, sessionID),
		nil, http.StatusOK, &question)
	for _, a := range question.Answers {
		if a.Correct {
			t.Fatalf("player question leaked correctness: %+v", a)
		}
	}
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/sessions/%s/question?role=admin", api, sessionID),
		nil, http.StatusOK, &question)
	if got, _ := question.AnswerByID("a2"); !got.Correct {
		t.Fatal("admin question lost correctness")
	}

	var result domain.SubmitResult
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/answers", api, sessionID),
		map[string]any{
			"participantId": joined.Participant.ID,
			"questionId":    "q1", "answerId": "a2", "responseTimeMs": 0,
		}, http.StatusOK, &result)
	if !result.Correct || result.PointsEarned != 150 {
		t.Fatalf("submit result %+v", result)
	}

	var lb domain.Leaderboard
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/sessions/%s/leaderboard", api, sessionID),
		nil, http.StatusOK, &lb)
	if len(lb.Entries) != 1 || lb.Entries[0].TotalScore != 150 || lb.Entries[0].Rank != 1 {
		t.Fatalf("leaderboard %+v", lb.Entries)
	}

	var stats domain.QuestionStats
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/sessions/%s/questions/q1/stats", api, sessionID),
		nil, http.StatusOK, &stats)
	if stats.TotalResponses != 1 {
		t.Fatalf("stats %+v", stats)
	}

	doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/finish", api, sessionID),
		map[string]string{"adminId": "admin-1"}, http.StatusOK, &session)
	if session.Status != domain.StatusFinished {
		t.Fatalf("finish status %s", session.Status)
	}

	var history []domain.GameHistory
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/sessions/%s/history", api, sessionID),
		nil, http.StatusOK, &history)
	if len(history) != 1 || history[0].FinalScore != 150 {
		t.Fatalf("history %+v", history)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	server, _ := newTestServer(t)
	api := server.URL + "/api"

	var created createSessionResponse
	doJSON(t, http.MethodPost, api+"/sessions",
		map[string]string{"quizId": "quiz-1", "adminId": "admin-1"}, http.StatusCreated, &created)
	sessionID := created.Session.ID

	// Validation -> 400
	doJSON(t, http.MethodPost, api+"/sessions",
		map[string]string{"quizId": "quiz-1"}, http.StatusBadRequest, nil)
	doJSON(t, http.MethodPost, api+"/sessions/join",
		map[string]string{"code": "abc", "userId": "u1"}, http.StatusBadRequest, nil)

	// Authorization -> 403
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/start", api, sessionID),
		map[string]string{"adminId": "intruder"}, http.StatusForbidden, nil)

	// Invalid transition -> 409
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/pause", api, sessionID),
		map[string]string{"adminId": "admin-1"}, http.StatusConflict, nil)

	// Conflict on second live session for the quiz -> 409
	doJSON(t, http.MethodPost, api+"/sessions",
		map[string]string{"quizId": "quiz-1", "adminId": "admin-2"}, http.StatusConflict, nil)

	// Not found -> 404
	doJSON(t, http.MethodGet, api+"/sessions/no-such-session", nil, http.StatusNotFound, nil)
	doJSON(t, http.MethodGet, api+"/quizzes/no-such-quiz", nil, http.StatusNotFound, nil)
}

func TestCatalogEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	api := server.URL + "/api"

	var quiz domain.Quiz
	doJSON(t, http.MethodPost, api+"/quizzes",
		map[string]string{"title": "Station duties", "description": "Daily checks"}, http.StatusCreated, &quiz)

	var question domain.Question
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/quizzes/%s/questions", api, quiz.ID),
		app.QuestionInput{
			Text:             "Check the pump panel first thing?",
			Type:             domain.QuestionTrueFalse,
			TimeLimitSeconds: 15,
			Points:           50,
			Answers: []app.AnswerInput{
				{Text: "True", Correct: true},
				{Text: "False"},
			},
		}, http.StatusCreated, &question)
	if question.Position != 1 || len(question.Answers) != 2 {
		t.Fatalf("question %+v", question)
	}

	doJSON(t, http.MethodPut, fmt.Sprintf("%s/quizzes/%s/questions/%s", api, quiz.ID, question.ID),
		app.QuestionInput{
			Text:             "Check the pump panel during morning parade?",
			Type:             domain.QuestionTrueFalse,
			TimeLimitSeconds: 20,
			Points:           50,
			Answers: []app.AnswerInput{
				{Text: "True", Correct: true},
				{Text: "False"},
			},
		}, http.StatusOK, &question)
	if question.TimeLimitSeconds != 20 {
		t.Fatalf("update not applied: %+v", question)
	}

	var fetched domain.Quiz
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/quizzes/%s", api, quiz.ID), nil, http.StatusOK, &fetched)
	if len(fetched.Questions) != 1 {
		t.Fatalf("fetched quiz %+v", fetched)
	}

	doJSON(t, http.MethodDelete, fmt.Sprintf("%s/quizzes/%s/questions/%s", api, quiz.ID, question.ID),
		nil, http.StatusNoContent, nil)
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/quizzes/%s", api, quiz.ID), nil, http.StatusOK, &fetched)
	if len(fetched.Questions) != 0 {
		t.Fatalf("question survived delete: %+v", fetched.Questions)
	}
}
