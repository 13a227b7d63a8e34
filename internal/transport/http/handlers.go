package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"kuizu-session-service/internal/app"
	"kuizu-session-service/internal/domain"
)

// Handler exposes the poll API. Reads go straight to the store so simple
// clients can keep polling every couple of seconds without touching the
// push layer. Identity and role arrive pre-authenticated from the outer
// platform; this service trusts the adminId/userId/role fields it is given.
type Handler struct {
	sessions *app.SessionService
	scoring  *app.ScoringService
	catalog  *app.CatalogService
}

func NewHandler(sessions *app.SessionService, scoring *app.ScoringService, catalog *app.CatalogService) *Handler {
	return &Handler{sessions: sessions, scoring: scoring, catalog: catalog}
}

// Register wires all routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.createSession)
	mux.HandleFunc("POST /api/sessions/{id}/start", h.transition(h.sessions.Start))
	mux.HandleFunc("POST /api/sessions/{id}/pause", h.transition(h.sessions.Pause))
	mux.HandleFunc("POST /api/sessions/{id}/resume", h.transition(h.sessions.Resume))
	mux.HandleFunc("POST /api/sessions/{id}/finish", h.transition(h.sessions.Finish))
	mux.HandleFunc("PUT /api/sessions/{id}/question", h.setCurrentQuestion)
	mux.HandleFunc("POST /api/sessions/join", h.join)
	mux.HandleFunc("POST /api/sessions/{id}/answers", h.submitAnswer)
	mux.HandleFunc("GET /api/sessions/{id}", h.getSession)
	mux.HandleFunc("GET /api/sessions/code/{code}", h.getSessionByCode)
	mux.HandleFunc("GET /api/sessions/{id}/question", h.currentQuestion)
	mux.HandleFunc("GET /api/sessions/{id}/participants", h.participants)
	mux.HandleFunc("GET /api/sessions/{id}/leaderboard", h.leaderboard)
	mux.HandleFunc("GET /api/sessions/{id}/questions/{questionId}/stats", h.questionStats)
	mux.HandleFunc("GET /api/sessions/{id}/history", h.history)

	mux.HandleFunc("POST /api/quizzes", h.createQuiz)
	mux.HandleFunc("GET /api/quizzes/{id}", h.getQuiz)
	mux.HandleFunc("POST /api/quizzes/{id}/questions", h.addQuestion)
	mux.HandleFunc("PUT /api/quizzes/{id}/questions/{questionId}", h.updateQuestion)
	mux.HandleFunc("DELETE /api/quizzes/{id}/questions/{questionId}", h.deleteQuestion)
	mux.HandleFunc("PUT /api/quizzes/{id}/questions/{questionId}/position", h.moveQuestion)
}

type createSessionRequest struct {
	QuizID  string `json:"quizId"`
	AdminID string `json:"adminId"`
}

type createSessionResponse struct {
	Session domain.GameSession `json:"session"`
	JoinURL string             `json:"joinUrl"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.QuizID == "" || req.AdminID == "" {
		writeError(w, domain.Validationf("quizId and adminId are required"))
		return
	}
	session, err := h.sessions.Create(r.Context(), req.QuizID, req.AdminID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		Session: session,
		JoinURL: h.sessions.JoinURL(session.Code),
	})
}

type adminRequest struct {
	AdminID string `json:"adminId"`
}

func (h *Handler) transition(op func(ctx context.Context, sessionID, adminID string) (domain.GameSession, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adminRequest
		if !decode(w, r, &req) {
			return
		}
		session, err := op(r.Context(), r.PathValue("id"), req.AdminID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

type setQuestionRequest struct {
	AdminID    string `json:"adminId"`
	QuestionID string `json:"questionId"`
}

func (h *Handler) setCurrentQuestion(w http.ResponseWriter, r *http.Request) {
	var req setQuestionRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.sessions.SetCurrentQuestion(r.Context(), r.PathValue("id"), req.AdminID, req.QuestionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type joinRequest struct {
	Code   string `json:"code"`
	UserID string `json:"userId"`
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, domain.Validationf("userId is required"))
		return
	}
	result, err := h.sessions.Join(r.Context(), req.Code, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Rejoined {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

type submitAnswerRequest struct {
	ParticipantID  string `json:"participantId"`
	QuestionID     string `json:"questionId"`
	AnswerID       string `json:"answerId"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ParticipantID == "" || req.QuestionID == "" || req.AnswerID == "" {
		writeError(w, domain.Validationf("participantId, questionId and answerId are required"))
		return
	}
	result, err := h.scoring.SubmitAnswer(r.Context(), r.PathValue("id"), req.ParticipantID, req.QuestionID, req.AnswerID, req.ResponseTimeMs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.sessions.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) getSessionByCode(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.sessions.SnapshotByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) currentQuestion(w http.ResponseWriter, r *http.Request) {
	asAdmin := r.URL.Query().Get("role") == "admin"
	question, err := h.sessions.CurrentQuestion(r.Context(), r.PathValue("id"), asAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (h *Handler) participants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.sessions.Participants(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participants)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	leaderboard, err := h.scoring.Leaderboard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboard)
}

func (h *Handler) questionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.scoring.QuestionStats(r.Context(), r.PathValue("id"), r.PathValue("questionId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	rows, err := h.sessions.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type createQuizRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if !decode(w, r, &req) {
		return
	}
	quiz, err := h.catalog.CreateQuiz(r.Context(), req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.catalog.GetQuiz(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) addQuestion(w http.ResponseWriter, r *http.Request) {
	var input app.QuestionInput
	if !decode(w, r, &input) {
		return
	}
	question, err := h.catalog.AddQuestion(r.Context(), r.PathValue("id"), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, question)
}

func (h *Handler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var input app.QuestionInput
	if !decode(w, r, &input) {
		return
	}
	question, err := h.catalog.UpdateQuestion(r.Context(), r.PathValue("id"), r.PathValue("questionId"), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (h *Handler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteQuestion(r.Context(), r.PathValue("id"), r.PathValue("questionId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveQuestionRequest struct {
	Position int `json:"position"`
}

func (h *Handler) moveQuestion(w http.ResponseWriter, r *http.Request) {
	var req moveQuestionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.catalog.MoveQuestion(r.Context(), r.PathValue("id"), r.PathValue("questionId"), req.Position); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string      `json:"error"`
	Kind  domain.Kind `json:"kind,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, domain.Validationf("invalid request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindConflict, domain.KindInvalidTransition:
		status = http.StatusConflict
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindAuthorization:
		status = http.StatusForbidden
	case domain.KindValidation:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: domain.KindOf(err)})
}
