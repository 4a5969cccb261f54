package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"celldock/internal/domain"
	celldockerrors "celldock/internal/errors"
	"celldock/internal/services"
	"celldock/internal/tasks"
	pkgcontext "celldock/pkg/context"
)

const maxRequestBytes = 1 << 20

// ReplayQueue enqueues and looks up replay tasks
type ReplayQueue interface {
	EnqueueReplay(ctx context.Context, payload tasks.ReplayPayload) (*asynq.TaskInfo, error)
	ReplayStatus(ctx context.Context, replayID string) (*asynq.TaskInfo, error)
}

// Handlers serves the session API
type Handlers struct {
	logger   *zap.Logger
	sessions *SessionManager
	jwt      *services.JWTService
	tokenTTL int
	replays  ReplayQueue
}

// NewHandlers creates the API handlers. replays may be nil when no queue is
// configured.
func NewHandlers(logger *zap.Logger, sessions *SessionManager, jwt *services.JWTService, tokenTTL int, replays ReplayQueue) *Handlers {
	return &Handlers{
		logger:   logger,
		sessions: sessions,
		jwt:      jwt,
		tokenTTL: tokenTTL,
		replays:  replays,
	}
}

type CreateSessionRequest struct {
	Name string `json:"name" validate:"omitempty,max=64"`
}

type CreateSessionResponse struct {
	ID      string  `json:"id"`
	Name    string  `json:"name,omitempty"`
	Token   string  `json:"token"`
	ImageID *string `json:"image_id"`
}

type SessionResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	ImageID   *string   `json:"image_id"`
	Stages    int       `json:"stages"`
	CreatedAt time.Time `json:"created_at"`
}

type ExecuteRequest struct {
	Code string `json:"code" validate:"required"`
}

type ReplayRequest struct {
	Dockerfile string `json:"dockerfile" validate:"required_without=RepoURL,excluded_with=RepoURL"`
	RepoURL    string `json:"repo_url" validate:"omitempty,url"`
	Branch     string `json:"branch" validate:"omitempty,max=255"`
	Path       string `json:"path" validate:"omitempty,max=1024"`
	Compare    bool   `json:"compare"`
}

type ReplayResponse struct {
	ReplayID  string          `json:"replay_id"`
	Queue     string          `json:"queue"`
	State     string          `json:"state"`
	Result    json.RawMessage `json:"result,omitempty"`
	LastError string          `json:"last_error,omitempty"`
}

// HealthCheck reports liveness
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.sessions.Len(),
	})
}

// CreateSession starts a kernel with an empty chain and issues its token
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	logger := pkgcontext.LoggerFromContext(r.Context())

	var req CreateSessionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if !ValidateRequest(logger, w, r, &req) {
		return
	}

	session, err := h.sessions.Create(req.Name)
	if err != nil {
		respondWithError(w, http.StatusServiceUnavailable, err.Error(), nil)
		return
	}

	token, err := h.jwt.GenerateToken(session.ID, h.tokenTTL)
	if err != nil {
		logger.Error("Failed to issue session token", zap.Error(err))
		_ = h.sessions.Delete(session.ID)
		respondWithError(w, http.StatusInternalServerError, "Failed to issue session token", nil)
		return
	}

	respondWithJSON(w, http.StatusCreated, CreateSessionResponse{
		ID:    session.ID,
		Name:  session.Name,
		Token: token,
	})
}

// GetSession returns the checkpoint and chain length of a session
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	info := session.Kernel.Info()
	respondWithJSON(w, http.StatusOK, SessionResponse{
		ID:        session.ID,
		Name:      session.Name,
		ImageID:   optionalString(info.ImageID),
		Stages:    info.Stages,
		CreatedAt: session.CreatedAt,
	})
}

// GetStages returns the committed stages of a session in chain order
func (h *Handlers) GetStages(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	stages := session.Kernel.Stages()
	out := make([]StageJSON, len(stages))
	for i, s := range stages {
		out[i] = stageJSON(s)
	}
	respondWithJSON(w, http.StatusOK, out)
}

// Execute runs one cell and streams its output as newline-delimited JSON,
// ending with the execute reply.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	logger := pkgcontext.LoggerFromContext(r.Context())

	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req ExecuteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if !ValidateRequest(logger, w, r, &req) {
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)
	emit := func(msg any) error {
		if err := encoder.Encode(msg); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	reply, err := session.Kernel.Execute(r.Context(), req.Code, emitWriter{emit: emit})
	if err != nil {
		logger.Warn("Cell execution failed", zap.String("session_id", session.ID), zap.Error(err))
	}
	if err := emit(replyMessage(reply, err, session.Kernel.Info().ImageID)); err != nil {
		logger.Warn("Failed to send execute reply", zap.Error(err))
	}
}

// EnqueueReplay queues a cell-wise replay of a Dockerfile
func (h *Handlers) EnqueueReplay(w http.ResponseWriter, r *http.Request) {
	logger := pkgcontext.LoggerFromContext(r.Context())

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.replays == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Replay queue is not configured", nil)
		return
	}

	var req ReplayRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if !ValidateRequest(logger, w, r, &req) {
		return
	}

	payload := tasks.ReplayPayload{
		ReplayID:   uuid.NewString(),
		SessionID:  session.ID,
		Dockerfile: req.Dockerfile,
		RepoURL:    req.RepoURL,
		Branch:     req.Branch,
		Path:       req.Path,
		Compare:    req.Compare,
		RequestID:  domain.RequestID(r.Context()),
	}
	if err := payload.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	info, err := h.replays.EnqueueReplay(r.Context(), payload)
	if err != nil {
		logger.Error("Failed to enqueue replay", zap.Error(err))
		respondWithError(w, http.StatusServiceUnavailable, "Failed to enqueue replay", nil)
		return
	}

	respondWithJSON(w, http.StatusAccepted, ReplayResponse{
		ReplayID: info.ID,
		Queue:    info.Queue,
		State:    info.State.String(),
	})
}

// GetReplay reports the state of a replay started by this session
func (h *Handlers) GetReplay(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.replays == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Replay queue is not configured", nil)
		return
	}

	info, err := h.replays.ReplayStatus(r.Context(), chi.URLParam(r, "replayID"))
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Replay not found", nil)
		return
	}

	var payload tasks.ReplayPayload
	if err := json.Unmarshal(info.Payload, &payload); err != nil || payload.SessionID != session.ID {
		respondWithError(w, http.StatusNotFound, "Replay not found", nil)
		return
	}

	resp := ReplayResponse{
		ReplayID:  info.ID,
		Queue:     info.Queue,
		State:     info.State.String(),
		LastError: info.LastErr,
	}
	if json.Valid(info.Result) {
		resp.Result = info.Result
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// DeleteSession drops a session; its images stay in the engine
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(domain.SessionID(r.Context())); err != nil {
		respondWithCode(w, http.StatusNotFound, string(celldockerrors.ErrorCodeSessionNotFound), "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session, err := h.sessions.Get(domain.SessionID(r.Context()))
	if err != nil {
		respondWithCode(w, http.StatusNotFound, string(celldockerrors.ErrorCodeSessionNotFound), "Session not found")
		return nil, false
	}
	return session, true
}
