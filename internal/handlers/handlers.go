package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chepyr/go-task-api/internal/cache"
	"github.com/chepyr/go-task-api/internal/db"
)

const (
	defaultQueryTimeout = 5 * time.Second
	defaultSessionTTL   = 24 * time.Hour
	maxBodyBytes        = 1 << 20 // 1MB
)

type Handler struct {
	UserRepo    db.UserRepositoryInterface
	SessionRepo db.SessionRepositoryInterface
	TaskRepo    db.TaskRepositoryInterface
	TagRepo     db.TagRepositoryInterface
	// SessionCache is optional; nil disables caching.
	SessionCache cache.SessionCache
	WSHub        *WSHub
	Logger       zerolog.Logger

	QueryTimeout time.Duration
	SessionTTL   time.Duration
	Now          func() time.Time
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func sendError(w http.ResponseWriter, message string, status int) {
	sendJSON(w, status, errorResponse{Error: message})
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func isJSONContentType(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC().Truncate(time.Microsecond)
}

// withTimeout bounds a single persistence step of a request.
func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := h.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (h *Handler) sessionTTL() time.Duration {
	if h.SessionTTL <= 0 {
		return defaultSessionTTL
	}
	return h.SessionTTL
}

// internalError logs err and answers with a generic 500.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	event := h.Logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path)
	if errors.Is(err, context.DeadlineExceeded) {
		event = event.Bool("timeout", true)
	}
	event.Msg(msg)
	sendError(w, "Internal server error", http.StatusInternalServerError)
}

// NotFound answers unknown routes with the JSON error shape.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	sendError(w, "Not found", http.StatusNotFound)
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", h.Login)
	mux.HandleFunc("/api/v1/auth/logout", h.AuthMiddleware(h.Logout))
	mux.HandleFunc("/api/v1/users", h.HandleUsers)
	mux.HandleFunc("/api/v1/tasks", h.AuthMiddleware(h.HandleTasks))
	mux.HandleFunc("/api/v1/tasks/", h.AuthMiddleware(h.HandleTaskByID))
	mux.HandleFunc("/api/v1/tags", h.AuthMiddleware(h.HandleTags))
	mux.HandleFunc("/api/v1/ws", h.AuthMiddleware(h.HandleWebSocket))
	mux.HandleFunc("/", h.NotFound)
	return h.RequestLogger(h.Recoverer(mux))
}
