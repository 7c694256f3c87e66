package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/chepyr/go-task-api/internal/cache"
	"github.com/chepyr/go-task-api/internal/db"
	"github.com/chepyr/go-task-api/internal/models"
)

var errUnauthorized = errors.New("unauthorized")

type sessionContextKey struct{}

// SessionFromContext returns the session stored by AuthMiddleware.
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*models.Session)
	return session, ok && session != nil
}

func withSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

/*
Resolve the bearer token to a live session and put it into the request context.
Missing, unknown and expired tokens are rejected with 401.
*/
func (h *Handler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			sendError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		session, err := h.authenticate(r.Context(), token)
		if errors.Is(err, errUnauthorized) {
			sendError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if err != nil {
			h.internalError(w, r, err, "failed to authenticate request")
			return
		}

		next(w, r.WithContext(withSession(r.Context(), session)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (h *Handler) authenticate(ctx context.Context, token string) (*models.Session, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	session := h.cachedSession(ctx, token)
	if session == nil {
		stored, err := h.SessionRepo.GetByID(ctx, token)
		if errors.Is(err, db.ErrNotFound) {
			return nil, errUnauthorized
		}
		if err != nil {
			return nil, err
		}
		session = stored
		if !session.Expired(h.now()) {
			h.cacheSession(ctx, session)
		}
	}

	if session.Expired(h.now()) {
		h.Logger.Debug().
			Str("user_id", session.UserID.String()).
			Time("expires_at", session.ExpiresAt).
			Msg("session expired")
		h.dropSession(ctx, token)
		return nil, errUnauthorized
	}
	return session, nil
}

// cachedSession returns nil on a miss; cache failures fall back to the database.
func (h *Handler) cachedSession(ctx context.Context, token string) *models.Session {
	if h.SessionCache == nil {
		return nil
	}
	session, err := h.SessionCache.Get(ctx, token)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			h.Logger.Warn().Err(err).Msg("session cache lookup failed")
		}
		return nil
	}
	return session
}

func (h *Handler) cacheSession(ctx context.Context, session *models.Session) {
	if h.SessionCache == nil {
		return
	}
	if err := h.SessionCache.Set(ctx, session); err != nil {
		h.Logger.Warn().Err(err).Msg("failed to cache session")
	}
}

// dropSession removes an expired session everywhere, best effort.
func (h *Handler) dropSession(ctx context.Context, token string) {
	if err := h.SessionRepo.Delete(ctx, token); err != nil && !errors.Is(err, db.ErrNotFound) {
		h.Logger.Warn().Err(err).Msg("failed to delete expired session")
	}
	if h.SessionCache != nil {
		if err := h.SessionCache.Delete(ctx, token); err != nil {
			h.Logger.Warn().Err(err).Msg("failed to evict session from cache")
		}
	}
}
