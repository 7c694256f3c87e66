package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/chepyr/go-task-api/internal/db"
	"github.com/chepyr/go-task-api/internal/models"
)

const sessionTokenBytes = 32

// dummyPasswordHash is compared against when the email is unknown, so both
// failure paths cost one bcrypt run.
var dummyPasswordHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	return hash
})

type loginResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"accessToken"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, "Use POST method for login", http.StatusMethodNotAllowed)
		return
	}
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}

	var input struct {
		Email    string `json:"email" validate:"required,max=255"`
		Password string `json:"password" validate:"required,max=255"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		sendError(w, "Bad JSON", http.StatusBadRequest)
		return
	}
	input.Email = strings.TrimSpace(input.Email)
	if err := validate.Struct(input); err != nil {
		sendError(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	user, err := h.UserRepo.GetByEmail(ctx, input.Email)
	if errors.Is(err, db.ErrNotFound) {
		// burn the same bcrypt work as a real comparison
		_ = bcrypt.CompareHashAndPassword(dummyPasswordHash(), []byte(input.Password))
		h.Logger.Info().Str("email", input.Email).Msg("login for unknown email")
		sendError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.internalError(w, r, err, "failed to load user for login")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		h.Logger.Info().Str("user_id", user.ID.String()).Msg("login with wrong password")
		sendError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	token, err := generateToken(sessionTokenBytes)
	if err != nil {
		h.internalError(w, r, err, "failed to generate session token")
		return
	}
	now := h.now()
	session := &models.Session{
		ID:        token,
		UserID:    user.ID,
		ExpiresAt: now.Add(h.sessionTTL()),
		CreatedAt: now,
	}
	if err := h.SessionRepo.Create(ctx, session); err != nil {
		h.internalError(w, r, err, "failed to create session")
		return
	}
	h.cacheSession(ctx, session)

	h.Logger.Info().
		Str("user_id", user.ID.String()).
		Time("expires_at", session.ExpiresAt).
		Msg("user logged in")
	sendJSON(w, http.StatusOK, loginResponse{
		ID:          user.ID,
		Email:       user.Email,
		AccessToken: session.ID,
	})
}

// Logout deletes the caller's session. It runs behind AuthMiddleware, so the
// session is known to exist when it starts.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		sendError(w, "Use DELETE method for logout", http.StatusMethodNotAllowed)
		return
	}
	session, ok := SessionFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	// evict first: a cached copy would keep authenticating after the row is gone
	if h.SessionCache != nil {
		if err := h.SessionCache.Delete(ctx, session.ID); err != nil {
			h.internalError(w, r, err, "failed to evict session from cache")
			return
		}
	}
	err := h.SessionRepo.Delete(ctx, session.ID)
	if errors.Is(err, db.ErrNotFound) {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.internalError(w, r, err, "failed to delete session")
		return
	}

	h.Logger.Info().Str("user_id", session.UserID.String()).Msg("user logged out")
	sendJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
