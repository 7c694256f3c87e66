package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/chepyr/go-task-api/internal/db"
	"github.com/chepyr/go-task-api/internal/models"
)

// bcrypt ignores everything past 72 bytes, so longer passwords are refused.
const maxPasswordBytes = 72

type signupInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=4,max=72"`
}

// HandleUsers serves POST /api/v1/users (signup).
func (h *Handler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, "Use POST method", http.StatusMethodNotAllowed)
		return
	}
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}

	var input signupInput
	if err := decodeJSON(w, r, &input); err != nil {
		sendError(w, "Bad JSON", http.StatusBadRequest)
		return
	}
	input.Email = strings.TrimSpace(input.Email)
	if !validateSignupInput(input, w) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internalError(w, r, err, "failed to hash password")
		return
	}

	now := h.now()
	user := &models.User{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	err = h.UserRepo.Create(ctx, user)
	if errors.Is(err, db.ErrDuplicate) {
		sendError(w, "Email already registered", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.internalError(w, r, err, "failed to save user")
		return
	}

	h.Logger.Info().Str("user_id", user.ID.String()).Msg("user registered")
	sendJSON(w, http.StatusOK, user)
}

func validateSignupInput(input signupInput, w http.ResponseWriter) bool {
	if err := validate.Struct(input); err != nil {
		sendError(w, validationMessage(err), http.StatusBadRequest)
		return false
	}
	if len(input.Password) > maxPasswordBytes {
		sendError(w, "password must be at most 72 bytes", http.StatusBadRequest)
		return false
	}
	return true
}
