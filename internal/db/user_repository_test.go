package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chepyr/go-task-api/internal/models"
	"github.com/google/uuid"
)

func TestUserRepository_Create(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewUserRepository(conn)

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        "test_1@example.com",
		PasswordHash: "password",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	// verify user was created
	if n := countRows(t, conn, "SELECT COUNT(*) FROM users WHERE email = $1", user.Email); n != 1 {
		t.Fatalf("Expected 1 user, got %d", n)
	}
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewUserRepository(conn)
	insertUser(t, conn, "same@example.com")

	now := time.Now().UTC()
	err := repo.Create(context.Background(), &models.User{
		ID: uuid.New(), Email: "same@example.com", PasswordHash: "x", CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate, got %v", err)
	}
}

func TestUserRepository_GetByEmail(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewUserRepository(conn)
	user := insertUser(t, conn, "test_1@example.com")

	fetchedUser, err := repo.GetByEmail(context.Background(), user.Email)
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if fetchedUser.ID != user.ID {
		t.Errorf("Expected ID %v, got %v", user.ID, fetchedUser.ID)
	}
	if fetchedUser.PasswordHash != user.PasswordHash {
		t.Errorf("Expected password hash %v, got %v", user.PasswordHash, fetchedUser.PasswordHash)
	}

	byID, err := repo.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byID.Email != user.Email {
		t.Errorf("Expected email %v, got %v", user.Email, byID.Email)
	}
}

func TestUserRepository_GetByEmail_NotFound(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewUserRepository(conn)

	_, err := repo.GetByEmail(context.Background(), "nonexistent@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	_, err = repo.GetByID(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
