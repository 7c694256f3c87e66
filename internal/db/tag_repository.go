package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chepyr/go-task-api/internal/models"
	"github.com/google/uuid"
)

type TagRepositoryInterface interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Tag, error)
}

type TagRepository struct {
	db *sql.DB
}

func NewTagRepository(db *sql.DB) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Tag, error) {
	query := `SELECT id, user_id, name, color, created_at FROM tags WHERE user_id = $1 ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("select tags: %w", err)
	}
	defer rows.Close()

	tags := make([]models.Tag, 0)
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.Color, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// findOrCreateTag resolves the user's tag called name, creating it with the
// default color when it does not exist yet.
func findOrCreateTag(ctx context.Context, tx *sql.Tx, userID uuid.UUID, name string, now time.Time) (models.Tag, error) {
	tag, err := selectTag(ctx, tx, userID, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.Tag{}, err
	}
	return insertTag(ctx, tx, userID, name, now)
}

// insertTag inserts a new tag under a savepoint. When a concurrent writer won the
// (user_id, name) race the savepoint is rolled back, keeping the transaction usable,
// and the winning row is read back exactly once.
func insertTag(ctx context.Context, tx *sql.Tx, userID uuid.UUID, name string, now time.Time) (models.Tag, error) {
	tag := models.Tag{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		Color:     models.DefaultTagColor,
		CreatedAt: now,
	}

	if _, err := tx.ExecContext(ctx, `SAVEPOINT tag_upsert`); err != nil {
		return models.Tag{}, fmt.Errorf("savepoint: %w", err)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tags (id, user_id, name, color, created_at) VALUES ($1, $2, $3, $4, $5)`,
		tag.ID, tag.UserID, tag.Name, tag.Color, tag.CreatedAt)
	if err == nil {
		if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT tag_upsert`); err != nil {
			return models.Tag{}, fmt.Errorf("release savepoint: %w", err)
		}
		return tag, nil
	}
	if !isUniqueViolation(err) {
		return models.Tag{}, fmt.Errorf("insert tag: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT tag_upsert`); err != nil {
		return models.Tag{}, fmt.Errorf("rollback to savepoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT tag_upsert`); err != nil {
		return models.Tag{}, fmt.Errorf("release savepoint: %w", err)
	}
	existing, err := selectTag(ctx, tx, userID, name)
	if err != nil {
		return models.Tag{}, fmt.Errorf("reload tag %q after conflict: %w", name, err)
	}
	return existing, nil
}

func selectTag(ctx context.Context, q querier, userID uuid.UUID, name string) (models.Tag, error) {
	var tag models.Tag
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, name, color, created_at FROM tags WHERE user_id = $1 AND name = $2`,
		userID, name,
	).Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.Color, &tag.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Tag{}, ErrNotFound
	}
	if err != nil {
		return models.Tag{}, fmt.Errorf("select tag: %w", err)
	}
	return tag, nil
}

// linkTags resolves every name and links it to the task in the given order.
func linkTags(ctx context.Context, tx *sql.Tx, task *models.Task, names []string, now time.Time) ([]models.Tag, error) {
	tags := make([]models.Tag, 0, len(names))
	for i, name := range names {
		tag, err := findOrCreateTag(ctx, tx, task.UserID, name, now)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO task_tags (task_id, tag_id, position) VALUES ($1, $2, $3)`,
			task.ID, tag.ID, i)
		if err != nil {
			return nil, fmt.Errorf("link tag %q: %w", name, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}
