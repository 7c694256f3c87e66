package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chepyr/go-task-api/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// defines methods for task db operations
type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *models.Task, tagNames []string) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Task, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Task, error)
	Update(ctx context.Context, userID, id uuid.UUID, apply func(task *models.Task) []string) (*models.Task, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type TaskRepository struct {
	db *sql.DB
	// lockClause row-locks the task read by Update; sqlite locks at BEGIN instead
	lockClause string
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	repo := &TaskRepository{db: db}
	if _, ok := db.Driver().(*pq.Driver); ok {
		repo.lockClause = " FOR UPDATE"
	}
	return repo
}

const taskColumns = `id, user_id, title, description, status, priority,
 expires_at, started_at, completed_at, created_at, updated_at`

// Create inserts the task and links its tags in one transaction.
// On success task.Tags holds the resolved tags in the order of tagNames.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task, tagNames []string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `INSERT INTO tasks (` + taskColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		_, err := tx.ExecContext(ctx, query,
			task.ID, task.UserID, task.Title, nullString(task.Description), task.Status,
			nullPriority(task.Priority), nullTime(task.ExpiresAt), nullTime(task.StartedAt),
			nullTime(task.CompletedAt), task.CreatedAt, task.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}

		tags, err := linkTags(ctx, tx, task, tagNames, task.CreatedAt)
		if err != nil {
			return err
		}
		task.Tags = tags
		return nil
	})
}

func (r *TaskRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}

	task.Tags, err = tagsForTask(ctx, r.db, task.ID)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (r *TaskRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*models.Task, 0)
	byID := make(map[uuid.UUID]*models.Task)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
		byID[task.ID] = task
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	rows.Close()

	tagQuery := `SELECT tt.task_id, tg.id, tg.user_id, tg.name, tg.color, tg.created_at
	 FROM task_tags tt
	 JOIN tags tg ON tg.id = tt.tag_id
	 JOIN tasks t ON t.id = tt.task_id
	 WHERE t.user_id = $1
	 ORDER BY tt.task_id, tt.position`
	tagRows, err := r.db.QueryContext(ctx, tagQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("select task tags: %w", err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var taskID uuid.UUID
		var tag models.Tag
		if err := tagRows.Scan(&taskID, &tag.ID, &tag.UserID, &tag.Name, &tag.Color, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task tag: %w", err)
		}
		if task, ok := byID[taskID]; ok {
			task.Tags = append(task.Tags, tag)
		}
	}
	return tasks, tagRows.Err()
}

// Update reads the caller's task, lets apply change it and writes it back, all
// in one transaction. apply returns the new tag names: nil leaves the tag links
// untouched, a non-nil slice (even an empty one) replaces them all.
func (r *TaskRepository) Update(ctx context.Context, userID, id uuid.UUID, apply func(task *models.Task) []string) (*models.Task, error) {
	var task *models.Task
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2` + r.lockClause
		current, err := scanTask(tx.QueryRowContext(ctx, query, id, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("select task: %w", err)
		}
		if current.Tags, err = tagsForTask(ctx, tx, current.ID); err != nil {
			return err
		}

		tagNames := apply(current)

		update := `UPDATE tasks SET title = $1, description = $2, status = $3, priority = $4,
		 expires_at = $5, started_at = $6, completed_at = $7, updated_at = $8
		 WHERE id = $9 AND user_id = $10`
		res, err := tx.ExecContext(ctx, update,
			current.Title, nullString(current.Description), current.Status, nullPriority(current.Priority),
			nullTime(current.ExpiresAt), nullTime(current.StartedAt), nullTime(current.CompletedAt),
			current.UpdatedAt, current.ID, current.UserID)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}

		if tagNames != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = $1`, current.ID); err != nil {
				return fmt.Errorf("clear task tags: %w", err)
			}
			if current.Tags, err = linkTags(ctx, tx, current, tagNames, current.UpdatedAt); err != nil {
				return err
			}
		}
		task = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Delete removes the task together with its tag links.
func (r *TaskRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM task_tags WHERE task_id IN (SELECT id FROM tasks WHERE id = $1 AND user_id = $2)`,
			id, userID)
		if err != nil {
			return fmt.Errorf("delete task tags: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return expectOneRow(res)
	})
}

func tagsForTask(ctx context.Context, q querier, taskID uuid.UUID) ([]models.Tag, error) {
	query := `SELECT tg.id, tg.user_id, tg.name, tg.color, tg.created_at
	 FROM task_tags tt
	 JOIN tags tg ON tg.id = tt.tag_id
	 WHERE tt.task_id = $1
	 ORDER BY tt.position`
	rows, err := q.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("select task tags: %w", err)
	}
	defer rows.Close()

	tags := make([]models.Tag, 0)
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.Color, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task        models.Task
		description sql.NullString
		priority    sql.NullString
		expiresAt   sql.NullTime
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(
		&task.ID, &task.UserID, &task.Title, &description, &task.Status, &priority,
		&expiresAt, &startedAt, &completedAt, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Description = stringPtr(description)
	if priority.Valid {
		p := models.TaskPriority(priority.String)
		task.Priority = &p
	}
	task.ExpiresAt = timePtr(expiresAt)
	task.StartedAt = timePtr(startedAt)
	task.CompletedAt = timePtr(completedAt)
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	task.Tags = make([]models.Tag, 0)
	return &task, nil
}

func nullPriority(p *models.TaskPriority) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*p), Valid: true}
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

