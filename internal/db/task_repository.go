package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chepyr/task-store/internal/models"
)

var ErrTaskNotFound = errors.New("task not found")

// defines methods for task db operations
type TaskRepositoryInterface interface {
	List(ctx context.Context) ([]*models.Task, error)
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id int64) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) List(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT id, title, due_date, tag, priority, status, progress FROM tasks ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*models.Task, 0)
	for rows.Next() {
		task := &models.Task{}
		if err := rows.Scan(
			&task.ID, &task.Title, &task.DueDate, &task.Tag, &task.Priority, &task.Status, &task.Progress,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Create inserts task and sets task.ID to the id assigned by the store.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `INSERT INTO tasks (title, due_date, tag, priority, status, progress)
	 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	err := r.db.QueryRowContext(
		ctx, query, task.Title, task.DueDate, task.Tag, task.Priority, task.Status, task.Progress,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	query := `SELECT id, title, due_date, tag, priority, status, progress FROM tasks WHERE id = $1`
	task := &models.Task{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&task.ID, &task.Title, &task.DueDate, &task.Tag, &task.Priority, &task.Status, &task.Progress,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return task, nil
}

// Update overwrites every column except id. The row is matched and written
// in one statement, so concurrent writers resolve as last-writer-wins.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `UPDATE tasks
	 SET title = $1, due_date = $2, tag = $3, priority = $4, status = $5, progress = $6
	 WHERE id = $7 RETURNING id`

	var id int64
	err := r.db.QueryRowContext(
		ctx, query, task.Title, task.DueDate, task.Tag, task.Priority, task.Status, task.Progress, task.ID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("task %d: %w", task.ID, ErrTaskNotFound)
	}
	if err != nil {
		return fmt.Errorf("update task %d: %w", task.ID, err)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrTaskNotFound)
	}
	return nil
}

func (r *TaskRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
