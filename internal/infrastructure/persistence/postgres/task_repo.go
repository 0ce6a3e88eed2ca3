package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
)

// TaskRepository answers questions about challenge tasks.
type TaskRepository struct {
	q Querier
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(q Querier) *TaskRepository {
	return &TaskRepository{q: q}
}

// Exists reports whether a task with the given id exists.
func (r *TaskRepository) Exists(ctx context.Context, taskID uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM challenges_tasks WHERE id = $1)`,
		taskID,
	).Scan(&exists)
	if err != nil {
		return false, shared.WrapError("leaderboard", "TaskExists", shared.ErrStore, "task lookup failed", err)
	}
	return exists, nil
}
