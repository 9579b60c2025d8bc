package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/taskhub-backend/internal/models"
	"github.com/ignatzorin/taskhub-backend/internal/repository/common"
)

// ErrTaskNotFound возвращается, когда задача не найдена.
var ErrTaskNotFound = errors.New("task not found")

// TaskRepository отвечает за работу с задачами.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository создаёт экземпляр репозитория.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create сохраняет новую задачу.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (owner_id, title, description, budget, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	if err := common.Conn(ctx, r.db).QueryRowxContext(
		ctx,
		query,
		task.OwnerID,
		task.Title,
		task.Description,
		task.Budget,
		task.Status,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return fmt.Errorf("task repository: create %w", err)
	}

	return nil
}

// GetByID возвращает задачу по идентификатору.
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return common.GetByID[models.Task](ctx, common.Conn(ctx, r.db), "tasks", id, ErrTaskNotFound)
}

// ListByOwner возвращает задачи заказчика, новые первыми.
func (r *TaskRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Task, error) {
	var tasks []models.Task
	query := `SELECT * FROM tasks WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := common.Conn(ctx, r.db).SelectContext(ctx, &tasks, query, ownerID, limit, offset); err != nil {
		return nil, fmt.Errorf("task repository: list by owner %w", err)
	}

	return tasks, nil
}

// Assign переводит открытую задачу в работу и назначает исполнителя.
// Возвращает false, если задача уже не открыта.
func (r *TaskRepository) Assign(ctx context.Context, id, taskerID uuid.UUID, paymentIntentID string) (bool, error) {
	affected, err := common.CompareAndSwap(ctx, common.Conn(ctx, r.db), "tasks", id, "status",
		[]string{models.TaskStatusOpen},
		map[string]interface{}{
			"status":            models.TaskStatusInProgress,
			"assigned_to":       taskerID,
			"payment_intent_id": paymentIntentID,
		},
	)
	if err != nil {
		return false, fmt.Errorf("task repository: assign %w", err)
	}

	return affected == 1, nil
}

// TransitionStatus меняет статус задачи, если текущий входит в from.
// clearAssignee сбрасывает исполнителя (отмена задачи).
func (r *TaskRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []string, to string, clearAssignee bool) (bool, error) {
	set := map[string]interface{}{"status": to}
	if clearAssignee {
		set["assigned_to"] = nil
	}

	affected, err := common.CompareAndSwap(ctx, common.Conn(ctx, r.db), "tasks", id, "status", from, set)
	if err != nil {
		return false, fmt.Errorf("task repository: transition status %w", err)
	}

	return affected == 1, nil
}
