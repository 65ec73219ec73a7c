package services

import (
	"context"
	"errors"

	"github.com/ytakahashi/session-todo-api/internal/models"
)

var (
	// ErrNotFound is returned by stores when no document matches a filter.
	ErrNotFound = errors.New("no matching document")
	// ErrUnacknowledged is returned when a write completed without acknowledgement.
	ErrUnacknowledged = errors.New("write was not acknowledged")
)

// Filter selects a single todo. Both fields must match.
type Filter struct {
	ID        string
	SessionID string
}

// TodoUpdate describes one change applied by TodoStore.Update. Exactly one
// of Title or ToggleCompleted is set.
type TodoUpdate struct {
	Title           *string
	ToggleCompleted bool
}

// TodoStore is the persistent collection behind the todo service.
type TodoStore interface {
	Find(ctx context.Context, sessionID string) ([]*models.Todo, error)
	FindOne(ctx context.Context, filter Filter) (*models.Todo, error)
	Insert(ctx context.Context, todo *models.Todo) (*models.Todo, error)
	// Update applies the change atomically and returns the post-update item.
	Update(ctx context.Context, filter Filter, update TodoUpdate) (*models.Todo, error)
	// Delete removes the matching item and reports how many were removed.
	// Zero removed is not an error.
	Delete(ctx context.Context, filter Filter) (int64, error)
}

// SessionStore persists sessions keyed by their id.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, id string) error
}

func applyUpdate(todo *models.Todo, update TodoUpdate) {
	if update.Title != nil {
		todo.Title = *update.Title
		return
	}
	if update.ToggleCompleted {
		todo.Completed = !todo.Completed
	}
}
