package services

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/ytakahashi/session-todo-api/internal/models"
)

const (
	msgFetchFailed    = "failed to fetch todos"
	msgAddFailed      = "failed to add todo"
	msgUpdateFailed   = "failed to update todo"
	msgDeleteFailed   = "failed to delete todo"
	msgNotFound       = "Todo not found"
	msgUnacknowledged = "todo deletion was not acknowledged"
	msgTitleRequired  = "title is required"
)

// TodoService scopes every todo operation to a session id. The session id is
// the only ownership check, so anyone holding it has full access to its todos.
type TodoService struct {
	store  TodoStore
	logger *log.Logger
}

func NewTodoService(store TodoStore, logger *log.Logger) *TodoService {
	return &TodoService{
		store:  store,
		logger: logger.WithPrefix("todos"),
	}
}

// List returns the session's todos in store order.
func (s *TodoService) List(ctx context.Context, sessionID string) ([]*models.Todo, error) {
	todos, err := s.store.Find(ctx, sessionID)
	if err != nil {
		return nil, s.fail("list", sessionID, KindStore, msgFetchFailed, err)
	}
	if todos == nil {
		todos = []*models.Todo{}
	}
	return todos, nil
}

// Add creates an incomplete todo for the session.
func (s *TodoService) Add(ctx context.Context, sessionID, title string) (*models.Todo, error) {
	if strings.TrimSpace(title) == "" {
		return nil, s.fail("add", sessionID, KindInvalid, msgTitleRequired, nil)
	}

	todo, err := s.store.Insert(ctx, &models.Todo{
		SessionID: sessionID,
		Title:     title,
		Completed: false,
	})
	if err != nil {
		return nil, s.fail("add", sessionID, KindStore, msgAddFailed, err)
	}

	s.logger.Debug("todo added", "session", sessionID, "id", todo.ID)
	return todo, nil
}

// Update renames the todo when title is non-nil and toggles its completion
// otherwise.
func (s *TodoService) Update(ctx context.Context, sessionID, id string, title *string) (*models.Todo, error) {
	if title != nil && strings.TrimSpace(*title) == "" {
		return nil, s.fail("update", sessionID, KindInvalid, msgTitleRequired, nil)
	}

	filter := Filter{ID: id, SessionID: sessionID}
	if _, err := s.store.FindOne(ctx, filter); err != nil {
		return nil, s.updateError(sessionID, err)
	}

	update := TodoUpdate{Title: title}
	if title == nil {
		update.ToggleCompleted = true
	}

	todo, err := s.store.Update(ctx, filter, update)
	if err != nil {
		return nil, s.updateError(sessionID, err)
	}

	s.logger.Debug("todo updated", "session", sessionID, "id", id, "toggle", update.ToggleCompleted)
	return todo, nil
}

// Delete removes the todo. A filter matching nothing still succeeds.
func (s *TodoService) Delete(ctx context.Context, sessionID, id string) (*models.DeleteResult, error) {
	deleted, err := s.store.Delete(ctx, Filter{ID: id, SessionID: sessionID})
	if err != nil {
		if errors.Is(err, ErrUnacknowledged) {
			return nil, s.fail("delete", sessionID, KindUnacknowledged, msgUnacknowledged, err)
		}
		return nil, s.fail("delete", sessionID, KindStore, msgDeleteFailed, err)
	}

	s.logger.Debug("todo deleted", "session", sessionID, "id", id, "deleted", deleted)
	return &models.DeleteResult{Message: models.DeleteSuccessMessage}, nil
}

func (s *TodoService) updateError(sessionID string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return s.fail("update", sessionID, KindNotFound, msgNotFound, err)
	}
	return s.fail("update", sessionID, KindStore, msgUpdateFailed, err)
}

func (s *TodoService) fail(op, sessionID string, kind Kind, message string, cause error) error {
	if kind == KindStore || kind == KindUnacknowledged {
		s.logger.Error(message, "op", op, "session", sessionID, "err", cause)
	}
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}
