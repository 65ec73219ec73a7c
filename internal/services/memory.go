package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ytakahashi/session-todo-api/internal/models"
)

// MemoryStore keeps todos and sessions in process memory. Data is lost on
// restart; it backs STORE_DRIVER=memory and the tests.
type MemoryStore struct {
	mu       sync.Mutex
	todos    map[string]models.Todo
	order    []string
	sessions map[string]models.Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		todos:    map[string]models.Todo{},
		sessions: map[string]models.Session{},
		now:      time.Now,
	}
}

func (m *MemoryStore) Find(_ context.Context, sessionID string) ([]*models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	todos := []*models.Todo{}
	for _, id := range m.order {
		todo := m.todos[id]
		if todo.SessionID == sessionID {
			todos = append(todos, &todo)
		}
	}
	return todos, nil
}

func (m *MemoryStore) FindOne(_ context.Context, filter Filter) (*models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	todo, ok := m.lookup(filter)
	if !ok {
		return nil, ErrNotFound
	}
	return &todo, nil
}

func (m *MemoryStore) Insert(_ context.Context, todo *models.Todo) (*models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *todo
	stored.ID = uuid.New().String()
	stored.CreatedAt = m.now()
	m.todos[stored.ID] = stored
	m.order = append(m.order, stored.ID)
	return &stored, nil
}

func (m *MemoryStore) Update(_ context.Context, filter Filter, update TodoUpdate) (*models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	todo, ok := m.lookup(filter)
	if !ok {
		return nil, ErrNotFound
	}
	applyUpdate(&todo, update)
	m.todos[todo.ID] = todo
	return &todo, nil
}

func (m *MemoryStore) Delete(_ context.Context, filter Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(filter); !ok {
		return 0, nil
	}
	delete(m.todos, filter.ID)
	for i, id := range m.order {
		if id == filter.ID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return 1, nil
}

func (m *MemoryStore) lookup(filter Filter) (models.Todo, bool) {
	todo, ok := m.todos[filter.ID]
	if !ok || todo.SessionID != filter.SessionID {
		return models.Todo{}, false
	}
	return todo, true
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if session.Expired(m.now()) {
		delete(m.sessions, id)
		return nil, ErrNotFound
	}
	return &session, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = *session
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}
