package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/ytakahashi/session-todo-api/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	todosCollection    = "todos"
	sessionsCollection = "sessions"
)

// FirestoreStore stores todos and sessions in Cloud Firestore. Document ids
// are generated here, so a todo's id is also its document name.
//
// Find needs a composite index on todos (sessionId ASC, createdAt ASC); it is
// declared in firestore.indexes.json at the repository root. Without it every
// query fails with FAILED_PRECONDITION.
type FirestoreStore struct {
	client *firestore.Client
	now    func() time.Time
}

func NewFirestoreStore(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &FirestoreStore{
		client: client,
		now:    time.Now,
	}, nil
}

func (fs *FirestoreStore) Close() error {
	return fs.client.Close()
}

func (fs *FirestoreStore) Find(ctx context.Context, sessionID string) ([]*models.Todo, error) {
	iter := fs.client.Collection(todosCollection).
		Where("sessionId", "==", sessionID).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	todos := []*models.Todo{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate todos: %w", err)
		}

		var todo models.Todo
		if err := doc.DataTo(&todo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal todo: %w", err)
		}
		todo.ID = doc.Ref.ID

		todos = append(todos, &todo)
	}

	return todos, nil
}

func (fs *FirestoreStore) FindOne(ctx context.Context, filter Filter) (*models.Todo, error) {
	if !validDocID(filter.ID) {
		return nil, ErrNotFound
	}
	doc, err := fs.client.Collection(todosCollection).Doc(filter.ID).Get(ctx)
	if err != nil {
		return nil, notFoundOr(err, "failed to get todo")
	}
	return todoFromSnapshot(doc, filter)
}

func (fs *FirestoreStore) Insert(ctx context.Context, todo *models.Todo) (*models.Todo, error) {
	stored := *todo
	stored.ID = uuid.New().String()
	stored.CreatedAt = fs.now()

	_, err := fs.client.Collection(todosCollection).Doc(stored.ID).Set(ctx, &stored)
	if err != nil {
		return nil, fmt.Errorf("failed to create todo: %w", err)
	}

	return &stored, nil
}

// Update runs in a transaction so a toggle cannot interleave with another write.
func (fs *FirestoreStore) Update(ctx context.Context, filter Filter, update TodoUpdate) (*models.Todo, error) {
	if !validDocID(filter.ID) {
		return nil, ErrNotFound
	}
	ref := fs.client.Collection(todosCollection).Doc(filter.ID)

	var updated *models.Todo
	err := fs.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return notFoundOr(err, "failed to get todo")
		}
		todo, err := todoFromSnapshot(doc, filter)
		if err != nil {
			return err
		}

		applyUpdate(todo, update)
		var change firestore.Update
		if update.Title != nil {
			change = firestore.Update{Path: "title", Value: todo.Title}
		} else {
			change = firestore.Update{Path: "completed", Value: todo.Completed}
		}
		if err := tx.Update(ref, []firestore.Update{change}); err != nil {
			return fmt.Errorf("failed to update todo: %w", err)
		}

		updated = todo
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (fs *FirestoreStore) Delete(ctx context.Context, filter Filter) (int64, error) {
	if !validDocID(filter.ID) {
		return 0, nil
	}
	ref := fs.client.Collection(todosCollection).Doc(filter.ID)

	var deletedCount int64
	err := fs.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		deletedCount = 0
		doc, err := tx.Get(ref)
		if isMissingDoc(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get todo for deletion: %w", err)
		}
		if _, err := todoFromSnapshot(doc, filter); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}

		if err := tx.Delete(ref); err != nil {
			return fmt.Errorf("failed to delete todo: %w", err)
		}
		deletedCount = 1
		return nil
	})
	if err != nil {
		return 0, err
	}

	return deletedCount, nil
}

func (fs *FirestoreStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if !validDocID(id) {
		return nil, ErrNotFound
	}
	doc, err := fs.client.Collection(sessionsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, notFoundOr(err, "failed to get session")
	}

	var session models.Session
	if err := doc.DataTo(&session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	session.ID = doc.Ref.ID

	if session.Expired(fs.now()) {
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, ErrNotFound
	}

	return &session, nil
}

func (fs *FirestoreStore) SaveSession(ctx context.Context, session *models.Session) error {
	_, err := fs.client.Collection(sessionsCollection).Doc(session.ID).Set(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (fs *FirestoreStore) DeleteSession(ctx context.Context, id string) error {
	if !validDocID(id) {
		return nil
	}
	_, err := fs.client.Collection(sessionsCollection).Doc(id).Delete(ctx)
	if err != nil && !isMissingDoc(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func todoFromSnapshot(doc *firestore.DocumentSnapshot, filter Filter) (*models.Todo, error) {
	var todo models.Todo
	if err := doc.DataTo(&todo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal todo: %w", err)
	}
	todo.ID = doc.Ref.ID

	if todo.SessionID != filter.SessionID {
		return nil, ErrNotFound
	}
	return &todo, nil
}

// isMissingDoc reports whether err means the document does not exist or its
// id can never name a document (".", "..", "__x__").
func isMissingDoc(err error) bool {
	switch status.Code(err) {
	case codes.NotFound, codes.InvalidArgument:
		return true
	default:
		return false
	}
}

func notFoundOr(err error, msg string) error {
	if isMissingDoc(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// validDocID rejects ids that Collection.Doc cannot turn into a reference.
func validDocID(id string) bool {
	return id != "" && !strings.Contains(id, "/")
}
