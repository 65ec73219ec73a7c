package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ytakahashi/session-todo-api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type mongoTodo struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	SessionID string             `bson:"sessionId"`
	Title     string             `bson:"title"`
	Completed bool               `bson:"completed"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (t mongoTodo) model() *models.Todo {
	return &models.Todo{
		ID:        t.ID.Hex(),
		SessionID: t.SessionID,
		Title:     t.Title,
		Completed: t.Completed,
		CreatedAt: t.CreatedAt,
	}
}

type mongoSession struct {
	ID      string               `bson:"_id"`
	Expires time.Time            `bson:"expires"`
	Cookie  models.SessionCookie `bson:"cookie"`
}

// MongoStore stores todos and sessions in MongoDB. Todo ids are ObjectIDs
// rendered as hex strings.
type MongoStore struct {
	client   *mongo.Client
	todos    *mongo.Collection
	sessions *mongo.Collection
	now      func() time.Time
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	return &MongoStore{
		client:   client,
		todos:    db.Collection(todosCollection),
		sessions: db.Collection(sessionsCollection),
		now:      time.Now,
	}, nil
}

// EnsureIndexes creates the session lookup index on todos and a TTL index
// that lets MongoDB drop expired sessions.
func (ms *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := ms.todos.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sessionId", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create todos index: %w", err)
	}

	_, err = ms.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("failed to create sessions TTL index: %w", err)
	}
	return nil
}

func (ms *MongoStore) Close(ctx context.Context) error {
	return ms.client.Disconnect(ctx)
}

func (ms *MongoStore) Find(ctx context.Context, sessionID string) ([]*models.Todo, error) {
	cursor, err := ms.todos.Find(ctx, bson.M{"sessionId": sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to find todos: %w", err)
	}

	var docs []mongoTodo
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode todos: %w", err)
	}

	todos := make([]*models.Todo, 0, len(docs))
	for _, doc := range docs {
		todos = append(todos, doc.model())
	}
	return todos, nil
}

func (ms *MongoStore) FindOne(ctx context.Context, filter Filter) (*models.Todo, error) {
	query, ok := mongoFilter(filter)
	if !ok {
		return nil, ErrNotFound
	}

	var doc mongoTodo
	if err := ms.todos.FindOne(ctx, query).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find todo: %w", err)
	}
	return doc.model(), nil
}

func (ms *MongoStore) Insert(ctx context.Context, todo *models.Todo) (*models.Todo, error) {
	doc := mongoTodo{
		ID:        primitive.NewObjectID(),
		SessionID: todo.SessionID,
		Title:     todo.Title,
		Completed: todo.Completed,
		CreatedAt: ms.now(),
	}

	if _, err := ms.todos.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert todo: %w", err)
	}
	return doc.model(), nil
}

// Update uses a single findOneAndUpdate. Toggles are expressed as an
// aggregation pipeline so the negation happens on the server.
func (ms *MongoStore) Update(ctx context.Context, filter Filter, update TodoUpdate) (*models.Todo, error) {
	query, ok := mongoFilter(filter)
	if !ok {
		return nil, ErrNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc mongoTodo
	err := ms.todos.FindOneAndUpdate(ctx, query, mongoUpdate(update), opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}
	return doc.model(), nil
}

func (ms *MongoStore) Delete(ctx context.Context, filter Filter) (int64, error) {
	query, ok := mongoFilter(filter)
	if !ok {
		return 0, nil
	}

	res, err := ms.todos.DeleteOne(ctx, query)
	if err != nil {
		if errors.Is(err, mongo.ErrUnacknowledgedWrite) {
			return 0, fmt.Errorf("failed to delete todo: %w", ErrUnacknowledged)
		}
		return 0, fmt.Errorf("failed to delete todo: %w", err)
	}
	return res.DeletedCount, nil
}

func (ms *MongoStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var doc mongoSession
	err := ms.sessions.FindOne(ctx, bson.M{
		"_id":     id,
		"expires": bson.M{"$gt": ms.now()},
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return &models.Session{
		ID:        doc.ID,
		Cookie:    doc.Cookie,
		ExpiresAt: doc.Expires,
	}, nil
}

func (ms *MongoStore) SaveSession(ctx context.Context, session *models.Session) error {
	doc := mongoSession{
		ID:      session.ID,
		Expires: session.ExpiresAt,
		Cookie:  session.Cookie,
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := ms.sessions.ReplaceOne(ctx, bson.M{"_id": session.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (ms *MongoStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := ms.sessions.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// mongoFilter returns false when the id can never match a stored todo.
func mongoFilter(filter Filter) (bson.M, bool) {
	oid, err := primitive.ObjectIDFromHex(filter.ID)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid, "sessionId": filter.SessionID}, true
}

func mongoUpdate(update TodoUpdate) interface{} {
	if update.Title != nil {
		return bson.M{"$set": bson.M{"title": *update.Title}}
	}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "completed", Value: bson.D{{Key: "$not", Value: bson.A{"$completed"}}}},
		}}},
	}
}
