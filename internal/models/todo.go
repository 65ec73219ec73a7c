package models

import (
	"time"
)

// Todo represents a todo item owned by a session
type Todo struct {
	ID        string    `firestore:"id" json:"_id"`
	SessionID string    `firestore:"sessionId" json:"sessionId"`
	Title     string    `firestore:"title" json:"title"`
	Completed bool      `firestore:"completed" json:"completed"`
	CreatedAt time.Time `firestore:"createdAt" json:"-"`
}

// DeleteResult is returned when a delete request has been accepted by the store.
type DeleteResult struct {
	Message string `json:"message"`
}

const DeleteSuccessMessage = "Todo deleted successfully!"
