package models

import (
	"time"
)

// Session is the server side record behind a session cookie.
type Session struct {
	ID        string        `firestore:"id" json:"id"`
	Cookie    SessionCookie `firestore:"cookie" json:"cookie"`
	ExpiresAt time.Time     `firestore:"expires" json:"expires"`
}

// SessionCookie keeps the cookie attributes the session was issued with.
type SessionCookie struct {
	OriginalMaxAge int64  `firestore:"originalMaxAge" json:"originalMaxAge"`
	HTTPOnly       bool   `firestore:"httpOnly" json:"httpOnly"`
	Secure         bool   `firestore:"secure" json:"secure"`
	Path           string `firestore:"path" json:"path"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
