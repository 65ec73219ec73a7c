package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
	"github.com/ytakahashi/session-todo-api/internal/models"
	"github.com/ytakahashi/session-todo-api/internal/services"
)

const sessionContextKey = "session_id"

// SessionOptions configures the session cookie.
type SessionOptions struct {
	Secret     string
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

// SessionManager issues a signed session cookie on first contact and stores
// the session server side. Whoever presents the cookie owns the session.
type SessionManager struct {
	store  services.SessionStore
	opts   SessionOptions
	codec  *securecookie.SecureCookie
	logger *log.Logger
	now    func() time.Time
}

func NewSessionManager(store services.SessionStore, opts SessionOptions, logger *log.Logger) *SessionManager {
	return &SessionManager{
		store:  store,
		opts:   opts,
		codec:  newSessionCodec(opts),
		logger: logger.WithPrefix("session"),
		now:    time.Now,
	}
}

// newSessionCodec signs cookie values with the session secret. Values are
// authenticated, not encrypted; the session id is not a secret to its holder.
func newSessionCodec(opts SessionOptions) *securecookie.SecureCookie {
	return securecookie.New([]byte(opts.Secret), nil).MaxAge(int(opts.MaxAge.Seconds()))
}

// Middleware resolves the session for every request, creating one when the
// cookie is missing, tampered with, unknown or expired.
func (m *SessionManager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			if id, ok := m.readCookie(c); ok {
				_, err := m.store.GetSession(ctx, id)
				if err == nil {
					c.Set(sessionContextKey, id)
					return next(c)
				}
				if !errors.Is(err, services.ErrNotFound) {
					m.logger.Error("failed to load session", "err", err)
					return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load session"})
				}
				// Signed but unknown or expired: drop whatever record remains.
				if err := m.store.DeleteSession(ctx, id); err != nil {
					m.logger.Warn("failed to delete stale session", "id", id, "err", err)
				}
			}

			session := m.newSession()
			if err := m.store.SaveSession(ctx, session); err != nil {
				m.logger.Error("failed to save session", "err", err)
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to create session"})
			}
			m.logger.Debug("session created", "id", session.ID)

			value, err := m.codec.Encode(m.opts.CookieName, session.ID)
			if err != nil {
				m.logger.Error("failed to encode session cookie", "err", err)
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to create session"})
			}
			c.SetCookie(&http.Cookie{
				Name:     m.opts.CookieName,
				Value:    value,
				Path:     session.Cookie.Path,
				MaxAge:   int(m.opts.MaxAge.Seconds()),
				Expires:  session.ExpiresAt,
				HttpOnly: true,
				Secure:   m.opts.Secure,
			})
			c.Set(sessionContextKey, session.ID)
			return next(c)
		}
	}
}

func (m *SessionManager) newSession() *models.Session {
	return &models.Session{
		ID:        uuid.New().String(),
		ExpiresAt: m.now().Add(m.opts.MaxAge),
		Cookie: models.SessionCookie{
			OriginalMaxAge: m.opts.MaxAge.Milliseconds(),
			HTTPOnly:       true,
			Secure:         m.opts.Secure,
			Path:           "/",
		},
	}
}

func (m *SessionManager) readCookie(c echo.Context) (string, bool) {
	cookie, err := c.Cookie(m.opts.CookieName)
	if err != nil {
		return "", false
	}
	var id string
	if err := m.codec.Decode(m.opts.CookieName, cookie.Value, &id); err != nil {
		return "", false
	}
	return id, id != ""
}

// SessionID returns the session id resolved by SessionManager.Middleware.
func SessionID(c echo.Context) string {
	id, _ := c.Get(sessionContextKey).(string)
	return id
}
