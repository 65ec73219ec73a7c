package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/ytakahashi/session-todo-api/internal/services"
)

type TodoHandler struct {
	todos *services.TodoService
}

func NewTodoHandler(todos *services.TodoService) *TodoHandler {
	return &TodoHandler{
		todos: todos,
	}
}

type todoBody struct {
	Title *string `json:"title"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Register mounts the todo routes on g. Every failure is reported as 500.
func (h *TodoHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Add)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

func (h *TodoHandler) List(c echo.Context) error {
	todos, err := h.todos.List(c.Request().Context(), SessionID(c))
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, todos)
}

func (h *TodoHandler) Add(c echo.Context) error {
	var body todoBody
	if err := c.Bind(&body); err != nil {
		return failure(c, err)
	}

	var title string
	if body.Title != nil {
		title = *body.Title
	}

	todo, err := h.todos.Add(c.Request().Context(), SessionID(c), title)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusCreated, todo)
}

func (h *TodoHandler) Update(c echo.Context) error {
	var body todoBody
	if err := c.Bind(&body); err != nil {
		return failure(c, err)
	}

	todo, err := h.todos.Update(c.Request().Context(), SessionID(c), c.Param("id"), body.Title)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, todo)
}

func (h *TodoHandler) Delete(c echo.Context) error {
	res, err := h.todos.Delete(c.Request().Context(), SessionID(c), c.Param("id"))
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func failure(c echo.Context, err error) error {
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		if s, ok := he.Message.(string); ok {
			msg = s
		}
	}
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: msg})
}
