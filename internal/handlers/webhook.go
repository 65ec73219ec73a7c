package handlers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/ytakahashi/session-todo-api/internal/services"
)

// lineSessionPrefix keeps LINE scopes apart from cookie sessions.
const lineSessionPrefix = "line:"

type replier interface {
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
}

// WebhookHandler lets LINE users manage their todos by chat. The LINE user id
// stands in for the session id.
type WebhookHandler struct {
	bot           replier
	todos         *services.TodoService
	channelSecret string
	logger        *log.Logger
}

func NewWebhookHandler(bot replier, todos *services.TodoService, channelSecret string, logger *log.Logger) *WebhookHandler {
	return &WebhookHandler{
		bot:           bot,
		todos:         todos,
		channelSecret: channelSecret,
		logger:        logger.WithPrefix("line"),
	}
}

func getUserID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}

func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request())
	if err != nil {
		if err == webhook.ErrInvalidSignature {
			h.logger.Warn("invalid signature")
			return c.NoContent(http.StatusBadRequest)
		}
		h.logger.Error("parse request", "err", err)
		return c.NoContent(http.StatusInternalServerError)
	}

	ctx := c.Request().Context()
	for _, event := range cb.Events {
		e, ok := event.(webhook.MessageEvent)
		if !ok {
			continue
		}
		message, ok := e.Message.(webhook.TextMessageContent)
		if !ok {
			continue
		}
		userID := getUserID(e.Source)
		if userID == "" {
			continue
		}
		if err := h.handleTextMessage(ctx, e.ReplyToken, userID, message.Text); err != nil {
			h.logger.Error("handle text message", "user", userID, "err", err)
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type commandKind int

const (
	cmdList commandKind = iota + 1
	cmdAdd
	cmdToggle
	cmdRename
	cmdDelete
	cmdHelp
)

type command struct {
	kind  commandKind
	index int
	title string
}

var (
	listPattern   = regexp.MustCompile(`(?i)^(?:todo[\s　]*)?(?:list|一覧)$`)
	helpPattern   = regexp.MustCompile(`(?i)^(?:help|ヘルプ)$`)
	addPattern    = regexp.MustCompile(`(?i)^(?:(?:todo[\s　]*)?(?:add|追加)|todo)[\s　]+["“]?(.+?)["”]?$`)
	togglePattern = regexp.MustCompile(`(?i)^(?:done|完了)[\s　]+(\d+)$`)
	renamePattern = regexp.MustCompile(`(?i)^(?:rename|変更)[\s　]+(\d+)[\s　]+["“]?(.+?)["”]?$`)
	deletePattern = regexp.MustCompile(`(?i)^(?:todo[\s　]*)?(?:delete|削除)[\s　]+(\d+)$`)
)

// parseCommand recognizes a chat message. Unknown text yields false.
func parseCommand(text string) (command, bool) {
	text = strings.TrimSpace(text)

	switch {
	case listPattern.MatchString(text):
		return command{kind: cmdList}, true
	case helpPattern.MatchString(text):
		return command{kind: cmdHelp}, true
	}

	if m := togglePattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return command{kind: cmdToggle, index: n}, true
	}
	if m := renamePattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return command{kind: cmdRename, index: n, title: strings.TrimSpace(m[2])}, true
	}
	if m := deletePattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return command{kind: cmdDelete, index: n}, true
	}
	if m := addPattern.FindStringSubmatch(text); m != nil {
		return command{kind: cmdAdd, title: strings.TrimSpace(m[1])}, true
	}

	return command{}, false
}

func (h *WebhookHandler) handleTextMessage(ctx context.Context, replyToken, userID, text string) error {
	cmd, ok := parseCommand(text)
	if !ok {
		return nil
	}
	sessionID := lineSessionPrefix + userID

	switch cmd.kind {
	case cmdList:
		return h.showTodoList(ctx, replyToken, sessionID)
	case cmdAdd:
		todo, err := h.todos.Add(ctx, sessionID, cmd.title)
		if err != nil {
			return h.replyMessage(replyToken, "Could not add the todo: "+err.Error())
		}
		return h.replyMessage(replyToken, fmt.Sprintf("✅ Added \"%s\".", todo.Title))
	case cmdToggle:
		return h.updateNth(ctx, replyToken, sessionID, cmd.index, nil)
	case cmdRename:
		title := cmd.title
		return h.updateNth(ctx, replyToken, sessionID, cmd.index, &title)
	case cmdDelete:
		return h.deleteNth(ctx, replyToken, sessionID, cmd.index)
	default:
		return h.showHelp(replyToken)
	}
}

func (h *WebhookHandler) showTodoList(ctx context.Context, replyToken, sessionID string) error {
	todos, err := h.todos.List(ctx, sessionID)
	if err != nil {
		return h.replyMessage(replyToken, "Could not load your todos.")
	}

	if len(todos) == 0 {
		return h.replyMessage(replyToken, "You have no todos.")
	}

	var todoItems []string
	for i, todo := range todos {
		mark := "⬜"
		if todo.Completed {
			mark = "✅"
		}
		todoItems = append(todoItems, fmt.Sprintf("%d. %s %s", i+1, mark, todo.Title))
	}

	return h.replyMessage(replyToken, fmt.Sprintf("📝 Todos (%d)\n\n%s", len(todos), strings.Join(todoItems, "\n")))
}

// nth resolves a 1-based position in the current list to a todo id.
func (h *WebhookHandler) nth(ctx context.Context, sessionID string, n int) (string, error) {
	todos, err := h.todos.List(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if n < 1 || n > len(todos) {
		return "", nil
	}
	return todos[n-1].ID, nil
}

func (h *WebhookHandler) updateNth(ctx context.Context, replyToken, sessionID string, n int, title *string) error {
	id, err := h.nth(ctx, sessionID, n)
	if err != nil {
		return h.replyMessage(replyToken, "Could not load your todos.")
	}
	if id == "" {
		return h.replyMessage(replyToken, fmt.Sprintf("There is no todo number %d.", n))
	}

	todo, err := h.todos.Update(ctx, sessionID, id, title)
	if err != nil {
		return h.replyMessage(replyToken, "Could not update the todo: "+err.Error())
	}

	if title != nil {
		return h.replyMessage(replyToken, fmt.Sprintf("✏️ Renamed to \"%s\".", todo.Title))
	}
	if todo.Completed {
		return h.replyMessage(replyToken, fmt.Sprintf("🎉 \"%s\" is done!", todo.Title))
	}
	return h.replyMessage(replyToken, fmt.Sprintf("↩️ \"%s\" is open again.", todo.Title))
}

func (h *WebhookHandler) deleteNth(ctx context.Context, replyToken, sessionID string, n int) error {
	id, err := h.nth(ctx, sessionID, n)
	if err != nil {
		return h.replyMessage(replyToken, "Could not load your todos.")
	}
	if id == "" {
		return h.replyMessage(replyToken, fmt.Sprintf("There is no todo number %d.", n))
	}

	if _, err := h.todos.Delete(ctx, sessionID, id); err != nil {
		return h.replyMessage(replyToken, "Could not delete the todo: "+err.Error())
	}
	return h.replyMessage(replyToken, fmt.Sprintf("🗑️ Deleted todo number %d.", n))
}

func (h *WebhookHandler) showHelp(replyToken string) error {
	helpText := `📝 Todo bot

🆕 Add: add <title> / 追加 <title>
📋 List: list / 一覧
✅ Toggle done: done <n> / 完了 <n>
✏️ Rename: rename <n> <title>
🗑️ Delete: delete <n> / 削除 <n>
❓ Help: help / ヘルプ

<n> is the number shown in the list.`

	return h.replyMessage(replyToken, helpText)
}

func (h *WebhookHandler) replyMessage(replyToken, text string) error {
	message := &messaging_api.TextMessage{
		Text: text,
	}

	_, err := h.bot.ReplyMessage(
		&messaging_api.ReplyMessageRequest{
			ReplyToken: replyToken,
			Messages:   []messaging_api.MessageInterface{message},
		},
	)

	if err != nil {
		h.logger.Error("failed to send reply message", "err", err)
	}

	return err
}
