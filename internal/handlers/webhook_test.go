package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/ytakahashi/session-todo-api/internal/services"
)

type fakeReplier struct {
	replies []string
}

func (f *fakeReplier) ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error) {
	for _, m := range req.Messages {
		if text, ok := m.(*messaging_api.TextMessage); ok {
			f.replies = append(f.replies, text.Text)
		}
	}
	return &messaging_api.ReplyMessageResponse{}, nil
}

func (f *fakeReplier) last() string {
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want command
		ok   bool
	}{
		{"list", command{kind: cmdList}, true},
		{"TODO一覧", command{kind: cmdList}, true},
		{"一覧", command{kind: cmdList}, true},
		{"Help", command{kind: cmdHelp}, true},
		{"ヘルプ", command{kind: cmdHelp}, true},
		{"add Buy milk", command{kind: cmdAdd, title: "Buy milk"}, true},
		{`追加 "買い物"`, command{kind: cmdAdd, title: "買い物"}, true},
		{"todo Buy milk", command{kind: cmdAdd, title: "Buy milk"}, true},
		{"done 2", command{kind: cmdToggle, index: 2}, true},
		{"完了　1", command{kind: cmdToggle, index: 1}, true},
		{"rename 3 Buy oat milk", command{kind: cmdRename, index: 3, title: "Buy oat milk"}, true},
		{"delete 1", command{kind: cmdDelete, index: 1}, true},
		{"TODO削除 4", command{kind: cmdDelete, index: 4}, true},
		{"hello there", command{}, false},
		{"add", command{}, false},
		{"done two", command{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := parseCommand(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("parseCommand(%q) = %+v, %v; want %+v, %v", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func newTestWebhook() (*WebhookHandler, *fakeReplier, *services.TodoService) {
	logger := log.New(io.Discard)
	bot := &fakeReplier{}
	todos := services.NewTodoService(services.NewMemoryStore(), logger)
	return NewWebhookHandler(bot, todos, "channel-secret", logger), bot, todos
}

func TestWebhookHandler_Conversation(t *testing.T) {
	ctx := context.Background()
	h, bot, todos := newTestWebhook()

	steps := []struct {
		text string
		want string
	}{
		{"list", "You have no todos."},
		{"add Buy milk", `✅ Added "Buy milk".`},
		{"add Walk dog", `✅ Added "Walk dog".`},
		{"done 1", `🎉 "Buy milk" is done!`},
		{"rename 1 Buy oat milk", `✏️ Renamed to "Buy oat milk".`},
		{"done 1", `↩️ "Buy oat milk" is open again.`},
		{"done 9", "There is no todo number 9."},
		{"delete 2", "🗑️ Deleted todo number 2."},
		{"list", "📝 Todos (1)\n\n1. ⬜ Buy oat milk"},
	}
	for _, step := range steps {
		if err := h.handleTextMessage(ctx, "token", "U123", step.text); err != nil {
			t.Fatalf("%q: %v", step.text, err)
		}
		if got := bot.last(); got != step.want {
			t.Fatalf("%q replied %q, want %q", step.text, got, step.want)
		}
	}

	items, err := todos.List(ctx, "line:U123")
	if err != nil || len(items) != 1 {
		t.Fatalf("LINE user scope holds %v, %v", items, err)
	}

	before := len(bot.replies)
	if err := h.handleTextMessage(ctx, "token", "U123", "good morning"); err != nil {
		t.Fatal(err)
	}
	if len(bot.replies) != before {
		t.Fatal("replied to unrecognized text")
	}
}

func TestWebhookHandler_RejectsBadSignature(t *testing.T) {
	h, _, _ := newTestWebhook()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"events":[]}`))
	req.Header.Set("X-Line-Signature", "bogus")
	rec := httptest.NewRecorder()

	if err := h.HandleWebhook(echo.New().NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWebhookHandler_SignedTextMessage(t *testing.T) {
	h, bot, _ := newTestWebhook()

	body := `{"destination":"Uxxx","events":[{"type":"message","mode":"active","timestamp":1700000000000,` +
		`"webhookEventId":"01H","deliveryContext":{"isRedelivery":false},"replyToken":"r1",` +
		`"source":{"type":"user","userId":"U999"},"message":{"type":"text","id":"1","quoteToken":"q","text":"add Buy milk"}}]}`
	mac := hmac.New(sha256.New, []byte("channel-secret"))
	mac.Write([]byte(body))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Line-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	rec := httptest.NewRecorder()

	if err := h.HandleWebhook(echo.New().NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := bot.last(); got != `✅ Added "Buy milk".` {
		t.Fatalf("reply = %q", got)
	}
}
