package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TwooSix/Alist-MikananiRss-sub000/rss"
)

func newTestBot(t *testing.T, chatID int64, commands chan rss.CheckCommand) (*Bot, *[]string) {
	t.Helper()
	var sent []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		sent = append(sent, body["text"].(string))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	t.Cleanup(server.Close)
	return &Bot{
		http:     resty.New().SetBaseURL(server.URL),
		token:    "test-token",
		chatID:   chatID,
		commands: commands,
	}, &sent
}

func checkUpdate(t *testing.T, chatID int64, text string) telegramUpdate {
	t.Helper()
	raw := fmt.Sprintf(`{"update_id":1,"message":{"text":%q,"chat":{"id":%d}}}`, text, chatID)
	var u telegramUpdate
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	return u
}

func TestBotCheckCommand(t *testing.T) {
	commands := make(chan rss.CheckCommand, 1)
	bot, sent := newTestBot(t, 42, commands)

	// 轮询器侧：收命令并回复派发数
	go func() {
		cmd := <-commands
		assert.Equal(t, "https://mikanani.me/RSS/MyBangumi", cmd.RSSURL)
		cmd.Reply <- 3
	}()

	bot.handle(context.Background(), checkUpdate(t, 42, "/check https://mikanani.me/RSS/MyBangumi"))
	require.Len(t, *sent, 1)
	assert.Equal(t, "检查完成，新增 3 个资源", (*sent)[0])
}

func TestBotInvalidFeedReply(t *testing.T) {
	commands := make(chan rss.CheckCommand, 1)
	bot, sent := newTestBot(t, 42, commands)

	go func() {
		cmd := <-commands
		cmd.Reply <- -1
	}()

	bot.handle(context.Background(), checkUpdate(t, 42, "/check ://bad"))
	require.Len(t, *sent, 1)
	assert.Equal(t, "订阅源地址无效", (*sent)[0])
}

func TestBotIgnoresOtherInput(t *testing.T) {
	commands := make(chan rss.CheckCommand, 1)
	bot, sent := newTestBot(t, 42, commands)

	bot.handle(context.Background(), checkUpdate(t, 42, "你好"))
	bot.handle(context.Background(), checkUpdate(t, 42, "/check"))
	// 来自其他会话的消息直接忽略
	bot.handle(context.Background(), checkUpdate(t, 7, "/check https://mikanani.me/RSS/MyBangumi"))

	assert.Empty(t, commands)
	assert.Empty(t, *sent)
}
