package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/TwooSix/Alist-MikananiRss-sub000/config"
	"github.com/TwooSix/Alist-MikananiRss-sub000/rss"
)

// Bot 可选的命令助手。与轮询器之间只有一条单向命令通道，
// 结果通过回复通道返回，避免双向耦合
type Bot struct {
	http     *resty.Client
	token    string
	chatID   int64
	commands chan<- rss.CheckCommand
	offset   int64
}

func NewBot(cfg config.BotConfig, commands chan<- rss.CheckCommand) *Bot {
	return &Bot{
		http:     resty.New().SetBaseURL("https://api.telegram.org"),
		token:    cfg.Token,
		chatID:   cfg.ChatID,
		commands: commands,
	}
}

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Run 长轮询 Telegram 更新，直到 ctx 取消
func (b *Bot) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := b.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("bot poll failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, update := range updates {
			b.offset = update.UpdateID + 1
			b.handle(ctx, update)
		}
	}
}

func (b *Bot) getUpdates(ctx context.Context) ([]telegramUpdate, error) {
	var resp struct {
		OK     bool             `json:"ok"`
		Result []telegramUpdate `json:"result"`
	}
	_, err := b.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"offset":  fmt.Sprintf("%d", b.offset),
			"timeout": "30",
		}).
		SetResult(&resp).
		Get(fmt.Sprintf("/bot%s/getUpdates", b.token))
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("telegram getUpdates rejected")
	}
	return resp.Result, nil
}

func (b *Bot) handle(ctx context.Context, update telegramUpdate) {
	if update.Message == nil {
		return
	}
	if b.chatID != 0 && update.Message.Chat.ID != b.chatID {
		return
	}
	fields := strings.Fields(update.Message.Text)
	if len(fields) != 2 || fields[0] != "/check" {
		return
	}

	reply := make(chan int, 1)
	select {
	case b.commands <- rss.CheckCommand{RSSURL: fields[1], Reply: reply}:
	case <-ctx.Done():
		return
	}

	select {
	case count := <-reply:
		if count < 0 {
			b.sendText(ctx, update.Message.Chat.ID, "订阅源地址无效")
		} else {
			b.sendText(ctx, update.Message.Chat.ID, fmt.Sprintf("检查完成，新增 %d 个资源", count))
		}
	case <-time.After(2 * time.Minute):
		b.sendText(ctx, update.Message.Chat.ID, "检查超时")
	case <-ctx.Done():
	}
}

func (b *Bot) sendText(ctx context.Context, chatID int64, text string) {
	_, err := b.http.R().SetContext(ctx).
		SetBody(map[string]any{"chat_id": chatID, "text": text}).
		Post(fmt.Sprintf("/bot%s/sendMessage", b.token))
	if err != nil {
		log.Warn().Err(err).Msg("bot reply failed")
	}
}
