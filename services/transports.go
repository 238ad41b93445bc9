package services

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/TwooSix/Alist-MikananiRss-sub000/config"
)

// telegramTransport Telegram Bot sendMessage
type telegramTransport struct {
	http   *resty.Client
	token  string
	chatID string
}

func NewTelegramTransport(cfg config.TelegramConfig) Transport {
	return &telegramTransport{
		http:   resty.New().SetBaseURL("https://api.telegram.org"),
		token:  cfg.Token,
		chatID: cfg.ChatID,
	}
}

func (t *telegramTransport) Name() string { return "telegram" }

func (t *telegramTransport) Send(ctx context.Context, _, content string) error {
	var resp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	r, err := t.http.R().SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.chatID,
			"text":       content,
			"parse_mode": "HTML",
		}).
		SetResult(&resp).
		SetError(&resp).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if r.IsError() || !resp.OK {
		return fmt.Errorf("telegram send rejected: %s", resp.Description)
	}
	return nil
}

// pushPlusTransport PushPlus 推送
type pushPlusTransport struct {
	http    *resty.Client
	token   string
	channel string
}

func NewPushPlusTransport(cfg config.PushPlusConfig) Transport {
	return &pushPlusTransport{
		http:    resty.New().SetBaseURL("http://www.pushplus.plus"),
		token:   cfg.Token,
		channel: cfg.Channel,
	}
}

func (t *pushPlusTransport) Name() string { return "pushplus" }

func (t *pushPlusTransport) Send(ctx context.Context, title, content string) error {
	var resp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	r, err := t.http.R().SetContext(ctx).
		SetBody(map[string]string{
			"title":    title,
			"content":  content,
			"channel":  t.channel,
			"template": "html",
		}).
		SetResult(&resp).
		SetError(&resp).
		Post("/send/" + t.token)
	if err != nil {
		return fmt.Errorf("pushplus send: %w", err)
	}
	if r.IsError() || resp.Code != 200 {
		return fmt.Errorf("pushplus send rejected: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// anpushTransport Anpush 推送
type anpushTransport struct {
	http    *resty.Client
	token   string
	channel string
}

func NewAnpushTransport(cfg config.AnpushConfig) Transport {
	return &anpushTransport{
		http:    resty.New().SetBaseURL("https://api.anpush.com"),
		token:   cfg.Token,
		channel: cfg.Channel,
	}
}

func (t *anpushTransport) Name() string { return "anpush" }

func (t *anpushTransport) Send(ctx context.Context, title, content string) error {
	var resp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	r, err := t.http.R().SetContext(ctx).
		SetBody(map[string]string{
			"title":   title,
			"content": content,
			"channel": t.channel,
		}).
		SetResult(&resp).
		SetError(&resp).
		Post("/push/" + t.token)
	if err != nil {
		return fmt.Errorf("anpush send: %w", err)
	}
	if r.IsError() || resp.Code != 200 {
		return fmt.Errorf("anpush send rejected: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}
