package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
)

const (
	notifyQueueSize       = 256
	notifyMaxRetries      = 3
	notifyInitialInterval = 5 * time.Second
	notifyMaxInterval     = 30 * time.Second
)

// Transport 一种通知投递渠道
type Transport interface {
	Name() string
	Send(ctx context.Context, title, content string) error
}

// Notifier 成功资源的汇总通知。生产者是各监控协程，消费者是
// 唯一的发送循环，每个周期把队列清空并合并成一条消息
type Notifier struct {
	queue      chan *models.ResourceDescriptor
	transports []Transport
	interval   time.Duration
}

func NewNotifier(transports []Transport, interval time.Duration) *Notifier {
	return &Notifier{
		queue:      make(chan *models.ResourceDescriptor, notifyQueueSize),
		transports: transports,
		interval:   interval,
	}
}

// Enqueue 资源下载成功后入队，等待下一个发送周期
func (n *Notifier) Enqueue(resource *models.ResourceDescriptor) {
	select {
	case n.queue <- resource:
	default:
		log.Warn().Str("title", resource.ResourceTitle).Msg("notification queue full, dropping")
	}
}

// Run 发送循环，直到 ctx 取消。退出前把剩余的通知发完
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			n.Drain(context.Background())
			return
		case <-ticker.C:
			n.Drain(ctx)
		}
	}
}

// Drain 清空队列并发送一条合并消息
func (n *Notifier) Drain(ctx context.Context) {
	var resources []*models.ResourceDescriptor
	for {
		select {
		case r := <-n.queue:
			resources = append(resources, r)
			continue
		default:
		}
		break
	}
	if len(resources) == 0 {
		return
	}

	title, content := buildMessage(resources)
	for _, transport := range n.transports {
		if err := n.send(ctx, transport, title, content); err != nil {
			// 通知失败只记日志，资源保留在目录中
			log.Error().Err(err).Str("transport", transport.Name()).Msg("notification delivery failed")
		}
	}
}

func (n *Notifier) send(ctx context.Context, transport Transport, title, content string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = notifyInitialInterval
	b.MaxInterval = notifyMaxInterval
	operation := func() error {
		return transport.Send(ctx, title, content)
	}
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, notifyMaxRetries), ctx))
}

// buildMessage 按番剧名分组拼一条中文汇总消息
func buildMessage(resources []*models.ResourceDescriptor) (string, string) {
	grouped := make(map[string][]string)
	var names []string
	for _, r := range resources {
		name := r.AnimeName
		if name == "" {
			name = "未知番剧"
		}
		if _, ok := grouped[name]; !ok {
			names = append(names, name)
		}
		grouped[name] = append(grouped[name], r.ResourceTitle)
	}
	sort.Strings(names)

	quoted := make([]string, 0, len(names))
	for _, name := range names {
		quoted = append(quoted, "["+name+"]")
	}
	title := fmt.Sprintf("你订阅的番剧 %s 更新啦：", strings.Join(quoted, ", "))

	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "%s:\n", name)
		for _, t := range grouped[name] {
			fmt.Fprintf(&sb, "  %s\n", t)
		}
	}
	return title, sb.String()
}
