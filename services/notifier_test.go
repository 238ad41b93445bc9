package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
)

type recordingTransport struct {
	mu       sync.Mutex
	name     string
	titles   []string
	contents []string
}

func (t *recordingTransport) Name() string { return t.name }

func (t *recordingTransport) Send(_ context.Context, title, content string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.titles = append(t.titles, title)
	t.contents = append(t.contents, content)
	return nil
}

type failingTransport struct{}

func (t *failingTransport) Name() string { return "failing" }

func (t *failingTransport) Send(context.Context, string, string) error {
	return errors.New("unreachable")
}

func resource(name, title string) *models.ResourceDescriptor {
	return &models.ResourceDescriptor{AnimeName: name, ResourceTitle: title}
}

func TestBuildMessageGroupsByName(t *testing.T) {
	title, content := buildMessage([]*models.ResourceDescriptor{
		resource("怪兽8号", "[组] 怪兽8号 [05]"),
		resource("芙莉莲", "[组] 芙莉莲 [20]"),
		resource("怪兽8号", "[组] 怪兽8号 [06]"),
	})
	assert.Equal(t, "你订阅的番剧 [怪兽8号], [芙莉莲] 更新啦：", title)
	assert.Contains(t, content, "怪兽8号:\n  [组] 怪兽8号 [05]\n  [组] 怪兽8号 [06]\n")
	assert.Contains(t, content, "芙莉莲:\n  [组] 芙莉莲 [20]\n")
}

func TestBuildMessageUnknownName(t *testing.T) {
	title, _ := buildMessage([]*models.ResourceDescriptor{resource("", "无名资源")})
	assert.Equal(t, "你订阅的番剧 [未知番剧] 更新啦：", title)
}

func TestDrainSendsMergedMessage(t *testing.T) {
	transport := &recordingTransport{name: "rec"}
	n := NewNotifier([]Transport{transport}, time.Minute)

	n.Enqueue(resource("怪兽8号", "[组] 怪兽8号 [05]"))
	n.Enqueue(resource("怪兽8号", "[组] 怪兽8号 [06]"))
	n.Drain(context.Background())

	require.Len(t, transport.titles, 1)
	assert.Equal(t, "你订阅的番剧 [怪兽8号] 更新啦：", transport.titles[0])

	// 队列已清空，再次 Drain 不应重复发送
	n.Drain(context.Background())
	assert.Len(t, transport.titles, 1)
}

func TestDrainTransportFailureIsolation(t *testing.T) {
	rec := &recordingTransport{name: "rec"}
	n := NewNotifier([]Transport{&failingTransport{}, rec}, time.Minute)
	n.Enqueue(resource("怪兽8号", "[组] 怪兽8号 [05]"))

	// 截断失败渠道的退避等待
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	n.Drain(ctx)

	require.Len(t, rec.titles, 1)
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	n := NewNotifier(nil, time.Minute)
	for i := 0; i < notifyQueueSize+10; i++ {
		n.Enqueue(resource("某番剧", "条目"))
	}
	assert.Len(t, n.queue, notifyQueueSize)
}
