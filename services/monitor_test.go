package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TwooSix/Alist-MikananiRss-sub000/alist"
	"github.com/TwooSix/Alist-MikananiRss-sub000/config"
	"github.com/TwooSix/Alist-MikananiRss-sub000/database"
	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
)

// fakeAlist 模拟下载与转存全流程需要的 Alist 接口
type fakeAlist struct {
	mu sync.Mutex
	// 离线下载任务 d1 的 state
	downloadState int
	// 转存任务 t1 首次出现为 Pending，之后的列表请求返回该 state
	transferLaterState int
	transferListCalls  int
	addBodies          []map[string]any
	renameBodies       []map[string]string

	server *httptest.Server
}

func newFakeAlist(t *testing.T, downloadState, transferLaterState int) *fakeAlist {
	t.Helper()
	f := &fakeAlist{downloadState: downloadState, transferLaterState: transferLaterState}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/fs/add_offline_download", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.addBodies = append(f.addBodies, body)
		f.mu.Unlock()
		var tasks []map[string]any
		for _, u := range body["urls"].([]any) {
			tasks = append(tasks, map[string]any{
				"id":    "d1",
				"name":  "download " + u.(string) + " to (" + body["path"].(string) + ")",
				"state": 0,
			})
		}
		writeEnvelope(w, map[string]any{"tasks": tasks})
	})
	mux.HandleFunc("/api/admin/task/offline_download/undone", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []any{})
	})
	mux.HandleFunc("/api/admin/task/offline_download/done", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		state := f.downloadState
		f.mu.Unlock()
		writeEnvelope(w, []map[string]any{{
			"id":       "d1",
			"name":     "download https://t/05.torrent to (/Anime/怪兽8号/Season 1)",
			"state":    state,
			"progress": 100,
		}})
	})
	mux.HandleFunc("/api/admin/task/offline_download_transfer/undone", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.transferListCalls++
		state := 0
		if f.transferListCalls > 1 {
			state = f.transferLaterState
		}
		f.mu.Unlock()
		writeEnvelope(w, []map[string]any{{
			"id":       "t1",
			"name":     "transfer aria2/0c72dca5-uuid/怪兽8号 - 05.mkv to [/aliyun](/Anime/怪兽8号/Season 1)",
			"state":    state,
			"progress": 100,
		}})
	})
	mux.HandleFunc("/api/admin/task/offline_download_transfer/done", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []any{})
	})
	mux.HandleFunc("/api/fs/rename", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.renameBodies = append(f.renameBodies, body)
		f.mu.Unlock()
		writeEnvelope(w, nil)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

type fixture struct {
	fake     *fakeAlist
	db       *database.Database
	manager  *DownloadManager
	notifier *Notifier
	rec      *recordingTransport
}

func newFixture(t *testing.T, downloadState, transferLaterState int) *fixture {
	t.Helper()
	fake := newFakeAlist(t, downloadState, transferLaterState)
	client := alist.NewClient(fake.server.URL, "tok", 1)

	db, err := database.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rec := &recordingTransport{name: "rec"}
	notifier := NewNotifier([]Transport{rec}, time.Minute)
	renamer := NewRenamer(client, defaultTemplate)
	monitor := NewTaskMonitor(client, db, renamer, notifier, NewUUIDSet())
	manager := NewDownloadManager(client, db, config.AlistConfig{
		DownloadPath: "/Anime",
		Downloader:   "aria2",
		DeletePolicy: "delete_on_upload_succeed",
	}, monitor)
	return &fixture{fake: fake, db: db, manager: manager, notifier: notifier, rec: rec}
}

func kaijuResource() *models.ResourceDescriptor {
	return &models.ResourceDescriptor{
		ResourceTitle: "[桜都字幕组] 怪兽8号 [05][1080p][简体内嵌]",
		TorrentURL:    "https://t/05.torrent",
		AnimeName:     "怪兽8号",
		Season:        1,
		Episode:       5,
		Version:       1,
	}
}

func TestDownloadToRenameHappyPath(t *testing.T) {
	// 下载已成功，转存先 Pending 后 Succeeded
	fx := newFixture(t, int(alist.StatusSucceeded), int(alist.StatusSucceeded))

	fx.manager.AddDownloadTasks(context.Background(), []*models.ResourceDescriptor{kaijuResource()})
	fx.manager.Wait()

	// 提交的批次落在按 番剧名/Season 组织的目录
	require.Len(t, fx.fake.addBodies, 1)
	assert.Equal(t, "/Anime/怪兽8号/Season 1", fx.fake.addBodies[0]["path"])
	assert.Equal(t, "aria2", fx.fake.addBodies[0]["tool"])

	// 成功路径保留目录记录
	exists, err := fx.db.Exists("[桜都字幕组] 怪兽8号 [05][1080p][简体内嵌]")
	require.NoError(t, err)
	assert.True(t, exists)

	// 转存出的文件被重命名成规范形式
	require.Len(t, fx.fake.renameBodies, 1)
	assert.Equal(t, "/Anime/怪兽8号/Season 1/怪兽8号 - 05.mkv", fx.fake.renameBodies[0]["path"])
	assert.Equal(t, "怪兽8号 S01E05.mkv", fx.fake.renameBodies[0]["name"])

	// 成功通知入队
	fx.notifier.Drain(context.Background())
	require.Len(t, fx.rec.titles, 1)
	assert.Equal(t, "你订阅的番剧 [怪兽8号] 更新啦：", fx.rec.titles[0])
}

func TestDownloadFailurePurgesCatalog(t *testing.T) {
	fx := newFixture(t, int(alist.StatusErrored), int(alist.StatusSucceeded))

	fx.manager.AddDownloadTasks(context.Background(), []*models.ResourceDescriptor{kaijuResource()})
	fx.manager.Wait()

	// 失败路径删除目录记录，让下一轮轮询重新发现该资源
	exists, err := fx.db.Exists("[桜都字幕组] 怪兽8号 [05][1080p][简体内嵌]")
	require.NoError(t, err)
	assert.False(t, exists)

	// 没有进入转存与重命名阶段
	assert.Empty(t, fx.fake.renameBodies)
	fx.notifier.Drain(context.Background())
	assert.Empty(t, fx.rec.titles)
}

func TestTransferFailurePurgesCatalog(t *testing.T) {
	fx := newFixture(t, int(alist.StatusSucceeded), int(alist.StatusFailed))

	fx.manager.AddDownloadTasks(context.Background(), []*models.ResourceDescriptor{kaijuResource()})
	fx.manager.Wait()

	exists, err := fx.db.Exists("[桜都字幕组] 怪兽8号 [05][1080p][简体内嵌]")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, fx.fake.renameBodies)
}

func TestUUIDSetTryAdd(t *testing.T) {
	s := NewUUIDSet()
	assert.True(t, s.TryAdd("u1"))
	assert.False(t, s.TryAdd("u1"))
	assert.True(t, s.TryAdd("u2"))
}

func TestFindTransferTaskConditions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/task/offline_download_transfer/undone", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []map[string]any{
			// uuid 已被其他资源占用
			{"id": "t1", "name": "transfer aria2/claimed-uuid/怪兽8号 - 05.mkv to [/aliyun](/x)", "state": 0},
			// 非视频文件
			{"id": "t2", "name": "transfer aria2/uuid-b/怪兽8号.txt to [/aliyun](/x)", "state": 0},
			// 描述不含番剧名
			{"id": "t3", "name": "transfer aria2/uuid-c/别的番剧 - 01.mkv to [/aliyun](/x)", "state": 0},
			// 全部条件满足
			{"id": "t4", "name": "transfer aria2/uuid-d/怪兽8号 - 05.mkv to [/aliyun](/x)", "state": 1},
		})
	})
	mux.HandleFunc("/api/admin/task/offline_download_transfer/done", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []any{})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	uuids := NewUUIDSet()
	require.True(t, uuids.TryAdd("claimed-uuid"))
	m := NewTaskMonitor(alist.NewClient(server.URL, "tok", 1), nil, nil, nil, uuids)

	task, err := m.findTransferTask(context.Background(), &AnimeDownloadTaskInfo{
		Resource: kaijuResource(),
	})
	require.NoError(t, err)
	assert.Equal(t, "t4", task.ID)
	assert.Equal(t, "uuid-d", task.UUID)
	assert.Equal(t, "怪兽8号 - 05.mkv", task.FileName)
}

func TestStalledDownloadCancelledAndPurged(t *testing.T) {
	var mu sync.Mutex
	var cancelled []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/task/offline_download/undone", func(w http.ResponseWriter, r *http.Request) {
		// 始终 Running 且进度原地踏步
		writeEnvelope(w, []map[string]any{{
			"id":       "d1",
			"name":     "download https://t/05.torrent to (/Anime/怪兽8号/Season 1)",
			"state":    1,
			"progress": 50,
		}})
	})
	mux.HandleFunc("/api/admin/task/offline_download/done", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []any{})
	})
	mux.HandleFunc("/api/admin/task/offline_download/cancel", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cancelled = append(cancelled, r.URL.Query().Get("tid"))
		mu.Unlock()
		writeEnvelope(w, nil)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	db, err := database.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	resource := kaijuResource()
	require.NoError(t, db.Insert(models.NewRecord(resource)))

	monitor := NewTaskMonitor(alist.NewClient(server.URL, "tok", 1), db, nil, nil, NewUUIDSet())
	monitor.refreshInterval = time.Millisecond
	monitor.stallWindow = 5 * time.Millisecond

	monitor.Run(context.Background(), &AnimeDownloadTaskInfo{
		Resource:     resource,
		DownloadPath: "/Anime/怪兽8号/Season 1",
		DownloadTask: alist.DownloadTask{ID: "d1", Status: alist.StatusRunning, Progress: 50},
	})

	// 卡死的远端任务被取消
	mu.Lock()
	assert.Equal(t, []string{"d1"}, cancelled)
	mu.Unlock()

	// 目录记录被清掉，资源可以被重新发现
	exists, err := db.Exists(resource.ResourceTitle)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTransferDiscoveryTimeoutPurges(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/task/offline_download/undone", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []any{})
	})
	mux.HandleFunc("/api/admin/task/offline_download/done", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []map[string]any{{
			"id":       "d1",
			"name":     "download https://t/05.torrent to (/Anime/怪兽8号/Season 1)",
			"state":    2,
			"progress": 100,
		}})
	})
	// 转存任务始终不出现
	mux.HandleFunc("/api/admin/task/offline_download_transfer/undone", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []any{})
	})
	mux.HandleFunc("/api/admin/task/offline_download_transfer/done", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []any{})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	db, err := database.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	resource := kaijuResource()
	require.NoError(t, db.Insert(models.NewRecord(resource)))

	monitor := NewTaskMonitor(alist.NewClient(server.URL, "tok", 1), db, nil, nil, NewUUIDSet())
	monitor.transferDeadline = 10 * time.Millisecond
	monitor.transferPollInterval = time.Millisecond

	monitor.Run(context.Background(), &AnimeDownloadTaskInfo{
		Resource:     resource,
		DownloadPath: "/Anime/怪兽8号/Season 1",
		DownloadTask: alist.DownloadTask{ID: "d1", Status: alist.StatusPending},
	})

	exists, err := db.Exists(resource.ResourceTitle)
	require.NoError(t, err)
	assert.False(t, exists)
}
