package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/TwooSix/Alist-MikananiRss-sub000/alist"
	"github.com/TwooSix/Alist-MikananiRss-sub000/config"
	"github.com/TwooSix/Alist-MikananiRss-sub000/database"
	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
)

// DownloadManager 把新资源转成 Alist 离线下载任务并为每个任务
// 启动一个独立的监控协程
type DownloadManager struct {
	alist    *alist.Client
	db       *database.Database
	cfg      config.AlistConfig
	monitor  *TaskMonitor
	monitors sync.WaitGroup

	// 提交中的标题。订阅源并发轮询，目录插入又在 Alist 往返之后，
	// 同一标题可能在入库前从多个源同时到达
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewDownloadManager(client *alist.Client, db *database.Database, cfg config.AlistConfig, monitor *TaskMonitor) *DownloadManager {
	return &DownloadManager{
		alist:    client,
		db:       db,
		cfg:      cfg,
		monitor:  monitor,
		inFlight: make(map[string]struct{}),
	}
}

// tryClaim 原子地占用一个标题，占用保持到该资源入库或提交失败
func (m *DownloadManager) tryClaim(title string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inFlight[title]; ok {
		return false
	}
	m.inFlight[title] = struct{}{}
	return true
}

func (m *DownloadManager) release(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, title)
}

// 文件系统里的非法字符统一换成空格
var illegalPathChars = strings.NewReplacer(
	`\`, " ", "/", " ", ":", " ", "*", " ",
	"?", " ", `"`, " ", "<", " ", ">", " ", "|", " ",
)

// SanitizeName 清洗番剧名，使其可以作为目录名
func SanitizeName(name string) string {
	return strings.TrimSpace(illegalPathChars.Replace(name))
}

// downloadPath 计算资源的下载目录。没有番剧名的资源直接落在根目录，
// 第 0 季与其他季一样进 Season 0
func (m *DownloadManager) downloadPath(r *models.ResourceDescriptor) string {
	if r.AnimeName == "" {
		return m.cfg.DownloadPath
	}
	return path.Join(m.cfg.DownloadPath, SanitizeName(r.AnimeName), fmt.Sprintf("Season %d", r.Season))
}

// AddDownloadTasks 按目标目录分批提交离线下载。单个批次出错只影响
// 该批次，不影响其他资源的调度
func (m *DownloadManager) AddDownloadTasks(ctx context.Context, resources []*models.ResourceDescriptor) {
	// 先占用标题再复查目录：占用挡住同一轮里并发到达的重复资源，
	// 目录复查挡住已经走完入库的
	var accepted []*models.ResourceDescriptor
	for _, r := range resources {
		if !m.tryClaim(r.ResourceTitle) {
			log.Debug().Str("title", r.ResourceTitle).Msg("resource already being submitted")
			continue
		}
		exists, err := m.db.Exists(r.ResourceTitle)
		if err != nil {
			log.Error().Err(err).Str("title", r.ResourceTitle).Msg("catalog lookup failed")
			m.release(r.ResourceTitle)
			continue
		}
		if exists {
			m.release(r.ResourceTitle)
			continue
		}
		accepted = append(accepted, r)
	}

	groups := make(map[string][]*models.ResourceDescriptor)
	var order []string
	for _, r := range accepted {
		p := m.downloadPath(r)
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}
		groups[p] = append(groups[p], r)
	}

	for _, downloadPath := range order {
		group := groups[downloadPath]
		urls := make([]string, 0, len(group))
		byURL := make(map[string]*models.ResourceDescriptor, len(group))
		for _, r := range group {
			urls = append(urls, r.TorrentURL)
			byURL[r.TorrentURL] = r
		}

		tasks, err := m.alist.AddOfflineDownload(ctx, downloadPath, urls, m.cfg.Downloader, m.cfg.DeletePolicy)
		if err != nil {
			log.Error().Err(err).Str("path", downloadPath).Msg("failed to add offline download batch")
			for _, r := range group {
				m.release(r.ResourceTitle)
			}
			continue
		}

		for _, task := range tasks {
			resource, ok := byURL[task.URL]
			if !ok {
				log.Warn().Str("url", task.URL).Msg("offline download task does not match any resource")
				continue
			}
			if err := m.db.Insert(models.NewRecord(resource)); err != nil {
				log.Error().Err(err).Str("title", resource.ResourceTitle).Msg("failed to record resource")
				continue
			}
			info := &AnimeDownloadTaskInfo{
				Resource:     resource,
				DownloadPath: downloadPath,
				DownloadTask: task,
			}
			m.monitors.Add(1)
			go func() {
				defer m.monitors.Done()
				m.monitor.Run(ctx, info)
			}()
			log.Info().
				Str("title", resource.ResourceTitle).
				Str("path", downloadPath).
				Str("task", task.ID).
				Msg("offline download submitted")
		}
		// 入库的资源由目录去重接手，未匹配到任务的下一轮重试
		for _, r := range group {
			m.release(r.ResourceTitle)
		}
	}
}

// Wait 等待所有在途监控协程退出，用于停机
func (m *DownloadManager) Wait() {
	m.monitors.Wait()
}
