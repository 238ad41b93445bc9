package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/TwooSix/Alist-MikananiRss-sub000/alist"
	"github.com/TwooSix/Alist-MikananiRss-sub000/database"
	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
)

// AnimeDownloadTaskInfo 监控器持有的绑定对象：一个资源、它的下载目录、
// 离线下载任务，以及找到后补上的转存任务
type AnimeDownloadTaskInfo struct {
	Resource     *models.ResourceDescriptor
	DownloadPath string
	DownloadTask alist.DownloadTask
	TransferTask *alist.TransferTask
}

// UUIDSet 进程级的转存任务占用表，保证一个转存任务至多绑定一个资源
type UUIDSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewUUIDSet() *UUIDSet {
	return &UUIDSet{seen: make(map[string]struct{})}
}

// TryAdd 原子地尝试占用 uuid，已被占用时返回 false
func (s *UUIDSet) TryAdd(uuid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[uuid]; ok {
		return false
	}
	s.seen[uuid] = struct{}{}
	return true
}

const (
	// 状态刷新间隔
	defaultRefreshInterval = 10 * time.Second
	// 刷新失败的重试上限（指数退避）
	maxRefreshAttempts = 5
	// Running 状态下进度提升不足 1% 超过该时长判定为卡死
	defaultStallWindow = 300 * time.Second
	stallMinProgress   = 1.0
	// 转存任务出现的等待上限
	defaultTransferDeadline     = 10 * time.Second
	defaultTransferPollInterval = time.Second
)

var (
	errTaskNotFound = errors.New("task disappeared from remote list")
	errStalled      = errors.New("task stalled")
)

// TaskMonitor 驱动单个资源走完 下载 -> 转存 -> 重命名 -> 通知 的全流程。
// 任意一步失败都会把该资源从目录里删掉，让下一轮轮询有机会重来
type TaskMonitor struct {
	alist    *alist.Client
	db       *database.Database
	renamer  *Renamer
	notifier *Notifier
	uuids    *UUIDSet

	refreshInterval      time.Duration
	stallWindow          time.Duration
	transferDeadline     time.Duration
	transferPollInterval time.Duration
}

func NewTaskMonitor(client *alist.Client, db *database.Database, renamer *Renamer, notifier *Notifier, uuids *UUIDSet) *TaskMonitor {
	return &TaskMonitor{
		alist:    client,
		db:       db,
		renamer:  renamer,
		notifier: notifier,
		uuids:    uuids,

		refreshInterval:      defaultRefreshInterval,
		stallWindow:          defaultStallWindow,
		transferDeadline:     defaultTransferDeadline,
		transferPollInterval: defaultTransferPollInterval,
	}
}

// Run 监控协议的入口。目录插入先于本方法被调用；成功路径保留目录记录，
// 失败路径删除
func (m *TaskMonitor) Run(ctx context.Context, info *AnimeDownloadTaskInfo) {
	title := info.Resource.ResourceTitle

	status, err := m.waitDownload(ctx, info)
	if err != nil || status != alist.StatusSucceeded {
		log.Warn().Err(err).Str("title", title).Stringer("status", status).
			Msg("download did not succeed")
		m.fail(title)
		return
	}

	transfer, err := m.findTransferTask(ctx, info)
	if err != nil {
		log.Warn().Err(err).Str("title", title).Msg("no matching transfer task")
		m.fail(title)
		return
	}
	info.TransferTask = transfer

	status, err = m.waitTransfer(ctx, info)
	if err != nil || status != alist.StatusSucceeded {
		log.Warn().Err(err).Str("title", title).Stringer("status", status).
			Msg("transfer did not succeed")
		m.fail(title)
		return
	}

	if err := m.renamer.Rename(ctx, info.Resource, info.DownloadPath, transfer.FileName); err != nil {
		log.Error().Err(err).Str("title", title).Msg("rename failed")
	}
	m.notifier.Enqueue(info.Resource)
	log.Info().Str("title", title).Msg("resource finished")
}

// fail 失败路径：按标题清掉目录记录，使资源可以被重新发现
func (m *TaskMonitor) fail(title string) {
	if err := m.db.DeleteByTitle(title); err != nil {
		log.Error().Err(err).Str("title", title).Msg("failed to purge catalog row")
	}
}

// refreshDownload 拉全量任务列表并按 id 取出本任务，带指数退避重试
func (m *TaskMonitor) refreshDownload(ctx context.Context, taskID string) (alist.DownloadTask, error) {
	var found alist.DownloadTask
	operation := func() error {
		tasks, err := m.alist.DownloadTasks(ctx)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if task.ID == taskID {
				found = task
				return nil
			}
		}
		return errTaskNotFound
	}
	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRefreshAttempts-1), ctx))
	return found, err
}

func (m *TaskMonitor) refreshTransfer(ctx context.Context, taskID string) (alist.TransferTask, error) {
	var found alist.TransferTask
	operation := func() error {
		tasks, err := m.alist.TransferTasks(ctx)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if task.ID == taskID {
				found = task
				return nil
			}
		}
		return errTaskNotFound
	}
	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRefreshAttempts-1), ctx))
	return found, err
}

// waitDownload 等待下载任务到达终态。Running 状态下 300 秒内进度
// 提升不足 1% 触发卡死检测：取消远端任务并按失败处理
func (m *TaskMonitor) waitDownload(ctx context.Context, info *AnimeDownloadTaskInfo) (alist.TaskStatus, error) {
	lastProgress := info.DownloadTask.Progress
	lastMoved := time.Now()

	for {
		task, err := m.refreshDownload(ctx, info.DownloadTask.ID)
		if err != nil {
			return alist.StatusUnknown, err
		}
		info.DownloadTask = task

		if !task.Status.IsNormal() {
			return task.Status, nil
		}

		if task.Status == alist.StatusRunning {
			if task.Progress-lastProgress >= stallMinProgress {
				lastProgress = task.Progress
				lastMoved = time.Now()
			} else if time.Since(lastMoved) >= m.stallWindow {
				if err := m.alist.CancelDownloadTask(ctx, task.ID); err != nil {
					log.Warn().Err(err).Str("task", task.ID).Msg("failed to cancel stalled task")
				}
				return alist.StatusUnknown, fmt.Errorf("%w: no progress for %s", errStalled, m.stallWindow)
			}
		} else {
			// 非 Running 状态不计入卡死窗口
			lastMoved = time.Now()
		}

		select {
		case <-ctx.Done():
			return alist.StatusUnknown, ctx.Err()
		case <-time.After(m.refreshInterval):
		}
	}
}

// waitTransfer 与 waitDownload 相同的协议作用在转存任务上
func (m *TaskMonitor) waitTransfer(ctx context.Context, info *AnimeDownloadTaskInfo) (alist.TaskStatus, error) {
	lastProgress := info.TransferTask.Progress
	lastMoved := time.Now()

	for {
		task, err := m.refreshTransfer(ctx, info.TransferTask.ID)
		if err != nil {
			return alist.StatusUnknown, err
		}
		info.TransferTask = &task

		if !task.Status.IsNormal() {
			return task.Status, nil
		}

		if task.Status == alist.StatusRunning {
			if task.Progress-lastProgress >= stallMinProgress {
				lastProgress = task.Progress
				lastMoved = time.Now()
			} else if time.Since(lastMoved) >= m.stallWindow {
				// Alist 没有转存任务的取消接口，卡死只能就地判失败
				return alist.StatusUnknown, fmt.Errorf("%w: no progress for %s", errStalled, m.stallWindow)
			}
		} else {
			lastMoved = time.Now()
		}

		select {
		case <-ctx.Done():
			return alist.StatusUnknown, ctx.Err()
		case <-time.After(m.refreshInterval):
		}
	}
}

// findTransferTask 下载成功后转存任务会异步出现。在 10 秒窗口内
// 轮询转存列表，接受第一个同时满足以下条件的任务：
// uuid 未被其他资源占用、文件是视频、状态为 Pending/Running、
// 描述里含有该资源的番剧名
func (m *TaskMonitor) findTransferTask(ctx context.Context, info *AnimeDownloadTaskInfo) (*alist.TransferTask, error) {
	deadline := time.Now().Add(m.transferDeadline)
	for {
		tasks, err := m.alist.TransferTasks(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to list transfer tasks")
		}
		for i := range tasks {
			task := tasks[i]
			if task.UUID == "" || !models.IsVideoFile(task.FileName) {
				continue
			}
			if task.Status != alist.StatusPending && task.Status != alist.StatusRunning {
				continue
			}
			if info.Resource.AnimeName != "" &&
				!strings.Contains(task.Description, info.Resource.AnimeName) {
				continue
			}
			if !m.uuids.TryAdd(task.UUID) {
				continue
			}
			return &task, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no transfer task appeared within %s", m.transferDeadline)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.transferPollInterval):
		}
	}
}
