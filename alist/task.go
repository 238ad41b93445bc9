package alist

import (
	"regexp"
	"strings"
)

// TaskStatus 离线下载/传输任务状态，与 Alist 的 state 整数一一对应
type TaskStatus int

const (
	StatusPending TaskStatus = iota
	StatusRunning
	StatusSucceeded
	StatusCanceling
	StatusCanceled
	StatusErrored
	StatusFailing
	StatusFailed
	StatusWaitingRetry
	StatusBeforeRetry
	StatusUnknown TaskStatus = -1
)

var statusNames = map[TaskStatus]string{
	StatusPending:      "Pending",
	StatusRunning:      "Running",
	StatusSucceeded:    "Succeeded",
	StatusCanceling:    "Canceling",
	StatusCanceled:     "Canceled",
	StatusErrored:      "Errored",
	StatusFailing:      "Failing",
	StatusFailed:       "Failed",
	StatusWaitingRetry: "WaitingRetry",
	StatusBeforeRetry:  "BeforeRetry",
}

func (s TaskStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsNormal 任务仍在正常推进中，尚未到达终态
func (s TaskStatus) IsNormal() bool {
	switch s {
	case StatusPending, StatusRunning, StatusWaitingRetry, StatusBeforeRetry:
		return true
	}
	return false
}

// rawTask Alist 任务列表接口返回的原始对象
type rawTask struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	State    int     `json:"state"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error"`
}

func (t *rawTask) status() TaskStatus {
	if t.State < int(StatusPending) || t.State > int(StatusBeforeRetry) {
		return StatusUnknown
	}
	return TaskStatus(t.State)
}

// DownloadTask 一个离线下载任务。URL 从描述中解析，
// 是任务与来源资源之间唯一的绑定键
type DownloadTask struct {
	ID          string
	Description string
	Status      TaskStatus
	Progress    float64
	Error       string
	URL         string
}

// TransferTask 下载完成后的转存任务。UUID 与 FileName 从描述中的
// 路径解析得到，uuid 所在的分量下标随部署而异
type TransferTask struct {
	ID          string
	Description string
	Status      TaskStatus
	Progress    float64
	Error       string
	UUID        string
	FileName    string
}

var (
	downloadDescRe = regexp.MustCompile(`download\s+(.+?)\s+to`)
	transferDescRe = regexp.MustCompile(`transfer (.+?) to \[`)
)

func newDownloadTask(raw rawTask) DownloadTask {
	task := DownloadTask{
		ID:          raw.ID,
		Description: raw.Name,
		Status:      raw.status(),
		Progress:    raw.Progress,
		Error:       raw.Error,
	}
	if m := downloadDescRe.FindStringSubmatch(raw.Name); m != nil {
		task.URL = m[1]
	}
	return task
}

func newTransferTask(raw rawTask, uuidIndex int) TransferTask {
	task := TransferTask{
		ID:          raw.ID,
		Description: raw.Name,
		Status:      raw.status(),
		Progress:    raw.Progress,
		Error:       raw.Error,
	}
	if m := transferDescRe.FindStringSubmatch(raw.Name); m != nil {
		parts := strings.Split(strings.Trim(m[1], "/"), "/")
		if len(parts) > 0 {
			task.FileName = parts[len(parts)-1]
		}
		if uuidIndex >= 0 && uuidIndex < len(parts) {
			task.UUID = parts[uuidIndex]
		}
	}
	return task
}
