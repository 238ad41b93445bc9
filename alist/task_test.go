package alist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownloadTaskURLParsing(t *testing.T) {
	raw := rawTask{
		ID:       "tid-1",
		Name:     "download https://mikanani.me/Download/20240101/abc.torrent to (/阿里云盘/Anime/某番剧/Season 1)",
		State:    1,
		Progress: 42.5,
	}
	task := newDownloadTask(raw)

	assert.Equal(t, "https://mikanani.me/Download/20240101/abc.torrent", task.URL)
	assert.Equal(t, StatusRunning, task.Status)
	assert.Equal(t, 42.5, task.Progress)
}

func TestDownloadTaskUnparsableDescription(t *testing.T) {
	task := newDownloadTask(rawTask{ID: "tid-2", Name: "something else"})
	assert.Empty(t, task.URL)
}

func TestTransferTaskParsing(t *testing.T) {
	raw := rawTask{
		ID:    "tid-3",
		Name:  "transfer /temp/c3a1f2/某番剧 - 01.mkv to [/阿里云盘/Anime/某番剧/Season 1]",
		State: 0,
	}

	task := newTransferTask(raw, 1)
	assert.Equal(t, "c3a1f2", task.UUID)
	assert.Equal(t, "某番剧 - 01.mkv", task.FileName)
	assert.Equal(t, StatusPending, task.Status)

	// uuid 分量下标随部署而异
	task = newTransferTask(raw, 0)
	assert.Equal(t, "temp", task.UUID)

	task = newTransferTask(raw, 9)
	assert.Empty(t, task.UUID)
	assert.Equal(t, "某番剧 - 01.mkv", task.FileName)
}

func TestTaskStatusMapping(t *testing.T) {
	tests := []struct {
		state int
		want  TaskStatus
	}{
		{0, StatusPending},
		{1, StatusRunning},
		{2, StatusSucceeded},
		{4, StatusCanceled},
		{7, StatusFailed},
		{9, StatusBeforeRetry},
		{42, StatusUnknown},
		{-3, StatusUnknown},
	}
	for _, tt := range tests {
		raw := rawTask{State: tt.state}
		assert.Equal(t, tt.want, raw.status())
	}
}

func TestTaskStatusIsNormal(t *testing.T) {
	assert.True(t, StatusPending.IsNormal())
	assert.True(t, StatusRunning.IsNormal())
	assert.True(t, StatusWaitingRetry.IsNormal())
	assert.True(t, StatusBeforeRetry.IsNormal())
	assert.False(t, StatusSucceeded.IsNormal())
	assert.False(t, StatusErrored.IsNormal())
	assert.False(t, StatusUnknown.IsNormal())
}
