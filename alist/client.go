package alist

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"
	goversion "github.com/hashicorp/go-version"
)

// MinVersion 支持的最低 Alist 版本。更早的版本任务接口格式不同
const MinVersion = "3.29.0"

// Client Alist HTTP API 客户端
type Client struct {
	http *resty.Client
	// 传输任务路径中 uuid 分量的下标
	transferUUIDIndex int
}

// 所有接口统一的响应信封，code != 200 视为失败
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// APIError Alist 返回了非 200 的业务码
type APIError struct {
	Code    int
	Message string
	Op      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alist %s failed: code=%d message=%s", e.Op, e.Code, e.Message)
}

// NewClient 创建 Alist 客户端。token 可以为空，之后通过 Login 获取
func NewClient(baseURL, token string, transferUUIDIndex int) *Client {
	http := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", "Alist-MikananiRss")
	if token != "" {
		http.SetHeader("Authorization", token)
	}
	return &Client{http: http, transferUUIDIndex: transferUUIDIndex}
}

func check(op string, env envelope, err error) error {
	if err != nil {
		return fmt.Errorf("alist %s: %w", op, err)
	}
	if env.Code != 200 {
		return &APIError{Code: env.Code, Message: env.Message, Op: op}
	}
	return nil
}

// Login 使用用户名密码登录并在后续请求中携带返回的 token
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp struct {
		envelope
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	_, err := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(&resp).
		Post("/api/auth/login")
	if err := check("login", resp.envelope, err); err != nil {
		return err
	}
	c.http.SetHeader("Authorization", resp.Data.Token)
	return nil
}

// Version 查询服务端版本，去掉前缀 v
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp struct {
		envelope
		Data struct {
			Version string `json:"version"`
		} `json:"data"`
	}
	_, err := c.http.R().SetContext(ctx).
		SetResult(&resp).
		Get("/api/public/settings")
	if err := check("version", resp.envelope, err); err != nil {
		return "", err
	}
	return strings.TrimPrefix(resp.Data.Version, "v"), nil
}

// CheckVersion 校验服务端版本不低于 MinVersion
func (c *Client) CheckVersion(ctx context.Context) error {
	raw, err := c.Version(ctx)
	if err != nil {
		return err
	}
	got, err := goversion.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("alist returned unparsable version %q: %w", raw, err)
	}
	min := goversion.Must(goversion.NewVersion(MinVersion))
	if got.LessThan(min) {
		return fmt.Errorf("alist version %s is not supported, need at least %s", raw, MinVersion)
	}
	return nil
}

// AddOfflineDownload 提交一批 url 到同一目标目录的离线下载
func (c *Client) AddOfflineDownload(ctx context.Context, path string, urls []string, tool, deletePolicy string) ([]DownloadTask, error) {
	var resp struct {
		envelope
		Data struct {
			Tasks []rawTask `json:"tasks"`
		} `json:"data"`
	}
	_, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{
			"delete_policy": deletePolicy,
			"path":          path,
			"urls":          urls,
			"tool":          tool,
		}).
		SetResult(&resp).
		Post("/api/fs/add_offline_download")
	if err := check("add_offline_download", resp.envelope, err); err != nil {
		return nil, err
	}
	tasks := make([]DownloadTask, 0, len(resp.Data.Tasks))
	for _, raw := range resp.Data.Tasks {
		tasks = append(tasks, newDownloadTask(raw))
	}
	return tasks, nil
}

// ListDir 列出目录下的文件名
func (c *Client) ListDir(ctx context.Context, path string) ([]string, error) {
	var resp struct {
		envelope
		Data struct {
			Content []struct {
				Name string `json:"name"`
			} `json:"content"`
		} `json:"data"`
	}
	_, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{
			"path":     path,
			"password": "",
			"page":     1,
			"per_page": 0,
			"refresh":  true,
		}).
		SetResult(&resp).
		Post("/api/fs/list")
	if err := check("list", resp.envelope, err); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Data.Content))
	for _, item := range resp.Data.Content {
		names = append(names, item.Name)
	}
	return names, nil
}

func (c *Client) taskList(ctx context.Context, kind string) ([]rawTask, error) {
	var all []rawTask
	for _, state := range []string{"undone", "done"} {
		var resp struct {
			envelope
			Data []rawTask `json:"data"`
		}
		_, err := c.http.R().SetContext(ctx).
			SetResult(&resp).
			Get(fmt.Sprintf("/api/admin/task/%s/%s", kind, state))
		if err := check(kind+"/"+state, resp.envelope, err); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)
	}
	return all, nil
}

// DownloadTasks 拉取全部离线下载任务（完成与未完成）
func (c *Client) DownloadTasks(ctx context.Context) ([]DownloadTask, error) {
	raws, err := c.taskList(ctx, "offline_download")
	if err != nil {
		return nil, err
	}
	tasks := make([]DownloadTask, 0, len(raws))
	for _, raw := range raws {
		tasks = append(tasks, newDownloadTask(raw))
	}
	return tasks, nil
}

// TransferTasks 拉取全部转存任务（完成与未完成）
func (c *Client) TransferTasks(ctx context.Context) ([]TransferTask, error) {
	raws, err := c.taskList(ctx, "offline_download_transfer")
	if err != nil {
		return nil, err
	}
	tasks := make([]TransferTask, 0, len(raws))
	for _, raw := range raws {
		tasks = append(tasks, newTransferTask(raw, c.transferUUIDIndex))
	}
	return tasks, nil
}

// CancelDownloadTask 取消一个离线下载任务
func (c *Client) CancelDownloadTask(ctx context.Context, taskID string) error {
	var resp envelope
	_, err := c.http.R().SetContext(ctx).
		SetQueryParam("tid", taskID).
		SetResult(&resp).
		Post("/api/admin/task/offline_download/cancel")
	return check("cancel", resp, err)
}

// Rename 将 path 指向的文件重命名为 name
func (c *Client) Rename(ctx context.Context, path, name string) error {
	var resp envelope
	_, err := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"path": path, "name": name}).
		SetResult(&resp).
		Post("/api/fs/rename")
	return check("rename", resp, err)
}

// Upload 上传本地文件到远端路径
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("alist upload: %w", err)
	}
	defer file.Close()

	var resp envelope
	_, err = c.http.R().SetContext(ctx).
		SetHeader("File-Path", remotePath).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(file).
		SetResult(&resp).
		Put("/api/fs/put")
	return check("upload", resp, err)
}
