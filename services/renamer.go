package services

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TwooSix/Alist-MikananiRss-sub000/alist"
	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
)

const (
	renameAttempts   = 3
	renameRetryDelay = 5 * time.Second
)

// Renamer 把转存完成的视频重命名为规范的媒体库形式
type Renamer struct {
	alist    *alist.Client
	template string
}

func NewRenamer(client *alist.Client, template string) *Renamer {
	return &Renamer{alist: client, template: template}
}

// Rename 计算新文件名并请求 Alist 重命名，对瞬时错误固定间隔重试
func (r *Renamer) Rename(ctx context.Context, resource *models.ResourceDescriptor, downloadPath, fileName string) error {
	episode := resource.Episode
	if resource.Season == 0 {
		// 特别篇按到达顺序编号：看目录里已经有几个文件
		n, err := r.specialEpisodeNumber(ctx, downloadPath, fileName)
		if err != nil {
			return err
		}
		episode = n
	}

	ext := strings.TrimPrefix(path.Ext(fileName), ".")
	newName := expandTemplate(r.template, map[string]any{
		"name":     resource.AnimeName,
		"season":   resource.Season,
		"episode":  episode,
		"ext":      ext,
		"fansub":   resource.Fansub,
		"quality":  resource.Quality,
		"language": strings.Join(resource.Languages, "/"),
	})

	filePath := path.Join(downloadPath, fileName)
	var err error
	for attempt := 1; attempt <= renameAttempts; attempt++ {
		if err = r.alist.Rename(ctx, filePath, newName); err == nil {
			log.Info().Str("from", fileName).Str("to", newName).Msg("file renamed")
			return nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Str("file", filePath).Msg("rename attempt failed")
		if attempt < renameAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(renameRetryDelay):
			}
		}
	}
	return fmt.Errorf("rename %s failed after %d attempts: %w", filePath, renameAttempts, err)
}

// specialEpisodeNumber 列出 Season 0 目录并给新文件一个顺延的集数。
// 新文件此刻可能已经出现在目录里，也可能尚未刷新出来，两种情况都
// 要得到同一个编号
func (r *Renamer) specialEpisodeNumber(ctx context.Context, downloadPath, fileName string) (int, error) {
	names, err := r.alist.ListDir(ctx, downloadPath)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", downloadPath, err)
	}
	count := len(names)
	for _, name := range names {
		if name == fileName {
			return count, nil
		}
	}
	return count + 1, nil
}

// templatePlaceholder {name} 或 {episode:02d} 形式的占位符
var templatePlaceholder = regexp.MustCompile(`\{([a-z]+)(?::([^{}]+))?\}`)

// expandTemplate 展开重命名模板。整数字段支持 02d 这样的宽度格式，
// 缺失的字段展开成空串
func expandTemplate(template string, fields map[string]any) string {
	return templatePlaceholder.ReplaceAllStringFunc(template, func(match string) string {
		m := templatePlaceholder.FindStringSubmatch(match)
		value, ok := fields[m[1]]
		if !ok {
			return ""
		}
		if m[2] != "" {
			if n, isInt := value.(int); isInt {
				return fmt.Sprintf("%"+strings.TrimSuffix(m[2], "d")+"d", n)
			}
		}
		return fmt.Sprintf("%v", value)
	})
}
