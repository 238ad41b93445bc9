package extractor

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/TwooSix/Alist-MikananiRss-sub000/config"
)

// TVResult TMDB search/tv 的单条结果
type TVResult struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Popularity float64 `json:"popularity"`
}

// TMDBClient 番剧名归一化使用的 TMDB 检索客户端
type TMDBClient struct {
	http   *resty.Client
	apiKey string
}

func NewTMDBClient(cfg config.TMDBConfig) *TMDBClient {
	return &TMDBClient{
		http:   resty.New().SetBaseURL(cfg.BaseURL),
		apiKey: cfg.APIKey,
	}
}

// SearchTV 按名字检索电视番剧，过滤掉 popularity 为 0 的噪声结果
func (c *TMDBClient) SearchTV(ctx context.Context, query string) ([]TVResult, error) {
	var resp struct {
		Results []TVResult `json:"results"`
	}
	r, err := c.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key":  c.apiKey,
			"query":    query,
			"language": "zh-CN",
		}).
		SetResult(&resp).
		Get("/search/tv")
	if err != nil {
		return nil, fmt.Errorf("tmdb search: %w", err)
	}
	if r.IsError() {
		return nil, fmt.Errorf("tmdb search: status %s", r.Status())
	}
	results := make([]TVResult, 0, len(resp.Results))
	for _, result := range resp.Results {
		if result.Popularity > 0 {
			results = append(results, result)
		}
	}
	return results, nil
}
