package extractor

import "context"

// AnimeNameInfo 番剧名解析结果
type AnimeNameInfo struct {
	AnimeName string `json:"anime_name"`
	Season    int    `json:"season"`
}

// ResourceInfo 资源标题解析结果
type ResourceInfo struct {
	AnimeName string   `json:"anime_name"`
	Season    int      `json:"season"`
	Episode   int      `json:"episode"`
	Quality   string   `json:"quality"`
	Fansub    string   `json:"fansub"`
	Languages []string `json:"languages"`
	Version   int      `json:"version"`
}

// Extractor 从原始标题恢复结构化信息。实现有规则版与 LLM 版两种
type Extractor interface {
	AnalyseAnimeName(ctx context.Context, rawName string) (*AnimeNameInfo, error)
	AnalyseResourceTitle(ctx context.Context, resourceTitle string) (*ResourceInfo, error)
}
