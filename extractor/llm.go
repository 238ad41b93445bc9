package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/TwooSix/Alist-MikananiRss-sub000/config"
)

// ChatProvider 面向 chat-completion 接口的最小抽象。
// schema 为空表示 json-object 模式，由调用方自行校验类型
type ChatProvider interface {
	Complete(ctx context.Context, system, user string, schema map[string]any) (string, error)
}

// LLMExtractor 基于大模型的解析器，可选用 TMDB 归一化番剧名
type LLMExtractor struct {
	provider ChatProvider
	tmdb     *TMDBClient
}

func NewLLMExtractor(cfg config.LLMConfig, tmdb *TMDBClient) (*LLMExtractor, error) {
	var provider ChatProvider
	switch cfg.Provider {
	case "openai":
		provider = newOpenAIProvider(cfg)
	case "gemini":
		provider = newGeminiProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
	return &LLMExtractor{provider: provider, tmdb: tmdb}, nil
}

const animeNameSystemPrompt = `你是一个番剧信息提取助手。用户会给你一个番剧名，` +
	`请从中提取出番剧的基础名字和季度，以 JSON 返回：` +
	`{"anime_name": string, "season": int}。没有季度信息时 season 为 1。`

const resourceTitleSystemPrompt = `你是一个番剧资源标题解析助手。用户会给你一个字幕组发布的资源标题，` +
	`请提取出其中的信息，以 JSON 返回：` +
	`{"anime_name": string, "season": int, "episode": int, "quality": string, ` +
	`"fansub": string, "languages": [string], "version": int}。` +
	`quality 只能是 720p/1080p/2160p 之一或空字符串；没有重制标记时 version 为 1；` +
	`小数集数（如 07.5）是特别篇，此时 season 和 episode 都填 0。`

var animeNameSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"anime_name": map[string]any{"type": "string"},
		"season":     map[string]any{"type": "integer"},
	},
	"required":             []string{"anime_name", "season"},
	"additionalProperties": false,
}

var resourceTitleSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"anime_name": map[string]any{"type": "string"},
		"season":     map[string]any{"type": "integer"},
		"episode":    map[string]any{"type": "integer"},
		"quality":    map[string]any{"type": "string"},
		"fansub":     map[string]any{"type": "string"},
		"languages":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"version":    map[string]any{"type": "integer"},
	},
	"required":             []string{"anime_name", "season", "episode", "quality", "fansub", "languages", "version"},
	"additionalProperties": false,
}

// MalformedResponseError 模型返回了无法按目标类型解析的内容。
// 调用方应记录日志并跳过该资源，等待下一轮重试
type MalformedResponseError struct {
	Raw    string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed llm response (%s): %s", e.Reason, e.Raw)
}

func (e *LLMExtractor) AnalyseAnimeName(ctx context.Context, rawName string) (*AnimeNameInfo, error) {
	raw, err := e.provider.Complete(ctx, animeNameSystemPrompt, rawName, animeNameSchema)
	if err != nil {
		return nil, err
	}
	fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	name, err := stringField(fields, raw, "anime_name")
	if err != nil {
		return nil, err
	}
	season, err := intField(fields, raw, "season")
	if err != nil {
		return nil, err
	}
	return &AnimeNameInfo{AnimeName: name, Season: season}, nil
}

func (e *LLMExtractor) AnalyseResourceTitle(ctx context.Context, resourceTitle string) (*ResourceInfo, error) {
	raw, err := e.provider.Complete(ctx, resourceTitleSystemPrompt, resourceTitle, resourceTitleSchema)
	if err != nil {
		return nil, err
	}
	fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	info := &ResourceInfo{}
	if info.AnimeName, err = stringField(fields, raw, "anime_name"); err != nil {
		return nil, err
	}
	if info.Season, err = intField(fields, raw, "season"); err != nil {
		return nil, err
	}
	if info.Episode, err = intField(fields, raw, "episode"); err != nil {
		return nil, err
	}
	if info.Quality, err = stringField(fields, raw, "quality"); err != nil {
		return nil, err
	}
	if info.Fansub, err = stringField(fields, raw, "fansub"); err != nil {
		return nil, err
	}
	if info.Languages, err = stringListField(fields, raw, "languages"); err != nil {
		return nil, err
	}
	if info.Version, err = intField(fields, raw, "version"); err != nil {
		return nil, err
	}
	if info.Version < 1 {
		info.Version = 1
	}

	if e.tmdb != nil && info.AnimeName != "" {
		if name, err := e.canonicalName(ctx, info.AnimeName); err != nil {
			log.Warn().Err(err).Str("anime", info.AnimeName).Msg("tmdb lookup failed, keeping llm name")
		} else if name != "" {
			info.AnimeName = name
		}
	}
	return info, nil
}

// canonicalName 通过 TMDB 归一化番剧名：让模型给出检索词，
// 没有结果时换一个检索词重试，最多 5 次，最后让模型从结果里挑最佳项
func (e *LLMExtractor) canonicalName(ctx context.Context, animeName string) (string, error) {
	var tried []string
	var results []TVResult
	for attempt := 0; attempt < 5; attempt++ {
		query, err := e.searchQuery(ctx, animeName, tried)
		if err != nil {
			return "", err
		}
		tried = append(tried, query)
		results, err = e.tmdb.SearchTV(ctx, query)
		if err != nil {
			return "", err
		}
		if len(results) > 0 {
			break
		}
	}
	if len(results) == 0 {
		return "", fmt.Errorf("no tmdb results for %q after %d queries", animeName, len(tried))
	}
	return e.pickBest(ctx, animeName, results)
}

func (e *LLMExtractor) searchQuery(ctx context.Context, animeName string, tried []string) (string, error) {
	prompt := fmt.Sprintf("为番剧 %q 生成一个 TMDB 检索词，直接返回检索词本身，不要附加其他内容。", animeName)
	if len(tried) > 0 {
		prompt += fmt.Sprintf(" 以下检索词没有命中任何结果，请换一个明显不同的：%s", strings.Join(tried, "、"))
	}
	query, err := e.provider.Complete(ctx, "你是一个检索词生成助手。", prompt, nil)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(query), `"“”`), nil
}

func (e *LLMExtractor) pickBest(ctx context.Context, animeName string, results []TVResult) (string, error) {
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n", i, r.Name)
	}
	prompt := fmt.Sprintf("番剧 %q 在 TMDB 检索到以下候选：\n%s请返回最匹配项的编号，只返回数字。", animeName, sb.String())
	raw, err := e.provider.Complete(ctx, "你是一个番剧匹配助手。", prompt, nil)
	if err != nil {
		return "", err
	}
	var idx int
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &idx); err != nil || idx < 0 || idx >= len(results) {
		// 挑选失败时退回第一个候选
		return results[0].Name, nil
	}
	return results[idx].Name, nil
}

func decodeObject(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	// 部分模型会把 JSON 包在 markdown 代码块里
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	var fields map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &fields); err != nil {
		return nil, &MalformedResponseError{Raw: raw, Reason: err.Error()}
	}
	return fields, nil
}

func stringField(fields map[string]any, raw, key string) (string, error) {
	value, ok := fields[key]
	if !ok {
		return "", &MalformedResponseError{Raw: raw, Reason: "missing field " + key}
	}
	s, ok := value.(string)
	if !ok {
		return "", &MalformedResponseError{Raw: raw, Reason: key + " is not a string"}
	}
	return s, nil
}

func intField(fields map[string]any, raw, key string) (int, error) {
	value, ok := fields[key]
	if !ok {
		return 0, &MalformedResponseError{Raw: raw, Reason: "missing field " + key}
	}
	f, ok := value.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, &MalformedResponseError{Raw: raw, Reason: key + " is not an integer"}
	}
	return int(f), nil
}

func stringListField(fields map[string]any, raw, key string) ([]string, error) {
	value, ok := fields[key]
	if !ok {
		return nil, &MalformedResponseError{Raw: raw, Reason: "missing field " + key}
	}
	items, ok := value.([]any)
	if !ok {
		return nil, &MalformedResponseError{Raw: raw, Reason: key + " is not a list"}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &MalformedResponseError{Raw: raw, Reason: key + " contains a non-string"}
		}
		out = append(out, s)
	}
	return out, nil
}
