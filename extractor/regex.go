package extractor

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
)

// RegexExtractor 纯规则解析器，不发起任何网络请求
type RegexExtractor struct{}

func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

var (
	// 第X部分 是分段放送而不是新的一季，去掉后再解析
	partSuffixRe = regexp.MustCompile(`第.{1,4}部分\s*$`)
	seasonRe     = regexp.MustCompile(`(.+?)\s*第(.+?)[季期]`)
	bracketRe    = regexp.MustCompile(`[\[\]【】()（）]`)
	fansubRe     = regexp.MustCompile(`^[\[【]([^\[\]【】]+)[\]】]`)
	qualityRe    = regexp.MustCompile(`(?i)(2160p|1080p|720p)`)
	versionRe    = regexp.MustCompile(`[vV](\d+)`)
	// 去掉集数 token 尾部的 vN 标记，需要后视断言
	episodeVerRe = regexp2.MustCompile(`(?<=\d)[vV]\d+`, 0)
)

// 罗马数字后缀 Ⅰ-Ⅴ 对应第 1-5 季
var romanSeasons = map[rune]int{'Ⅰ': 1, 'Ⅱ': 2, 'Ⅲ': 3, 'Ⅳ': 4, 'Ⅴ': 5}

// AnalyseAnimeName 从番剧名中拆出基础名与季度
func (e *RegexExtractor) AnalyseAnimeName(_ context.Context, rawName string) (*AnimeNameInfo, error) {
	name := strings.TrimSpace(partSuffixRe.ReplaceAllString(rawName, ""))

	if m := seasonRe.FindStringSubmatch(name); m != nil {
		seasonText := strings.TrimSpace(m[2])
		if season, err := strconv.Atoi(seasonText); err == nil {
			return &AnimeNameInfo{AnimeName: strings.TrimSpace(m[1]), Season: season}, nil
		}
		if season, ok := parseChineseNumeral(seasonText); ok {
			return &AnimeNameInfo{AnimeName: strings.TrimSpace(m[1]), Season: season}, nil
		}
	}

	runes := []rune(name)
	if len(runes) > 0 {
		if season, ok := romanSeasons[runes[len(runes)-1]]; ok {
			base := strings.TrimSpace(string(runes[:len(runes)-1]))
			return &AnimeNameInfo{AnimeName: base, Season: season}, nil
		}
	}

	return &AnimeNameInfo{AnimeName: name, Season: 1}, nil
}

// AnalyseResourceTitle 从资源标题恢复全部结构化字段
func (e *RegexExtractor) AnalyseResourceTitle(ctx context.Context, resourceTitle string) (*ResourceInfo, error) {
	info := &ResourceInfo{Season: 1, Version: 1}

	if m := fansubRe.FindStringSubmatch(resourceTitle); m != nil {
		info.Fansub = strings.TrimSpace(m[1])
	}
	if m := qualityRe.FindStringSubmatch(resourceTitle); m != nil {
		info.Quality = strings.ToLower(m[1])
	}
	if m := versionRe.FindStringSubmatch(resourceTitle); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v >= 1 {
			info.Version = v
		}
	}
	info.Languages = detectLanguages(resourceTitle)

	// 集数：去括号、分词、倒序找第一个能按数字解析的 token
	cleaned := bracketRe.ReplaceAllString(resourceTitle, " ")
	tokens := strings.Fields(cleaned)
	episodeIdx := -1
	var episode float64
	for i := len(tokens) - 1; i >= 0; i-- {
		token := tokens[i]
		token = strings.TrimPrefix(token, "第")
		token = strings.TrimSuffix(token, "话")
		token = strings.TrimSuffix(token, "話")
		token = strings.TrimSuffix(token, "集")
		if stripped, err := episodeVerRe.Replace(token, "", -1, -1); err == nil {
			token = stripped
		}
		value, err := strconv.ParseFloat(token, 64)
		if err != nil {
			continue
		}
		episode = value
		episodeIdx = i
		break
	}

	if episodeIdx >= 0 {
		if episode != math.Trunc(episode) {
			// 小数集数是特别篇，交给重命名器按目录内文件数顺延编号
			info.Season = 0
			info.Episode = 0
		} else {
			info.Episode = int(episode)
		}
	}

	// 番剧名：取集数 token 之前、去掉字幕组与各类标记后的部分
	nameTokens := tokens
	if episodeIdx >= 0 {
		nameTokens = tokens[:episodeIdx]
	}
	var parts []string
	for i, token := range nameTokens {
		if i == 0 && info.Fansub != "" && strings.Contains(token, info.Fansub) {
			continue
		}
		if isMarkerToken(token) {
			continue
		}
		parts = append(parts, token)
	}
	rawName := strings.TrimSpace(strings.Join(parts, " "))
	rawName = strings.TrimSuffix(rawName, "-")
	rawName = strings.TrimSpace(rawName)

	if rawName != "" {
		nameInfo, err := e.AnalyseAnimeName(ctx, rawName)
		if err == nil {
			info.AnimeName = nameInfo.AnimeName
			if info.Season != 0 {
				info.Season = nameInfo.Season
			}
		}
	}

	return info, nil
}

var markerRe = regexp.MustCompile(`(?i)^(2160p|1080p|720p|4k|x26[45]|hevc|avc|aac|flac|opus|web-?dl|web-?rip|bdrip|baha|crunchyroll|mp4|mkv|v\d+|简体|繁体|简中|繁中|简日|繁日|简繁|chs|cht|gb|big5|日语|内嵌|内封|外挂|招募.*|-)$`)

func isMarkerToken(token string) bool {
	return markerRe.MatchString(token)
}

func detectLanguages(title string) []string {
	var langs []string
	if regexp.MustCompile(`(?i)(简体|简中|简日|简繁|CHS|GB)`).MatchString(title) {
		langs = append(langs, models.LanguageSimplified)
	}
	if regexp.MustCompile(`(?i)(繁体|繁中|繁日|简繁|CHT|BIG5)`).MatchString(title) {
		langs = append(langs, models.LanguageTraditional)
	}
	if regexp.MustCompile(`(简日|繁日|日语|日語)`).MatchString(title) {
		langs = append(langs, models.LanguageJapanese)
	}
	return langs
}
