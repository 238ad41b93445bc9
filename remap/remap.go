package remap

import (
	"github.com/TwooSix/Alist-MikananiRss-sub000/config"
	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
)

// Remapper 解析完成后、调度下载前应用的改写规则。命中首条规则即停止
type Remapper struct {
	rules []config.RemapRule
}

func New(rules []config.RemapRule) *Remapper {
	return &Remapper{rules: rules}
}

func matches(from config.RemapFrom, r *models.ResourceDescriptor) bool {
	if from.AnimeName != "" && from.AnimeName != r.AnimeName {
		return false
	}
	if from.Season != nil && *from.Season != r.Season {
		return false
	}
	if from.Fansub != "" && from.Fansub != r.Fansub {
		return false
	}
	return true
}

// Apply 对资源原地应用第一条匹配的规则
func (m *Remapper) Apply(r *models.ResourceDescriptor) {
	for _, rule := range m.rules {
		if !matches(rule.From, r) {
			continue
		}
		if rule.To.AnimeName != "" {
			r.AnimeName = rule.To.AnimeName
		}
		if rule.To.Season != nil {
			r.Season = *rule.To.Season
		}
		r.Episode += rule.To.EpisodeOffset
		return
	}
}
