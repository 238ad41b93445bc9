package rss

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
)

// acgRipParser acg.rip。字幕组是主页上第一个 /team/{id} 链接的文本
type acgRipParser struct {
	*baseParser
	cache *lru.Cache[string, string]
}

func newAcgRipParser(base *baseParser) *acgRipParser {
	cache, _ := lru.New[string, string](homepageCacheSize)
	return &acgRipParser{baseParser: base, cache: cache}
}

func (p *acgRipParser) Enrich(ctx context.Context, entry models.FeedEntry, resource *models.ResourceDescriptor) error {
	if entry.HomepageURL == "" {
		return nil
	}
	fansub, ok := p.cache.Get(entry.HomepageURL)
	if !ok {
		doc, err := p.fetchDocument(ctx, entry.HomepageURL)
		if err != nil {
			return err
		}
		fansub = strings.TrimSpace(doc.Find(`a[href^="/team/"]`).First().Text())
		p.cache.Add(entry.HomepageURL, fansub)
	}
	if fansub != "" {
		resource.Fansub = fansub
	}
	return nil
}
