package rss

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
)

// dmhyParser share.dmhy.org。字幕组信息按发布者缓存，
// 查不到也缓存空值，避免对同一发布者反复抓主页
type dmhyParser struct {
	*baseParser
	fansubByAuthor *lru.Cache[string, string]
}

func newDmhyParser(base *baseParser) *dmhyParser {
	cache, _ := lru.New[string, string](homepageCacheSize)
	return &dmhyParser{baseParser: base, fansubByAuthor: cache}
}

func (p *dmhyParser) Enrich(ctx context.Context, entry models.FeedEntry, resource *models.ResourceDescriptor) error {
	if entry.Author == "" || entry.HomepageURL == "" {
		return nil
	}
	fansub, ok := p.fansubByAuthor.Get(entry.Author)
	if !ok {
		doc, err := p.fetchDocument(ctx, entry.HomepageURL)
		if err != nil {
			return err
		}
		doc.Find("p, li").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := sel.Text()
			if !strings.Contains(text, "所屬發佈組") {
				return true
			}
			if link := sel.Find("a").First(); link.Length() > 0 {
				fansub = strings.TrimSpace(link.Text())
			} else if _, after, found := strings.Cut(text, "："); found {
				fansub = strings.TrimSpace(after)
			}
			return false
		})
		// 空结果也缓存，负查询只抓一次
		p.fansubByAuthor.Add(entry.Author, fansub)
	}
	if fansub != "" {
		resource.Fansub = fansub
	}
	return nil
}
