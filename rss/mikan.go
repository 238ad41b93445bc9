package rss

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
)

// 每个解析器的主页缓存上限
const homepageCacheSize = 512

// mikanHomepage Mikan 条目主页上能拿到的信息
type mikanHomepage struct {
	animeName string
	fansub    string
}

// mikanParser mikanani.me。种子取 application/x-bittorrent 附件，
// 番剧名与字幕组从条目主页抓取，按主页 URL 记忆化
type mikanParser struct {
	*baseParser
	cache *lru.Cache[string, mikanHomepage]
}

func newMikanParser(base *baseParser) *mikanParser {
	base.enclosure = bittorrentEnclosure
	cache, _ := lru.New[string, mikanHomepage](homepageCacheSize)
	return &mikanParser{baseParser: base, cache: cache}
}

func (p *mikanParser) Enrich(ctx context.Context, entry models.FeedEntry, resource *models.ResourceDescriptor) error {
	if entry.HomepageURL == "" {
		return nil
	}
	page, ok := p.cache.Get(entry.HomepageURL)
	if !ok {
		doc, err := p.fetchDocument(ctx, entry.HomepageURL)
		if err != nil {
			return err
		}
		page.animeName = strings.TrimSpace(doc.Find("p.bangumi-title").First().Text())
		doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := sel.Text()
			if !strings.Contains(text, "字幕组") {
				return true
			}
			if _, after, found := strings.Cut(text, "："); found {
				page.fansub = strings.TrimSpace(after)
			}
			return false
		})
		p.cache.Add(entry.HomepageURL, page)
	}
	if page.animeName != "" {
		resource.AnimeName = page.animeName
	}
	if page.fansub != "" {
		resource.Fansub = page.fansub
	}
	return nil
}
