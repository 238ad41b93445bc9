package rss

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"

	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
)

// Parser 针对某一个订阅源的解析器。Entries 只做轻量的 RSS 解析，
// Enrich 在条目通过过滤与去重之后再按需抓取主页补充信息
type Parser interface {
	URL() string
	Entries(ctx context.Context) ([]models.FeedEntry, error)
	Enrich(ctx context.Context, entry models.FeedEntry, resource *models.ResourceDescriptor) error
}

// ForURL 按订阅源的主机名选择解析器
func ForURL(feedURL string) (Parser, error) {
	parsed, err := url.Parse(feedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url %q: %w", feedURL, err)
	}
	host := strings.ToLower(parsed.Hostname())
	base := newBaseParser(feedURL)
	switch {
	case strings.HasSuffix(host, "mikanani.me"):
		return newMikanParser(base), nil
	case strings.HasSuffix(host, "dmhy.org"):
		return newDmhyParser(base), nil
	case strings.HasSuffix(host, "acg.rip"):
		return newAcgRipParser(base), nil
	default:
		return base, nil
	}
}

// baseParser 通用 RSS 解析，也是未知站点的缺省实现
type baseParser struct {
	feedURL string
	feed    *gofeed.Parser
	http    *resty.Client
	// 站点相关的附件选择规则，缺省见 torrentURL
	enclosure func(*gofeed.Item) string
}

func newBaseParser(feedURL string) *baseParser {
	p := &baseParser{
		feedURL: feedURL,
		feed:    gofeed.NewParser(),
		http:    resty.New().SetHeader("User-Agent", "Alist-MikananiRss"),
	}
	p.enclosure = p.torrentURL
	return p
}

func (p *baseParser) URL() string {
	return p.feedURL
}

func (p *baseParser) Entries(ctx context.Context) ([]models.FeedEntry, error) {
	feed, err := p.feed.ParseURLWithContext(p.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", p.feedURL, err)
	}
	entries := make([]models.FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		torrentURL := p.enclosure(item)
		if torrentURL == "" {
			continue
		}
		author := ""
		for _, a := range item.Authors {
			if a != nil && a.Name != "" {
				author = a.Name
				break
			}
		}
		entries = append(entries, models.FeedEntry{
			ResourceTitle: strings.TrimSpace(item.Title),
			TorrentURL:    torrentURL,
			PublishedDate: item.Published,
			HomepageURL:   item.Link,
			Author:        author,
		})
	}
	return entries, nil
}

// torrentURL 缺省规则：magnet、.torrent 或已知视频扩展名的附件
func (p *baseParser) torrentURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.URL, "magnet:") || strings.HasSuffix(enc.URL, ".torrent") {
			return enc.URL
		}
		if parsed, err := url.Parse(enc.URL); err == nil && models.IsVideoFile(parsed.Path) {
			return enc.URL
		}
	}
	return ""
}

// Enrich 缺省解析器不抓取主页
func (p *baseParser) Enrich(context.Context, models.FeedEntry, *models.ResourceDescriptor) error {
	return nil
}

// fetchDocument 抓取主页并交给 goquery
func (p *baseParser) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := p.http.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch homepage %s: %w", pageURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("homepage %s returned status %s", pageURL, resp.Status())
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse homepage %s: %w", pageURL, err)
	}
	return doc, nil
}

// bittorrentEnclosure 取第一个 application/x-bittorrent 附件
func bittorrentEnclosure(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && enc.Type == "application/x-bittorrent" {
			return enc.URL
		}
	}
	return ""
}
