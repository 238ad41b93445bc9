package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForURLSelection(t *testing.T) {
	cases := []struct {
		url  string
		kind any
	}{
		{"https://mikanani.me/RSS/MyBangumi?token=xxx", &mikanParser{}},
		{"https://share.dmhy.org/topics/rss/rss.xml", &dmhyParser{}},
		{"https://acg.rip/.xml?term=test", &acgRipParser{}},
		{"https://example.com/feed.xml", &baseParser{}},
	}
	for _, tc := range cases {
		p, err := ForURL(tc.url)
		require.NoError(t, err)
		assert.IsType(t, tc.kind, p, tc.url)
		assert.Equal(t, tc.url, p.URL())
	}
}

const mikanFeedXML = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0">
<channel>
  <title>Mikan Project - 我的番组</title>
  <item>
    <title>[桜都字幕组] 怪兽8号 [05][1080p][简体内嵌]</title>
    <link>https://mikanani.me/Home/Episode/abc123</link>
    <pubDate>2024-05-10T22:00:00</pubDate>
    <enclosure url="https://mikanani.me/Download/abc123.torrent" type="application/x-bittorrent" length="1024"/>
  </item>
  <item>
    <title>没有种子附件的条目</title>
    <link>https://mikanani.me/Home/Episode/def456</link>
  </item>
</channel>
</rss>`

func TestMikanEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, mikanFeedXML)
	}))
	defer server.Close()

	p := newMikanParser(newBaseParser(server.URL))
	entries, err := p.Entries(context.Background())
	require.NoError(t, err)
	// 缺少 bittorrent 附件的条目被丢弃
	require.Len(t, entries, 1)
	assert.Equal(t, "[桜都字幕组] 怪兽8号 [05][1080p][简体内嵌]", entries[0].ResourceTitle)
	assert.Equal(t, "https://mikanani.me/Download/abc123.torrent", entries[0].TorrentURL)
	assert.Equal(t, "https://mikanani.me/Home/Episode/abc123", entries[0].HomepageURL)
}

const genericFeedXML = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0">
<channel>
  <title>generic</title>
  <item>
    <title>magnet 条目</title>
    <enclosure url="magnet:?xt=urn:btih:aaaa" type="application/octet-stream"/>
  </item>
  <item>
    <title>视频附件条目</title>
    <enclosure url="https://example.com/files/ep01.mkv?sig=x" type="application/octet-stream"/>
  </item>
  <item>
    <title>无关附件条目</title>
    <enclosure url="https://example.com/files/cover.jpg" type="image/jpeg"/>
  </item>
</channel>
</rss>`

func TestBaseParserEnclosureRules(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, genericFeedXML)
	}))
	defer server.Close()

	p := newBaseParser(server.URL)
	entries, err := p.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "magnet:?xt=urn:btih:aaaa", entries[0].TorrentURL)
	assert.Equal(t, "https://example.com/files/ep01.mkv?sig=x", entries[1].TorrentURL)
}

func TestForURLInvalid(t *testing.T) {
	_, err := ForURL("://not-a-url")
	assert.Error(t, err)
}
