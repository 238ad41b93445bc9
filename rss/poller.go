package rss

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TwooSix/Alist-MikananiRss-sub000/database"
	"github.com/TwooSix/Alist-MikananiRss-sub000/extractor"
	"github.com/TwooSix/Alist-MikananiRss-sub000/filter"
	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
	"github.com/TwooSix/Alist-MikananiRss-sub000/remap"
)

// Dispatcher 接收新资源批次的下游，由下载管理器实现
type Dispatcher interface {
	AddDownloadTasks(ctx context.Context, resources []*models.ResourceDescriptor)
}

// CheckCommand 机器人触发的即时检查。Reply 收到本次新派发的资源数
type CheckCommand struct {
	RSSURL string
	Reply  chan int
}

// Poller 订阅源轮询器。每轮拉取全部订阅源，过滤、去重、解析后
// 把新资源交给下载管理器
type Poller struct {
	parsers    []Parser
	filter     *filter.Filter
	db         *database.Database
	extractor  extractor.Extractor
	remapper   *remap.Remapper
	dispatcher Dispatcher
	interval   time.Duration
	commands   chan CheckCommand
}

func NewPoller(parsers []Parser, f *filter.Filter, db *database.Database,
	ext extractor.Extractor, remapper *remap.Remapper,
	dispatcher Dispatcher, interval time.Duration) *Poller {
	return &Poller{
		parsers:    parsers,
		filter:     f,
		db:         db,
		extractor:  ext,
		remapper:   remapper,
		dispatcher: dispatcher,
		interval:   interval,
		commands:   make(chan CheckCommand, 8),
	}
}

// Commands 机器人向轮询器下发命令的通道
func (p *Poller) Commands() chan<- CheckCommand {
	return p.commands
}

// Run 轮询主循环，直到 ctx 取消。单个订阅源出错不影响其他源和后续轮次
func (p *Poller) Run(ctx context.Context) {
	for {
		p.pollAll(ctx)

		timer := time.NewTimer(p.interval)
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case cmd := <-p.commands:
				p.serveCommand(ctx, cmd)
			case <-timer.C:
				break wait
			}
		}
	}
}

// pollAll 并发拉取全部订阅源，RSS 解析在各自的 goroutine 中进行，
// 不会阻塞其他源
func (p *Poller) pollAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, parser := range p.parsers {
		wg.Add(1)
		go func(parser Parser) {
			defer wg.Done()
			p.pollOne(ctx, parser)
		}(parser)
	}
	wg.Wait()
}

// pollOne 处理单个订阅源的一轮，返回派发的新资源数
func (p *Poller) pollOne(ctx context.Context, parser Parser) int {
	entries, err := parser.Entries(ctx)
	if err != nil {
		log.Error().Err(err).Str("feed", parser.URL()).Msg("failed to fetch feed")
		return 0
	}

	var batch []*models.ResourceDescriptor
	for _, entry := range entries {
		if !p.filter.Match(entry.ResourceTitle) {
			continue
		}
		exists, err := p.db.Exists(entry.ResourceTitle)
		if err != nil {
			log.Error().Err(err).Str("title", entry.ResourceTitle).Msg("catalog lookup failed")
			continue
		}
		if exists {
			continue
		}

		resource := &models.ResourceDescriptor{
			ResourceTitle: entry.ResourceTitle,
			TorrentURL:    entry.TorrentURL,
			PublishedDate: entry.PublishedDate,
			HomepageURL:   entry.HomepageURL,
			Season:        1,
			Version:       1,
		}
		if err := parser.Enrich(ctx, entry, resource); err != nil {
			log.Warn().Err(err).Str("title", entry.ResourceTitle).Msg("homepage enrichment failed")
		}
		if p.extractor != nil {
			if !p.extract(ctx, resource) {
				continue
			}
		}
		if p.remapper != nil {
			p.remapper.Apply(resource)
		}
		batch = append(batch, resource)
	}

	if len(batch) > 0 {
		log.Info().Str("feed", parser.URL()).Int("count", len(batch)).Msg("dispatching new resources")
		p.dispatcher.AddDownloadTasks(ctx, batch)
	}
	return len(batch)
}

// extract 运行解析器并套用优先级规则：主页来源的番剧名和字幕组
// 优先于解析器的输出。返回 false 表示该资源本轮跳过
func (p *Poller) extract(ctx context.Context, resource *models.ResourceDescriptor) bool {
	info, err := p.extractor.AnalyseResourceTitle(ctx, resource.ResourceTitle)
	if err != nil {
		log.Warn().Err(err).Str("title", resource.ResourceTitle).Msg("extractor failed, skipping resource")
		return false
	}

	homepageName := resource.AnimeName
	homepageFansub := resource.Fansub

	resource.Season = info.Season
	resource.Episode = info.Episode
	resource.Quality = info.Quality
	resource.Languages = info.Languages
	resource.Version = info.Version
	resource.AnimeName = info.AnimeName
	resource.Fansub = info.Fansub

	if homepageName != "" {
		nameInfo, err := p.extractor.AnalyseAnimeName(ctx, homepageName)
		if err != nil {
			log.Warn().Err(err).Str("name", homepageName).Msg("anime name analysis failed")
			resource.AnimeName = homepageName
		} else {
			resource.AnimeName = nameInfo.AnimeName
			// 特别篇固定归入第 0 季
			if info.Season != 0 {
				resource.Season = nameInfo.Season
			}
		}
	}
	if homepageFansub != "" {
		resource.Fansub = homepageFansub
	}
	return true
}

// serveCommand 即时检查一个订阅源并把派发数量回给机器人
func (p *Poller) serveCommand(ctx context.Context, cmd CheckCommand) {
	var target Parser
	for _, parser := range p.parsers {
		if parser.URL() == cmd.RSSURL {
			target = parser
			break
		}
	}
	if target == nil {
		var err error
		target, err = ForURL(cmd.RSSURL)
		if err != nil {
			log.Error().Err(err).Str("url", cmd.RSSURL).Msg("bot check rejected")
			if cmd.Reply != nil {
				cmd.Reply <- -1
			}
			return
		}
	}
	count := p.pollOne(ctx, target)
	if cmd.Reply != nil {
		cmd.Reply <- count
	}
}
