package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/TwooSix/Alist-MikananiRss-sub000/alist"
	"github.com/TwooSix/Alist-MikananiRss-sub000/config"
	"github.com/TwooSix/Alist-MikananiRss-sub000/database"
	"github.com/TwooSix/Alist-MikananiRss-sub000/extractor"
	"github.com/TwooSix/Alist-MikananiRss-sub000/filter"
	"github.com/TwooSix/Alist-MikananiRss-sub000/remap"
	"github.com/TwooSix/Alist-MikananiRss-sub000/rss"
	"github.com/TwooSix/Alist-MikananiRss-sub000/services"
)

var configPath = flag.String("config", "config.yaml", "Path to configuration file")

const (
	AppVersion = "1.0.0"
	AppName    = "Alist-MikananiRss"
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// 加载配置，配置错误直接退出
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// 初始化数据库
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化 Alist 客户端并校验版本，不兼容直接退出
	client := alist.NewClient(cfg.Alist.BaseURL, cfg.Alist.Token, *cfg.Alist.TransferUUIDIndex)
	if cfg.Alist.Token == "" {
		if err := client.Login(ctx, cfg.Alist.Username, cfg.Alist.Password); err != nil {
			log.Fatal().Err(err).Msg("alist login failed")
		}
	}
	if err := client.CheckVersion(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "alist version check failed: %v\n", err)
		os.Exit(1)
	}

	// 组装过滤器与解析器
	titleFilter, err := filter.New(cfg.Rss.Filters, cfg.Rss.CustomFilters)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid filter configuration: %v\n", err)
		os.Exit(1)
	}

	var ext extractor.Extractor
	switch cfg.Extractor.Type {
	case "llm":
		var tmdb *extractor.TMDBClient
		if cfg.Extractor.TMDB.Enabled {
			tmdb = extractor.NewTMDBClient(cfg.Extractor.TMDB)
		}
		ext, err = extractor.NewLLMExtractor(cfg.Extractor.LLM, tmdb)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build llm extractor")
		}
	default:
		ext = extractor.NewRegexExtractor()
	}

	var remapper *remap.Remapper
	if cfg.Remap.Enabled {
		remapper = remap.New(cfg.Remap.Rules)
	}

	var transports []services.Transport
	if cfg.Notification.Telegram.Enabled {
		transports = append(transports, services.NewTelegramTransport(cfg.Notification.Telegram))
	}
	if cfg.Notification.PushPlus.Enabled {
		transports = append(transports, services.NewPushPlusTransport(cfg.Notification.PushPlus))
	}
	if cfg.Notification.Anpush.Enabled {
		transports = append(transports, services.NewAnpushTransport(cfg.Notification.Anpush))
	}

	// 组装服务
	notifier := services.NewNotifier(transports, time.Duration(cfg.Notification.Interval)*time.Second)
	renamer := services.NewRenamer(client, cfg.Rename.Template)
	uuids := services.NewUUIDSet()
	monitor := services.NewTaskMonitor(client, db, renamer, notifier, uuids)
	manager := services.NewDownloadManager(client, db, cfg.Alist, monitor)

	parsers := make([]rss.Parser, 0, len(cfg.Rss.SubscribeURLs))
	for _, feedURL := range cfg.Rss.SubscribeURLs {
		parser, err := rss.ForURL(feedURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid subscribe url: %v\n", err)
			os.Exit(1)
		}
		parsers = append(parsers, parser)
	}
	poller := rss.NewPoller(parsers, titleFilter, db, ext, remapper, manager, time.Duration(cfg.Common.IntervalTime)*time.Second)

	log.Info().Str("version", AppVersion).Int("feeds", len(parsers)).Msgf("%s started", AppName)

	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()
	go notifier.Run(ctx)
	if cfg.Bot.Enabled {
		bot := services.NewBot(cfg.Bot, poller.Commands())
		go bot.Run(ctx)
	}

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")
	cancel()
	<-done
	// 等在途监控结束后再关数据库
	manager.Wait()
	notifier.Drain(context.Background())
	log.Info().Msg("shutdown complete")
}
