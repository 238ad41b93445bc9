package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Common       CommonConfig       `yaml:"common"`
	Alist        AlistConfig        `yaml:"alist"`
	Rss          RssConfig          `yaml:"rss"`
	Extractor    ExtractorConfig    `yaml:"extractor"`
	Rename       RenameConfig       `yaml:"rename"`
	Remap        RemapConfig        `yaml:"remap"`
	Notification NotificationConfig `yaml:"notification"`
	Bot          BotConfig          `yaml:"bot"`
	Database     DatabaseConfig     `yaml:"database"`
}

type CommonConfig struct {
	// 每轮订阅源轮询之间的间隔，单位秒
	IntervalTime int `yaml:"interval_time"`
	// 代理地址，为空则直连
	Proxy string `yaml:"proxy"`
}

type AlistConfig struct {
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// 下载目标根目录，例如 /阿里云盘/Anime
	DownloadPath string `yaml:"download_path"`
	// 离线下载工具，传给 add_offline_download 的 tool 字段
	Downloader string `yaml:"downloader"`
	// 离线任务完成后的源文件处理策略
	DeletePolicy string `yaml:"delete_policy"`
	// 传输任务路径中 uuid 所在的分量下标，随 Alist 部署不同而不同。
	// 0 是合法下标，指针区分「未配置」与「显式写 0」
	TransferUUIDIndex *int `yaml:"transfer_uuid_index"`
}

type RssConfig struct {
	SubscribeURLs []string `yaml:"subscribe_urls"`
	// 启用的过滤器名字。内置 简体/繁体/1080p/非合集，可在 custom_filters 中扩展
	Filters       []string          `yaml:"filters"`
	CustomFilters map[string]string `yaml:"custom_filters"`
}

type ExtractorConfig struct {
	// regex 或 llm
	Type string    `yaml:"type"`
	LLM  LLMConfig `yaml:"llm"`
	TMDB TMDBConfig `yaml:"tmdb"`
}

type LLMConfig struct {
	// openai 或 gemini
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	// json_schema 或 json_object
	ResponseFormat string `yaml:"response_format"`
}

type TMDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type RenameConfig struct {
	Template string `yaml:"template"`
}

type RemapConfig struct {
	Enabled bool        `yaml:"enabled"`
	Rules   []RemapRule `yaml:"rules"`
}

type RemapRule struct {
	From RemapFrom `yaml:"from"`
	To   RemapTo   `yaml:"to"`
}

type RemapFrom struct {
	AnimeName string `yaml:"anime_name"`
	Season    *int   `yaml:"season"`
	Fansub    string `yaml:"fansub"`
}

type RemapTo struct {
	AnimeName     string `yaml:"anime_name"`
	Season        *int   `yaml:"season"`
	EpisodeOffset int    `yaml:"episode_offset"`
}

type NotificationConfig struct {
	// 通知队列的汇总发送间隔，单位秒
	Interval int            `yaml:"interval"`
	Telegram TelegramConfig `yaml:"telegram"`
	PushPlus PushPlusConfig `yaml:"pushplus"`
	Anpush   AnpushConfig   `yaml:"anpush"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type PushPlusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

type AnpushConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

type BotConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoadConfig 从指定路径加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()
	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// 设置配置默认值
func (c *Config) setDefaults() {
	if c.Common.IntervalTime == 0 {
		c.Common.IntervalTime = 300
	}

	if c.Alist.Downloader == "" {
		c.Alist.Downloader = "aria2"
	}
	if c.Alist.DeletePolicy == "" {
		c.Alist.DeletePolicy = "delete_on_upload_succeed"
	}
	if c.Alist.TransferUUIDIndex == nil {
		idx := 1
		c.Alist.TransferUUIDIndex = &idx
	}

	if len(c.Rss.Filters) == 0 {
		c.Rss.Filters = []string{"1080p", "非合集"}
	}

	if c.Extractor.Type == "" {
		c.Extractor.Type = "regex"
	}
	if c.Extractor.LLM.Provider == "" {
		c.Extractor.LLM.Provider = "openai"
	}
	if c.Extractor.LLM.ResponseFormat == "" {
		c.Extractor.LLM.ResponseFormat = "json_object"
	}
	if c.Extractor.TMDB.BaseURL == "" {
		c.Extractor.TMDB.BaseURL = "https://api.themoviedb.org/3"
	}

	if c.Rename.Template == "" {
		c.Rename.Template = "{name} S{season:02d}E{episode:02d}.{ext}"
	}

	if c.Notification.Interval == 0 {
		c.Notification.Interval = 300
	}
	if c.Notification.PushPlus.Channel == "" {
		c.Notification.PushPlus.Channel = "wechat"
	}

	if c.Database.Path == "" {
		c.Database.Path = "data/subscribe_database.db"
	}
}

// 使用环境变量覆盖敏感配置
func (c *Config) overrideWithEnv() {
	if token := os.Getenv("ALIST_TOKEN"); token != "" {
		c.Alist.Token = token
	}
	if password := os.Getenv("ALIST_PASSWORD"); password != "" {
		c.Alist.Password = password
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Extractor.LLM.APIKey = key
	}
	if key := os.Getenv("TMDB_API_KEY"); key != "" {
		c.Extractor.TMDB.APIKey = key
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		c.Notification.Telegram.Token = token
		if c.Bot.Token == "" {
			c.Bot.Token = token
		}
	}
}

// renamePlaceholder 匹配 {name} 或 {season:02d} 形式的占位符
var renamePlaceholder = regexp.MustCompile(`\{([a-z]+)(?::[^{}]*)?\}`)

// renameFields 重命名模板可用的全部字段
var renameFields = map[string]bool{
	"name":     true,
	"season":   true,
	"episode":  true,
	"ext":      true,
	"fansub":   true,
	"quality":  true,
	"language": true,
}

// ValidateRenameTemplate 对模板做一次空跑展开，发现未知占位符立即报错
func ValidateRenameTemplate(template string) error {
	for _, m := range renamePlaceholder.FindAllStringSubmatch(template, -1) {
		if !renameFields[m[1]] {
			return fmt.Errorf("unknown placeholder %q in rename template", m[0])
		}
	}
	return nil
}

// 验证配置
func (c *Config) Validate() error {
	if c.Alist.BaseURL == "" {
		return fmt.Errorf("alist.base_url is required")
	}
	if c.Alist.Token == "" && (c.Alist.Username == "" || c.Alist.Password == "") {
		return fmt.Errorf("alist.token or alist.username/alist.password is required")
	}
	if c.Alist.DownloadPath == "" {
		return fmt.Errorf("alist.download_path is required")
	}
	if *c.Alist.TransferUUIDIndex < 0 {
		return fmt.Errorf("alist.transfer_uuid_index must be >= 0")
	}

	if len(c.Rss.SubscribeURLs) == 0 {
		return fmt.Errorf("rss.subscribe_urls must not be empty")
	}

	switch c.Extractor.Type {
	case "regex":
	case "llm":
		if c.Extractor.LLM.APIKey == "" {
			return fmt.Errorf("extractor.llm.api_key is required for the llm extractor")
		}
		if c.Extractor.LLM.Model == "" {
			return fmt.Errorf("extractor.llm.model is required for the llm extractor")
		}
		switch c.Extractor.LLM.Provider {
		case "openai", "gemini":
		default:
			return fmt.Errorf("unsupported llm provider: %s", c.Extractor.LLM.Provider)
		}
		switch c.Extractor.LLM.ResponseFormat {
		case "json_schema", "json_object":
		default:
			return fmt.Errorf("unsupported llm response format: %s", c.Extractor.LLM.ResponseFormat)
		}
		if c.Extractor.TMDB.Enabled && c.Extractor.TMDB.APIKey == "" {
			return fmt.Errorf("extractor.tmdb.api_key is required when tmdb is enabled")
		}
	default:
		return fmt.Errorf("unsupported extractor type: %s", c.Extractor.Type)
	}

	if err := ValidateRenameTemplate(c.Rename.Template); err != nil {
		return err
	}

	if c.Notification.Telegram.Enabled {
		if c.Notification.Telegram.Token == "" || c.Notification.Telegram.ChatID == "" {
			return fmt.Errorf("notification.telegram.token and chat_id are required")
		}
	}
	if c.Notification.PushPlus.Enabled {
		if c.Notification.PushPlus.Token == "" {
			return fmt.Errorf("notification.pushplus.token is required")
		}
		switch c.Notification.PushPlus.Channel {
		case "wechat", "webhook", "cp", "mail":
		default:
			return fmt.Errorf("unsupported pushplus channel: %s", c.Notification.PushPlus.Channel)
		}
	}
	if c.Notification.Anpush.Enabled && c.Notification.Anpush.Token == "" {
		return fmt.Errorf("notification.anpush.token is required")
	}

	if c.Bot.Enabled && c.Bot.Token == "" {
		return fmt.Errorf("bot.token is required when the bot is enabled")
	}

	return nil
}
