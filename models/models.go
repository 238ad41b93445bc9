package models

import (
	"strings"
	"time"
)

// 画质枚举
const (
	QualityUnknown = ""
	Quality720p    = "720p"
	Quality1080p   = "1080p"
	Quality2160p   = "2160p"
)

// FeedEntry 订阅源解析出的原始条目，未经过解析器富化
type FeedEntry struct {
	ResourceTitle string
	TorrentURL    string
	PublishedDate string
	HomepageURL   string
	Author        string
}

// ResourceDescriptor 一个候选资源。以 ResourceTitle 作为唯一去重键
type ResourceDescriptor struct {
	ResourceTitle string
	TorrentURL    string
	PublishedDate string
	HomepageURL   string

	// 以下字段由解析器填充，可能为空
	AnimeName string
	Season    int // 0 表示 OVA/特别篇
	Episode   int
	Fansub    string
	Quality   string
	Languages []string
	Version   int // 重制版本号，>= 1
}

// Key 返回资源的去重键。相等性只看 ResourceTitle
func (r *ResourceDescriptor) Key() string {
	return r.ResourceTitle
}

// ResourceRecord 数据库中的资源记录，对应 resource_data 表
type ResourceRecord struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ResourceTitle  string `gorm:"size:512;not null;uniqueIndex"`
	TorrentURL     string `gorm:"type:text"`
	PublishedDate  string `gorm:"size:64"`
	AnimeName      string `gorm:"size:256"`
	Season         int    `gorm:"default:1"`
	Episode        int    `gorm:"default:0"`
	Fansub         string `gorm:"size:128"`
	Quality        string `gorm:"size:16"`
	Language       string `gorm:"size:64"`
	Version        int    `gorm:"default:1"`
	DownloadedDate time.Time
}

func (ResourceRecord) TableName() string {
	return "resource_data"
}

// DBVersion 数据库结构版本，对应 db_version 表
type DBVersion struct {
	ID      uint `gorm:"primaryKey"`
	Version int  `gorm:"not null"`
}

func (DBVersion) TableName() string {
	return "db_version"
}

// NewRecord 由资源描述符构造数据库记录
func NewRecord(r *ResourceDescriptor) *ResourceRecord {
	version := r.Version
	if version < 1 {
		version = 1
	}
	return &ResourceRecord{
		ResourceTitle:  r.ResourceTitle,
		TorrentURL:     r.TorrentURL,
		PublishedDate:  r.PublishedDate,
		AnimeName:      r.AnimeName,
		Season:         r.Season,
		Episode:        r.Episode,
		Fansub:         r.Fansub,
		Quality:        r.Quality,
		Language:       strings.Join(r.Languages, "/"),
		Version:        version,
		DownloadedDate: time.Now(),
	}
}

// 字幕语言标准名
const (
	LanguageSimplified  = "简体中文"
	LanguageTraditional = "繁體中文"
	LanguageJapanese    = "日本語"
)

// 可作为番剧视频处理的扩展名
var videoExtensions = map[string]bool{
	"mp4": true, "mkv": true, "avi": true, "rmvb": true, "wmv": true, "flv": true,
}

// IsVideoFile 文件名是否带有已知的视频扩展名
func IsVideoFile(name string) bool {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return false
	}
	return videoExtensions[strings.ToLower(name[idx+1:])]
}
