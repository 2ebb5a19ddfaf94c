package application

import (
	"time"

	"campusnexus/internal/service/promotion/calendar"
	"campusnexus/internal/service/promotion/metrics"
	"campusnexus/internal/service/promotion/ranking"
	"campusnexus/internal/service/promotion/rationale"
)

// Settings 对应配置文件中的 insight 段。
type Settings struct {
	Policy             metrics.Policy  `yaml:"policy"`
	TopN               int             `yaml:"top_n"`
	MaxRationale       int             `yaml:"max_rationale"`
	UpcomingWindowDays int             `yaml:"upcoming_window_days"`
	DurationSlackDays  int             `yaml:"duration_slack_days"`
	CacheTTL           time.Duration   `yaml:"cache_ttl"`
	PublishInterval    time.Duration   `yaml:"publish_interval"` // 0 表示只按需发布
	RefreshInterval    time.Duration   `yaml:"refresh_interval"` // 看板推送周期
	Catalog            CatalogSettings `yaml:"catalog"`
}

// CatalogSettings 指定日历目录的来源，优先级：Nacos > 本地文件 > 内置目录。
type CatalogSettings struct {
	Path        string `yaml:"path"`
	NacosDataID string `yaml:"nacos_data_id"`
}

// DefaultSettings 返回默认配置。
func DefaultSettings() Settings {
	return Settings{
		Policy:             metrics.DefaultPolicy(),
		TopN:               ranking.DefaultTopN,
		MaxRationale:       rationale.DefaultMaxLines,
		UpcomingWindowDays: calendar.DefaultUpcomingWindowDays,
		DurationSlackDays:  rationale.DefaultDurationSlackDays,
		CacheTTL:           10 * time.Minute,
		PublishInterval:    15 * time.Minute,
		RefreshInterval:    time.Minute,
	}
}
