// cmd/promotion-service/main.go
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/go-zookeeper/zk"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"campusnexus/internal/pkg/bootstrap"
	"campusnexus/internal/pkg/mq"
	"campusnexus/internal/pkg/nacos"
	"campusnexus/internal/pkg/redis"
	"campusnexus/internal/pkg/zookeeper"
	"campusnexus/internal/service/promotion/application"
	"campusnexus/internal/service/promotion/calendar"
	"campusnexus/internal/service/promotion/domain"
	"campusnexus/internal/service/promotion/engine"
	"campusnexus/internal/service/promotion/infrastructure"
	"campusnexus/internal/service/promotion/infrastructure/rule"
	"campusnexus/internal/service/promotion/interfaces"
	"campusnexus/internal/service/promotion/metrics"
)

const serviceName = "promotion-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()
	settings := loadSettings(cfg)

	// 1. 规则引擎和日历目录
	rules, err := rule.NewCELRuleEngine()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create rule engine")
	}
	catalog, err := loadCatalog(settings.Catalog, rules)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load calendar catalog")
	}
	store := calendar.NewStore(catalog, rules)

	// 2. 基础设施
	db, err := infrastructure.OpenMySQL(cfg.Infra.MySQL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	repo := infrastructure.NewGormPromotionRepository(db)

	// Redis 不可用时不启用缓存，推荐照常计算
	var (
		cache       application.RecommendationCache
		redisClient goredis.UniversalClient
	)
	redisClient, err = redis.NewClient(context.Background(), redis.Options{
		Addrs:    cfg.Infra.Redis.Addrs,
		Password: cfg.Infra.Redis.Password,
		DB:       cfg.Infra.Redis.DB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, recommendation cache disabled")
	} else {
		cache = infrastructure.NewRedisRecommendationCache(redisClient, settings.CacheTTL)
	}

	publisher := infrastructure.NewKafkaMetricsPublisher(mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.MetricsTopic))

	// 3. 应用服务
	svc := application.NewInsightService(repo, newEngine(store, rules, settings), cache, publisher,
		otel.Tracer(serviceName), application.NewMetrics(nil))

	// 多副本部署时由分布式锁选出唯一的定时发布者
	var zkConn *zk.Conn
	if zkCfg := cfg.Infra.ZooKeeper; zkCfg.Enabled {
		zkConn, err = zookeeper.Connect(zkCfg.Servers, zkCfg.SessionTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		lock, err := zookeeper.NewDistributedLock(zkConn, zkCfg.LockName)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to prepare publisher lock")
		}
		svc.SetPublishLock(lock)
	}

	// 评分策略热更新：重建引擎，目录和基础设施保持不变
	bootstrap.OnConfigChange(func(c *bootstrap.Config) {
		svc.SetEngine(newEngine(store, rules, loadSettings(c)))
		log.Info().Msg("Scoring policy reloaded")
	})

	hub := interfaces.NewDashboardHub(svc, settings.RefreshInterval)
	store.OnChange(func(c *calendar.Catalog) {
		log.Info().Str("version", c.Version).Msg("Calendar catalog reloaded")
		hub.Refresh()
	})

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) []bootstrap.Worker {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			interfaces.NewInsightHandler(svc).RegisterRoutes(appCtx.Mux)
			appCtx.Mux.HandleFunc("GET /ws/recommendations", hub.ServeWs)

			if appCtx.Config != nil && settings.Catalog.NacosDataID != "" {
				watchCatalog(appCtx.Config, store, settings.Catalog.NacosDataID)
			}

			return []bootstrap.Worker{
				hub.Run,
				func(ctx context.Context) error { return svc.PublishLoop(ctx, settings.PublishInterval) },
			}
		},
		OnShutdown: func(ctx context.Context) {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing kafka writer")
			}
			if redisClient != nil {
				_ = redisClient.Close()
			}
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
			if zkConn != nil {
				zkConn.Close()
			}
		},
	})
}

func loadSettings(cfg *bootstrap.Config) application.Settings {
	settings := application.DefaultSettings()
	if err := cfg.DecodeInsight(&settings); err != nil {
		log.Error().Err(err).Msg("invalid insight config, using defaults")
		return application.DefaultSettings()
	}
	return settings
}

func newEngine(store *calendar.Store, rules domain.RuleEngine, s application.Settings) *engine.Engine {
	return engine.New(store, metrics.NewCalculator(s.Policy), rules, engine.Options{
		TopN:               s.TopN,
		MaxRationale:       s.MaxRationale,
		DurationSlackDays:  &s.DurationSlackDays,
		UpcomingWindowDays: s.UpcomingWindowDays,
	})
}

// loadCatalog 优先读取配置的文件，未配置时使用内置目录。
func loadCatalog(s application.CatalogSettings, rules domain.RuleEngine) (*calendar.Catalog, error) {
	if s.Path == "" {
		return calendar.DefaultCatalog(rules)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return calendar.LoadCatalog(data, rules)
}

// watchCatalog 从 Nacos 加载目录并监听变更，非法的目录不会替换当前目录。
func watchCatalog(client *nacos.ConfigClient, store *calendar.Store, dataID string) {
	reload := func(content string) {
		if content == "" {
			return
		}
		if _, err := store.Reload([]byte(content)); err != nil {
			log.Error().Err(err).Str("data_id", dataID).Msg("rejected calendar catalog from nacos")
		}
	}

	content, err := client.Get(dataID)
	if err != nil {
		log.Warn().Err(err).Str("data_id", dataID).Msg("calendar catalog not found in nacos, keeping local copy")
	} else {
		reload(content)
	}
	if err := client.Listen(dataID, reload); err != nil {
		log.Error().Err(err).Str("data_id", dataID).Msg("failed to watch calendar catalog")
	}
}
