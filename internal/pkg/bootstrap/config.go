// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"campusnexus/internal/pkg/logger"
	"campusnexus/internal/pkg/nacos"
)

const defaultConfigFile = "configs/promotion-service.yaml"

// Config 是服务的完整配置。insight 段由业务服务自己解码。
type Config struct {
	App     AppConfig   `yaml:"app"`
	Infra   InfraConfig `yaml:"infra"`
	Insight yaml.Node   `yaml:"insight"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Nacos     NacosConfig     `yaml:"nacos"`
	ZooKeeper ZooKeeperConfig `yaml:"zookeeper"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxOpen  int    `yaml:"max_open"`
	MaxIdle  int    `yaml:"max_idle"`
}

type RedisConfig struct {
	Addrs    string `yaml:"addrs"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	MetricsTopic string   `yaml:"metrics_topic"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"server_addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	DataID      string `yaml:"data_id"` // 服务配置本身的 data id，为空时不监听
}

// ZooKeeperConfig 配置多副本部署时定时发布使用的分布式锁。
type ZooKeeperConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	LockName       string        `yaml:"lock_name"`
}

var (
	currentConfig atomic.Pointer[Config]

	listenersMu sync.Mutex
	listeners   []func(*Config)

	nacosConfigClient *nacos.ConfigClient
)

// Init 加载本地配置文件并初始化 logger。CONFIG_FILE 可以覆盖配置文件路径。
func Init() {
	path := getEnv("CONFIG_FILE", defaultConfigFile)
	cfg, err := LoadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("failed to load config")
	}
	currentConfig.Store(cfg)
	logger.Init(cfg.App.Name, cfg.App.LogLevel)
	log.Info().Str("path", path).Msg("Config loaded")
}

// GetCurrentConfig 返回当前生效的配置。Init 之前调用会得到默认配置。
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// OnConfigChange 注册配置热更新回调。
func OnConfigChange(fn func(*Config)) {
	listenersMu.Lock()
	defer listenersMu.Unlock()
	listeners = append(listeners, fn)
}

// LoadFile 读取并解析配置文件。
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Parse 解析 YAML 配置，补齐默认值后再应用环境变量覆盖。
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	applyEnvOverrides(cfg)
	if cfg.App.Port <= 0 || cfg.App.Port > 65535 {
		return nil, errors.Errorf("invalid app port %d", cfg.App.Port)
	}
	return cfg, nil
}

// DecodeInsight 把 insight 段解码到 out，段不存在时 out 保持原值。
func (c *Config) DecodeInsight(out any) error {
	if c.Insight.Kind == 0 {
		return nil
	}
	return errors.Wrap(c.Insight.Decode(out), "decode insight config")
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{Name: "promotion-service", Port: 8087, LogLevel: "info"},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces", SampleRatio: 1},
			MySQL:  MySQLConfig{Host: "localhost", Port: 3306, User: "root", Database: "nexus", MaxOpen: 20, MaxIdle: 5},
			Redis:  RedisConfig{Addrs: "localhost:6379"},
			Kafka:  KafkaConfig{Brokers: []string{"localhost:9092"}, MetricsTopic: "promotion-metrics"},
			Nacos:  NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
			ZooKeeper: ZooKeeperConfig{
				Servers:        []string{"localhost:2181"},
				SessionTimeout: 10 * time.Second,
				LockName:       "promotion-metrics-publisher",
			},
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("APP_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = port
		}
	}
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.MySQL.Host = getEnv("MYSQL_HOST", cfg.Infra.MySQL.Host)
	cfg.Infra.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.Infra.MySQL.Password)
	cfg.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", cfg.Infra.Redis.Addrs)
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok && v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	if v, ok := os.LookupEnv("NACOS_ENABLED"); ok {
		cfg.Infra.Nacos.Enabled, _ = strconv.ParseBool(v)
	}
	if v, ok := os.LookupEnv("ZOOKEEPER_SERVERS"); ok && v != "" {
		cfg.Infra.ZooKeeper.Servers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("ZOOKEEPER_ENABLED"); ok {
		cfg.Infra.ZooKeeper.Enabled, _ = strconv.ParseBool(v)
	}
}

// watchRemoteConfig 从 Nacos 拉取服务配置并监听变更，变更后替换当前配置并通知监听者。
func watchRemoteConfig(client *nacos.ConfigClient, dataID string) error {
	content, err := client.Get(dataID)
	if err != nil {
		return err
	}
	if content != "" {
		applyRemoteConfig(content)
	}
	return client.Listen(dataID, applyRemoteConfig)
}

func applyRemoteConfig(content string) {
	cfg, err := Parse([]byte(content))
	if err != nil {
		log.Error().Err(err).Msg("ignoring invalid remote config")
		return
	}
	currentConfig.Store(cfg)

	listenersMu.Lock()
	fns := append([]func(*Config){}, listeners...)
	listenersMu.Unlock()
	for _, fn := range fns {
		fn(cfg)
	}
	log.Info().Msg("Remote config applied")
}

// getEnv 从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
