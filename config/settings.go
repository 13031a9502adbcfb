// Package config 加载服务配置，并维护 pipeline Node 的注册表。
//
// 配置按优先级覆盖：内置默认值 → YAML 文件 → 环境变量（前缀 SHOPREC_，层级用 __ 分隔，
// 例如 SHOPREC_CACHE__WINDOW=24h）。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/shoprec/pkg/logging"
	"github.com/rushteam/shoprec/rank"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "SHOPREC_"

// Settings 是 shoprec 的完整配置
type Settings struct {
	Log         logging.Config    `koanf:"log"`
	Database    DatabaseConfig    `koanf:"database"`
	Dataset     DatasetConfig     `koanf:"dataset"`
	Rules       RulesConfig       `koanf:"rules"`
	Mining      MiningConfig      `koanf:"mining"`
	Recommender RecommenderConfig `koanf:"recommender"`
	Cache       CacheConfig       `koanf:"cache"`
	Catalog     CatalogConfig     `koanf:"catalog"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Scheduler   SchedulerConfig   `koanf:"scheduler"`
}

// DatabaseConfig 订单库连接
type DatabaseConfig struct {
	Driver       string `koanf:"driver" validate:"oneof=postgres sqlite"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"gte=0"`
}

// DatasetConfig 推荐与挖掘的数据来源：订单库或导出的 CSV
type DatasetConfig struct {
	Source  string `koanf:"source" validate:"oneof=sql csv"`
	CSVPath string `koanf:"csv_path"`
}

// RulesConfig 关联规则存储，DSN 为空时与订单库共用
type RulesConfig struct {
	Store  string `koanf:"store" validate:"oneof=gorm memory"`
	Driver string `koanf:"driver" validate:"omitempty,oneof=postgres sqlite"`
	DSN    string `koanf:"dsn"`
}

// MiningConfig 挖掘参数，MinSupport 为比例，运行时换算为计数
type MiningConfig struct {
	MinSupport     float64 `koanf:"min_support" validate:"gt=0,lte=1"`
	MinConfidence  float64 `koanf:"min_confidence" validate:"gte=0,lte=1"`
	MaxItemsetSize int     `koanf:"max_itemset_size" validate:"gte=1"`
	Workers        int     `koanf:"workers" validate:"gte=0"`
}

// RecommenderConfig 混合推荐参数
type RecommenderConfig struct {
	Limit        int               `koanf:"limit" validate:"gte=1"`
	Neighbors    int               `koanf:"neighbors" validate:"gte=1"`
	Availability string            `koanf:"availability"`
	Bands        []rank.WeightBand `koanf:"bands"`
	// PipelineFile 不为空时从 YAML 构建节点链，替代默认节点链
	PipelineFile string `koanf:"pipeline_file"`
}

// CacheConfig 推荐快照缓存
type CacheConfig struct {
	Store         string        `koanf:"store" validate:"oneof=memory redis badger"`
	Window        time.Duration `koanf:"window" validate:"gt=0"`
	Prefix        string        `koanf:"prefix"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db" validate:"gte=0"`
	BadgerDir     string        `koanf:"badger_dir"`
}

// CatalogConfig 商品目录来源
type CatalogConfig struct {
	Kind  string      `koanf:"kind" validate:"oneof=sql memory feast"`
	Feast FeastConfig `koanf:"feast"`
}

// FeastConfig Feast 在线特征服务
type FeastConfig struct {
	Host      string `koanf:"host"`
	Port      int    `koanf:"port" validate:"gte=0,lte=65535"`
	Project   string `koanf:"project"`
	Token     string `koanf:"token"`
	View      string `koanf:"view"`
	EntityKey string `koanf:"entity_key"`
}

// MetricsConfig Prometheus 指标端点
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	Path    string `koanf:"path"`
}

// SchedulerConfig serve 模式下的周期任务，间隔为 0 表示不启用
type SchedulerConfig struct {
	ExportInterval  time.Duration `koanf:"export_interval" validate:"gte=0"`
	ExportPath      string        `koanf:"export_path"`
	MiningInterval  time.Duration `koanf:"mining_interval" validate:"gte=0"`
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"gte=0"`
}

// Default 返回内置默认配置
func Default() Settings {
	return Settings{
		Log:      logging.Config{Level: "info", Format: "json"},
		Database: DatabaseConfig{Driver: "postgres", MaxOpenConns: 10},
		Dataset:  DatasetConfig{Source: "sql", CSVPath: "data/dataset.csv"},
		Rules:    RulesConfig{Store: "gorm"},
		Mining: MiningConfig{
			MinSupport:     0.01,
			MinConfidence:  0.5,
			MaxItemsetSize: 3,
		},
		Recommender: RecommenderConfig{
			Limit:     5,
			Neighbors: 5,
			Bands:     rank.DefaultBands(),
		},
		Cache: CacheConfig{
			Store:     "memory",
			Window:    168 * time.Hour,
			Prefix:    "shoprec:rec:",
			RedisAddr: "localhost:6379",
			BadgerDir: "data/cache",
		},
		Catalog: CatalogConfig{
			Kind: "sql",
			Feast: FeastConfig{
				Port:      6566,
				View:      "product_stats",
				EntityKey: "product_name",
			},
		},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090", Path: "/metrics"},
		Scheduler: SchedulerConfig{
			ExportInterval:  time.Hour,
			ExportPath:      "data/dataset.csv",
			MiningInterval:  24 * time.Hour,
			RefreshInterval: 24 * time.Hour,
		},
	}
}

// Load 依次加载默认值、YAML 文件（path 为空则跳过）与环境变量，并校验
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// envKey 把 SHOPREC_CACHE__REDIS_ADDR 转换为 cache.redis_addr
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate 校验字段约束与跨字段依赖
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var errs []error
	if s.Dataset.Source == "sql" || s.Catalog.Kind == "sql" {
		if s.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for sql dataset or catalog"))
		}
	}
	if s.Dataset.Source == "csv" && s.Dataset.CSVPath == "" {
		errs = append(errs, errors.New("dataset.csv_path is required for csv dataset"))
	}
	if s.Cache.Store == "redis" && s.Cache.RedisAddr == "" {
		errs = append(errs, errors.New("cache.redis_addr is required for redis cache"))
	}
	if s.Catalog.Kind == "feast" && s.Catalog.Feast.Host == "" {
		errs = append(errs, errors.New("catalog.feast.host is required for feast catalog"))
	}
	if _, err := rank.NewWeightPolicy(s.Recommender.Bands); err != nil {
		errs = append(errs, fmt.Errorf("recommender.bands: %w", err))
	}
	return errors.Join(errs...)
}

// RulesDSN 返回规则库的驱动与 DSN，未单独配置时使用订单库
func (s *Settings) RulesDSN() (driver, dsn string) {
	driver, dsn = s.Rules.Driver, s.Rules.DSN
	if driver == "" {
		driver = s.Database.Driver
	}
	if dsn == "" {
		dsn = s.Database.DSN
	}
	return driver, dsn
}
