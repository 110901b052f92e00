package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`    // 服务器配置
	Database  DatabaseConfig  `mapstructure:"database"`  // PostgreSQL配置
	Source    SourceConfig    `mapstructure:"source"`    // 论坛数据源配置
	Oracle    OracleConfig    `mapstructure:"oracle"`    // 文本抽取服务配置
	Ingest    IngestConfig    `mapstructure:"ingest"`    // 抓取流程参数
	Schedule  ScheduleConfig  `mapstructure:"schedule"`  // 轮询调度配置
	Analytics AnalyticsConfig `mapstructure:"analytics"` // 价格分析参数
	Auth      AuthConfig      `mapstructure:"auth"`      // 管理接口鉴权
	Redis     RedisConfig     `mapstructure:"redis"`     // 可选：跨实例运行锁
	Catalog   string          `mapstructure:"catalog"`   // 型号词表/排除词文件路径
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// DatabaseConfig PostgreSQL数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN（URL形式）
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
	LogLevel        string        `mapstructure:"log_level"`         // GORM日志级别：silent/error/warn/info
}

// HTTPConfig 外部HTTP调用的通用参数
type HTTPConfig struct {
	Timeout   int    `mapstructure:"timeout"`    // 请求超时（秒）
	Proxy     string `mapstructure:"proxy"`      // 代理地址
	UserAgent string `mapstructure:"user_agent"` // 部分平台（reddit）强制要求UA
}

// SourceConfig 论坛数据源（reddit）配置
type SourceConfig struct {
	Kind         string     `mapstructure:"kind"`          // 数据源类型，对应adapter注册名
	TokenURL     string     `mapstructure:"token_url"`     // 凭证交换地址
	BaseURL      string     `mapstructure:"base_url"`      // API基础地址
	Subreddit    string     `mapstructure:"subreddit"`     // 固定版块
	PageLimit    int        `mapstructure:"page_limit"`    // 每页帖子数
	ClientID     string     `mapstructure:"client_id"`     // OAuth client id
	ClientSecret string     `mapstructure:"client_secret"` // OAuth client secret
	HTTP         HTTPConfig `mapstructure:"http"`
}

// OracleConfig 文本抽取服务（OpenAI兼容）配置
type OracleConfig struct {
	BaseURL     string     `mapstructure:"base_url"`    // 为空使用官方地址
	APIKey      string     `mapstructure:"api_key"`     // API密钥
	Model       string     `mapstructure:"model"`       // 模型名称
	Temperature float64    `mapstructure:"temperature"` // 采样温度
	HTTP        HTTPConfig `mapstructure:"http"`
}

// IngestConfig 抓取流程参数
type IngestConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`      // 每次抽取调用合并的帖子数
	BackfillMax   int           `mapstructure:"backfill_max"`    // 历史回填模式最多保存的条数
	CallDelay     time.Duration `mapstructure:"call_delay"`      // 每次抽取调用后的固定等待
	MaxTextLength int           `mapstructure:"max_text_length"` // 标题+正文长度上限
	Dispositions  []string      `mapstructure:"dispositions"`    // 允许的帖子状态（flair）
}

// ScheduleConfig 轮询调度配置
type ScheduleConfig struct {
	Enabled         bool   `mapstructure:"enabled"`           // 是否启用定时抓取
	Cron            string `mapstructure:"cron"`              // tick表达式，周期需 ≤ sparse_interval
	TickMinutes     int    `mapstructure:"tick_minutes"`      // tick周期（分钟），仅用于启动时校验
	Timezone        string `mapstructure:"timezone"`          // 参考时区
	ActiveStartHour int    `mapstructure:"active_start_hour"` // 活跃窗口开始（含）
	ActiveEndHour   int    `mapstructure:"active_end_hour"`   // 活跃窗口结束（不含），24表示到午夜
	SparseInterval  int    `mapstructure:"sparse_interval"`   // 非活跃时段的分钟间隔
}

// AnalyticsConfig 价格分析参数
type AnalyticsConfig struct {
	WindowDays       int     `mapstructure:"window_days"`       // 统计窗口（天）
	BaselineDays     int     `mapstructure:"baseline_days"`     // 快照基线窗口（天）
	MinSamples       int     `mapstructure:"min_samples"`       // 评级所需最少样本
	TopN             int     `mapstructure:"top_n"`             // 热门/最佳列表长度
	OutlierThreshold float64 `mapstructure:"outlier_threshold"` // 默认离群倍数
	Timezone         string  `mapstructure:"timezone"`          // 日K分桶时区
}

// AuthConfig 管理接口鉴权配置
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"` // HS256密钥
	AdminRole string `mapstructure:"admin_role"` // 允许访问管理接口的角色
}

// RedisConfig 运行锁配置，Addr为空时使用进程内锁
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockKey  string        `mapstructure:"lock_key"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	v.SetTypeByDefaultValue(true)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	cfg.ApplyDefaults()
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Source.ClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Source.ClientSecret = v
	}
	if v := os.Getenv("REDDIT_PROXY"); v != "" {
		cfg.Source.HTTP.Proxy = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}

// ApplyDefaults 为未配置的字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Source.Kind == "" {
		c.Source.Kind = "reddit"
	}
	if c.Source.TokenURL == "" {
		c.Source.TokenURL = "https://www.reddit.com/api/v1/access_token"
	}
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = "https://oauth.reddit.com"
	}
	if c.Source.Subreddit == "" {
		c.Source.Subreddit = "hardwareswap"
	}
	if c.Source.PageLimit <= 0 {
		c.Source.PageLimit = 100
	}
	if c.Source.HTTP.Timeout <= 0 {
		c.Source.HTTP.Timeout = 15
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = "gpt-4o-mini"
	}
	if c.Oracle.HTTP.Timeout <= 0 {
		c.Oracle.HTTP.Timeout = 60
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 1
	}
	if c.Ingest.BackfillMax <= 0 {
		c.Ingest.BackfillMax = 275
	}
	if c.Ingest.CallDelay <= 0 {
		c.Ingest.CallDelay = 300 * time.Millisecond
	}
	if c.Ingest.MaxTextLength <= 0 {
		c.Ingest.MaxTextLength = 1400
	}
	if len(c.Ingest.Dispositions) == 0 {
		c.Ingest.Dispositions = []string{"SELLING", "CLOSED"}
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "*/5 * * * *"
	}
	if c.Schedule.TickMinutes <= 0 {
		c.Schedule.TickMinutes = 5
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "America/Chicago"
	}
	if c.Schedule.ActiveStartHour == 0 && c.Schedule.ActiveEndHour == 0 {
		c.Schedule.ActiveStartHour, c.Schedule.ActiveEndHour = 9, 24
	}
	if c.Schedule.SparseInterval <= 0 {
		c.Schedule.SparseInterval = 30
	}
	if c.Analytics.WindowDays <= 0 {
		c.Analytics.WindowDays = 7
	}
	if c.Analytics.BaselineDays <= 0 {
		c.Analytics.BaselineDays = 30
	}
	if c.Analytics.MinSamples <= 0 {
		c.Analytics.MinSamples = 2
	}
	if c.Analytics.TopN <= 0 {
		c.Analytics.TopN = 5
	}
	if c.Analytics.OutlierThreshold <= 0 {
		c.Analytics.OutlierThreshold = 1.75
	}
	if c.Analytics.Timezone == "" {
		c.Analytics.Timezone = c.Schedule.Timezone
	}
	if c.Auth.AdminRole == "" {
		c.Auth.AdminRole = "admin"
	}
	if c.Redis.LockKey == "" {
		c.Redis.LockKey = "dealsync:ingest:lock"
	}
	if c.Redis.LockTTL <= 0 {
		c.Redis.LockTTL = 30 * time.Minute
	}
	if c.Catalog == "" {
		c.Catalog = "./config/catalog.yaml"
	}
}
