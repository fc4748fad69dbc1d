package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// DefaultPath 默认配置文件路径。
const DefaultPath = "configs/config.json"

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	Crawler  CrawlerConfig  `json:"crawler"`
	Browser  BrowserConfig  `json:"browser"`
	Store    StoreConfig    `json:"store"`
	MySQL    MySQLConfig    `json:"mysql"`
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Pushover PushoverConfig `json:"pushover"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env         string        `json:"env"`           // 运行环境: local / prod
	LogLevel    string        `json:"log_level"`     // 日志级别: debug / info / warn / error
	LogFormat   string        `json:"log_format"`    // 日志格式: text / json
	HTTPAddr    string        `json:"http_addr"`     // 管理 API 监听地址
	RunLockTTL  time.Duration `json:"run_lock_ttl"`  // 运行锁的最长持有时间（如 "12h"）
	RunLockKey  string        `json:"run_lock_key"`  // 运行锁在 Redis 中的 key
	RunQueueCap int           `json:"run_queue_cap"` // API 触发运行的排队容量
}

// CrawlerConfig 抓取节奏与解析配置。
type CrawlerConfig struct {
	PageDelay      time.Duration     `json:"page_delay"`      // 同一查询两页之间的等待
	QueryDelay     time.Duration     `json:"query_delay"`     // 两个查询之间的等待
	RequestTimeout time.Duration     `json:"request_timeout"` // 单次页面请求超时
	MaxPages       int               `json:"max_pages"`       // pages=0 时的安全上限
	FetchMode      string            `json:"fetch_mode"`      // http / browser
	UserAgent      string            `json:"user_agent"`
	Headers        map[string]string `json:"headers"`       // 额外请求头
	AllowedHosts   []string          `json:"allowed_hosts"` // 商品链接允许的域名
	SkipPromoted   bool              `json:"skip_promoted"` // 跳过置顶（vetrina）广告
}

// BrowserConfig 无头浏览器配置（fetch_mode=browser 时使用）。
type BrowserConfig struct {
	BinPath  string `json:"bin_path"`  // 浏览器可执行文件路径
	ProxyURL string `json:"proxy_url"` // 代理服务器 URL
	Headless bool   `json:"headless"`  // 是否使用无头模式
}

// StoreConfig 持久化后端选择。
type StoreConfig struct {
	Driver string `json:"driver"` // redis / mysql / postgres
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// PostgresConfig Postgres 数据库配置。
type PostgresConfig struct {
	DSN string `json:"dsn"`
}

// RedisConfig Redis 配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
	DB       int    `json:"db"`
}

// PushoverConfig Pushover 推送配置。
type PushoverConfig struct {
	AppToken      string        `json:"app_token"`
	UserKey       string        `json:"user_key"`
	URLTitle      string        `json:"url_title"`       // 链接标题
	RateLimit     float64       `json:"rate_limit"`      // 推送速率（条/秒），0 表示不限
	RateBurst     float64       `json:"rate_burst"`      // 令牌桶容量
	ImageTimeout  time.Duration `json:"image_timeout"`   // 下载图片附件超时
	SendTimeout   time.Duration `json:"send_timeout"`    // 单条推送请求超时
	MaxImageBytes int64         `json:"max_image_bytes"` // 图片附件大小上限
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
	ToEmail   string `json:"to_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"` // 管理 API 的 JWT 签名密钥，为空表示不校验
}

// MetricsConfig 指标推送配置。
type MetricsConfig struct {
	PushgatewayURL string `json:"pushgateway_url"` // 为空表示不推送
	Job            string `json:"job"`
}

// Load 从 JSON 文件加载配置。
//
// 路径优先级：参数 > 环境变量 ADHUNTER_CONFIG > configs/config.json。
// 文件不存在时使用默认配置，环境变量始终覆盖文件中的值。
//
// 参数:
//
//	configPath: 配置文件路径（可选）
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := ResolvePath(configPath...)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault 加载配置，如果失败则返回默认配置（不报错）。
func LoadOrDefault(configPath ...string) *Config {
	cfg, err := Load(configPath...)
	if err != nil {
		fallback := getDefaultConfig()
		applyEnvOverrides(fallback)
		return fallback
	}
	return cfg
}

// ResolvePath 返回实际使用的配置文件路径。
func ResolvePath(configPath ...string) string {
	if len(configPath) > 0 && configPath[0] != "" {
		return configPath[0]
	}
	if v := os.Getenv("ADHUNTER_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Save 保存配置到 JSON 文件，必要时创建目录。
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// SetPushoverKeys 解析 "APP_TOKEN:USER_KEY" 并写入配置。
func (c *Config) SetPushoverKeys(keys string) error {
	parts := strings.Split(strings.TrimSpace(keys), ":")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return errors.New("format not valid, expected APP_TOKEN:USER_KEY")
	}
	c.Pushover.AppToken = strings.TrimSpace(parts[0])
	c.Pushover.UserKey = strings.TrimSpace(parts[1])
	return nil
}

// Validate 检查不可恢复的配置错误。
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "redis", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q not supported", c.Store.Driver))
	}
	switch c.Crawler.FetchMode {
	case "http", "browser":
	default:
		errs = append(errs, fmt.Errorf("crawler.fetch_mode %q not supported", c.Crawler.FetchMode))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if (c.Pushover.AppToken == "") != (c.Pushover.UserKey == "") {
		errs = append(errs, errors.New("pushover needs both app_token and user_key"))
	}
	if len(c.Crawler.AllowedHosts) == 0 {
		errs = append(errs, errors.New("crawler.allowed_hosts must not be empty"))
	}
	if c.Store.Driver == "mysql" && c.MySQL.DSN == "" {
		errs = append(errs, errors.New("mysql.dsn is required"))
	}
	if c.Store.Driver == "postgres" && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}
	return errors.Join(errs...)
}

// Default 返回一份默认配置（不读取文件与环境变量）。
func Default() *Config {
	return getDefaultConfig()
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:         "local",
			LogLevel:    "info",
			LogFormat:   "text",
			HTTPAddr:    ":8081",
			RunLockTTL:  12 * time.Hour,
			RunLockKey:  "adhunter:lock:run",
			RunQueueCap: 1,
		},
		Crawler: CrawlerConfig{
			PageDelay:      2 * time.Second,
			QueryDelay:     4 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxPages:       300,
			FetchMode:      "http",
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
			Headers: map[string]string{
				"Accept-Language": "it-IT,it;q=0.9,en;q=0.8",
			},
			AllowedHosts: []string{"www.subito.it", "subito.it"},
			SkipPromoted: false,
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		Store: StoreConfig{
			Driver: "redis",
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/adhunter?parseTime=true&loc=Local",
		},
		Postgres: PostgresConfig{
			DSN: "",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Pushover: PushoverConfig{
			URLTitle:      "Visualizza su Subito",
			RateLimit:     1,
			RateBurst:     5,
			ImageTimeout:  10 * time.Second,
			SendTimeout:   15 * time.Second,
			MaxImageBytes: 2 << 20,
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		Metrics: MetricsConfig{
			Job: "adhunter",
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.LogFormat == "" {
		cfg.App.LogFormat = defaults.App.LogFormat
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.RunLockTTL == 0 {
		cfg.App.RunLockTTL = defaults.App.RunLockTTL
	}
	if cfg.App.RunLockKey == "" {
		cfg.App.RunLockKey = defaults.App.RunLockKey
	}
	if cfg.App.RunQueueCap == 0 {
		cfg.App.RunQueueCap = defaults.App.RunQueueCap
	}

	if cfg.Crawler.PageDelay == 0 {
		cfg.Crawler.PageDelay = defaults.Crawler.PageDelay
	}
	if cfg.Crawler.QueryDelay == 0 {
		cfg.Crawler.QueryDelay = defaults.Crawler.QueryDelay
	}
	if cfg.Crawler.RequestTimeout == 0 {
		cfg.Crawler.RequestTimeout = defaults.Crawler.RequestTimeout
	}
	if cfg.Crawler.MaxPages == 0 {
		cfg.Crawler.MaxPages = defaults.Crawler.MaxPages
	}
	if cfg.Crawler.FetchMode == "" {
		cfg.Crawler.FetchMode = defaults.Crawler.FetchMode
	}
	if cfg.Crawler.UserAgent == "" {
		cfg.Crawler.UserAgent = defaults.Crawler.UserAgent
	}
	if cfg.Crawler.Headers == nil {
		cfg.Crawler.Headers = defaults.Crawler.Headers
	}
	if len(cfg.Crawler.AllowedHosts) == 0 {
		cfg.Crawler.AllowedHosts = defaults.Crawler.AllowedHosts
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = defaults.Store.Driver
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}

	if cfg.Pushover.URLTitle == "" {
		cfg.Pushover.URLTitle = defaults.Pushover.URLTitle
	}
	if cfg.Pushover.ImageTimeout == 0 {
		cfg.Pushover.ImageTimeout = defaults.Pushover.ImageTimeout
	}
	if cfg.Pushover.SendTimeout == 0 {
		cfg.Pushover.SendTimeout = defaults.Pushover.SendTimeout
	}
	if cfg.Pushover.MaxImageBytes == 0 {
		cfg.Pushover.MaxImageBytes = defaults.Pushover.MaxImageBytes
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = defaults.Metrics.Job
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("chrome_bin", "CHROME_BIN")
	_ = viper.BindEnv("pushover_app_token", "PUSHOVER_APP_TOKEN")
	_ = viper.BindEnv("pushover_user_key", "PUSHOVER_USER_KEY")
	_ = viper.BindEnv("postgres_dsn", "POSTGRES_DSN")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_LOG_FORMAT"); v != "" {
		cfg.App.LogFormat = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_RUN_LOCK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.RunLockTTL = d
		}
	}

	if v := os.Getenv("CRAWLER_PAGE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Crawler.PageDelay = d
		}
	}
	if v := os.Getenv("CRAWLER_QUERY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Crawler.QueryDelay = d
		}
	}
	if v := os.Getenv("CRAWLER_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Crawler.RequestTimeout = d
		}
	}
	if v := os.Getenv("CRAWLER_MAX_PAGES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.MaxPages = i
		}
	}
	if v := os.Getenv("CRAWLER_FETCH_MODE"); v != "" {
		cfg.Crawler.FetchMode = v
	}
	if v := os.Getenv("CRAWLER_SKIP_PROMOTED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Crawler.SkipPromoted = b
		}
	}

	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}
	if v := viper.GetString("postgres_dsn"); v != "" {
		cfg.Postgres.DSN = v
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := viper.GetString("chrome_bin"); v != "" {
		cfg.Browser.BinPath = v
	}
	if v := os.Getenv("BROWSER_PROXY_URL"); v != "" {
		cfg.Browser.ProxyURL = v
	}
	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.Headless = b
		}
	}

	if v := viper.GetString("pushover_app_token"); v != "" {
		cfg.Pushover.AppToken = v
	}
	if v := viper.GetString("pushover_user_key"); v != "" {
		cfg.Pushover.UserKey = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("SMTP_TO"); v != "" {
		cfg.Email.ToEmail = v
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "adhunter",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		RunLockTTL string `json:"run_lock_ttl"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.RunLockTTL != "" {
		d, err := time.ParseDuration(aux.RunLockTTL)
		if err != nil {
			return fmt.Errorf("invalid run_lock_ttl format: %w", err)
		}
		a.RunLockTTL = d
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		RunLockTTL string `json:"run_lock_ttl"`
		*Alias
	}{
		RunLockTTL: a.RunLockTTL.String(),
		Alias:      (*Alias)(&a),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (c *CrawlerConfig) UnmarshalJSON(data []byte) error {
	type Alias CrawlerConfig
	aux := &struct {
		PageDelay      string `json:"page_delay"`
		QueryDelay     string `json:"query_delay"`
		RequestTimeout string `json:"request_timeout"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.PageDelay != "" {
		d, err := time.ParseDuration(aux.PageDelay)
		if err != nil {
			return fmt.Errorf("invalid page_delay format: %w", err)
		}
		c.PageDelay = d
	}
	if aux.QueryDelay != "" {
		d, err := time.ParseDuration(aux.QueryDelay)
		if err != nil {
			return fmt.Errorf("invalid query_delay format: %w", err)
		}
		c.QueryDelay = d
	}
	if aux.RequestTimeout != "" {
		d, err := time.ParseDuration(aux.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid request_timeout format: %w", err)
		}
		c.RequestTimeout = d
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (c CrawlerConfig) MarshalJSON() ([]byte, error) {
	type Alias CrawlerConfig
	return json.Marshal(&struct {
		PageDelay      string `json:"page_delay"`
		QueryDelay     string `json:"query_delay"`
		RequestTimeout string `json:"request_timeout"`
		*Alias
	}{
		PageDelay:      c.PageDelay.String(),
		QueryDelay:     c.QueryDelay.String(),
		RequestTimeout: c.RequestTimeout.String(),
		Alias:          (*Alias)(&c),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (p *PushoverConfig) UnmarshalJSON(data []byte) error {
	type Alias PushoverConfig
	aux := &struct {
		ImageTimeout string `json:"image_timeout"`
		SendTimeout  string `json:"send_timeout"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ImageTimeout != "" {
		d, err := time.ParseDuration(aux.ImageTimeout)
		if err != nil {
			return fmt.Errorf("invalid image_timeout format: %w", err)
		}
		p.ImageTimeout = d
	}
	if aux.SendTimeout != "" {
		d, err := time.ParseDuration(aux.SendTimeout)
		if err != nil {
			return fmt.Errorf("invalid send_timeout format: %w", err)
		}
		p.SendTimeout = d
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (p PushoverConfig) MarshalJSON() ([]byte, error) {
	type Alias PushoverConfig
	return json.Marshal(&struct {
		ImageTimeout string `json:"image_timeout"`
		SendTimeout  string `json:"send_timeout"`
		*Alias
	}{
		ImageTimeout: p.ImageTimeout.String(),
		SendTimeout:  p.SendTimeout.String(),
		Alias:        (*Alias)(&p),
	})
}
