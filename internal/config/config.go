package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP API 服务器的监听配置
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// DatabaseConfig 定义 SQLite 数据库配置
//
// 队列引擎要求单写者、文件型的事务存储，认领协议的正确性
// 依赖这一点，因此只支持 SQLite。
type DatabaseConfig struct {
	Path        string        // 数据库文件路径，默认 "data/outbox.db"
	BusyTimeout time.Duration // SQLITE_BUSY 等待时间，默认 5s
}

// QueueConfig 定义队列与重试策略配置
type QueueConfig struct {
	PollInterval     time.Duration // worker 轮询间隔，默认 5s
	MaxRetries       int           // 最大重试次数，默认 5
	RetryBaseSeconds int           // 退避基数（秒），默认 120
	RetryMaxSeconds  int           // 退避上限（秒），默认 3600
	BatchSize        int           // 单次认领批大小，默认 10
	RecoverAfter     time.Duration // sending 状态超过该时长视为投递中断，默认 5*PollInterval
	MaxConcurrency   int           // 单批并行投递数上限，默认 4
}

// RetentionConfig 定义终态消息的保留策略
type RetentionConfig struct {
	Days          int           // 保留天数，默认 30
	SweepInterval time.Duration // 清理任务执行间隔，默认 1h
}

// BlobConfig 定义附件 blob 存储配置
type BlobConfig struct {
	Directory string // blob 根目录，默认 "data/blobs"
	MaxSizeMB int    // 单个附件大小上限（MB），默认 25
}

// MailConfig 定义出站 SMTP 配置
//
// Server 为空时投递尝试会确定性失败（消耗一次重试），
// 而不是让 worker 崩溃。
type MailConfig struct {
	Server        string        // SMTP 服务器地址
	Port          int           // SMTP 端口，默认 587
	UseStartTLS   bool          // 是否使用 STARTTLS，默认 true
	Username      string        // SMTP 认证用户名，可为空
	Password      string        // SMTP 认证密码，可为空
	DefaultSender string        // 默认发件人地址
	Timeout       time.Duration // 单条 SMTP 命令超时，默认 30s
	MaxPerSecond  int           // 出站投递速率上限（条/秒），0 表示不限
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 彩色输出与详细堆栈
	File        string // 日志文件路径，空表示仅输出到 stdout
}

// CORSConfig 定义跨域资源共享配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// Config 系统配置根结构体
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Queue     QueueConfig
	Retention RetentionConfig
	Blobs     BlobConfig
	Mail      MailConfig
	Log       LogConfig
	CORS      CORSConfig
}

// Load 从环境变量和 .env 文件加载配置
//
// 加载优先级（从高到低）：
//  1. 系统环境变量（前缀 OUTBOX_，如 OUTBOX_QUEUE_BATCH_SIZE）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 队列、保留与 blob 相关的键还可以被 app_setting 表在运行期覆盖，
// 见 internal/settings。
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("outbox")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.path", "data/outbox.db")
	viper.SetDefault("database.busy_timeout", "5s")
	viper.SetDefault("queue.poll_interval", "5s")
	viper.SetDefault("queue.max_retries", 5)
	viper.SetDefault("queue.retry_base_seconds", 120)
	viper.SetDefault("queue.retry_max_seconds", 3600)
	viper.SetDefault("queue.batch_size", 10)
	viper.SetDefault("queue.recover_after", "")
	viper.SetDefault("queue.max_concurrency", 4)
	viper.SetDefault("retention.days", 30)
	viper.SetDefault("retention.sweep_interval", "1h")
	viper.SetDefault("blobs.directory", "data/blobs")
	viper.SetDefault("blobs.max_size_mb", 25)
	viper.SetDefault("mail.smtp_server", "")
	viper.SetDefault("mail.smtp_port", 587)
	viper.SetDefault("mail.smtp_use_tls", true)
	viper.SetDefault("mail.smtp_username", "")
	viper.SetDefault("mail.smtp_password", "")
	viper.SetDefault("mail.default_sender", "")
	viper.SetDefault("mail.timeout", "30s")
	viper.SetDefault("mail.max_per_second", 0)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("cors.allowed_origins", "*")

	pollInterval := parseDuration(viper.GetString("queue.poll_interval"), 5*time.Second)
	recoverAfter := parseDuration(viper.GetString("queue.recover_after"), 5*pollInterval)

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Database: DatabaseConfig{
			Path:        viper.GetString("database.path"),
			BusyTimeout: parseDuration(viper.GetString("database.busy_timeout"), 5*time.Second),
		},
		Queue: QueueConfig{
			PollInterval:     pollInterval,
			MaxRetries:       viper.GetInt("queue.max_retries"),
			RetryBaseSeconds: viper.GetInt("queue.retry_base_seconds"),
			RetryMaxSeconds:  viper.GetInt("queue.retry_max_seconds"),
			BatchSize:        viper.GetInt("queue.batch_size"),
			RecoverAfter:     recoverAfter,
			MaxConcurrency:   viper.GetInt("queue.max_concurrency"),
		},
		Retention: RetentionConfig{
			Days:          viper.GetInt("retention.days"),
			SweepInterval: parseDuration(viper.GetString("retention.sweep_interval"), time.Hour),
		},
		Blobs: BlobConfig{
			Directory: viper.GetString("blobs.directory"),
			MaxSizeMB: viper.GetInt("blobs.max_size_mb"),
		},
		Mail: MailConfig{
			Server:        viper.GetString("mail.smtp_server"),
			Port:          viper.GetInt("mail.smtp_port"),
			UseStartTLS:   viper.GetBool("mail.smtp_use_tls"),
			Username:      viper.GetString("mail.smtp_username"),
			Password:      viper.GetString("mail.smtp_password"),
			DefaultSender: viper.GetString("mail.default_sender"),
			Timeout:       parseDuration(viper.GetString("mail.timeout"), 30*time.Second),
			MaxPerSecond:  viper.GetInt("mail.max_per_second"),
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseList(viper.GetString("cors.allowed_origins")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate 基本合法性检查
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must be >= 0")
	}
	if c.Queue.RetryBaseSeconds <= 0 || c.Queue.RetryMaxSeconds <= 0 {
		return fmt.Errorf("retry backoff seconds must be positive")
	}
	if c.Queue.RetryMaxSeconds < c.Queue.RetryBaseSeconds {
		return fmt.Errorf("queue.retry_max_seconds must be >= queue.retry_base_seconds")
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive")
	}
	if c.Queue.MaxConcurrency <= 0 {
		return fmt.Errorf("queue.max_concurrency must be positive")
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be positive")
	}
	if c.Blobs.MaxSizeMB <= 0 {
		return fmt.Errorf("blobs.max_size_mb must be positive")
	}
	return nil
}

// parseDuration 解析时长字符串，失败时返回默认值
func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件（可选，静默失败）
//
// 依次尝试当前目录与上一级目录，方便在 cmd/ 子目录下运行。
func loadEnvFile() {
	candidates := []string{".env"}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(wd), ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}
