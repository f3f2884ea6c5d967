// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf = Default()

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Companion     CompanionConfig     `mapstructure:"companion"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	// Driver 取值 mysql 或 sqlite，sqlite 用于本地开发。
	Driver string       `mapstructure:"driver"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SQLiteConfig 存储 SQLite 数据库文件路径。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LLMConfig 存储远程生成模型的配置。BaseURL 指向任意 OpenAI 兼容的端点，
// 例如 Gemini 的 https://generativelanguage.googleapis.com/v1beta/openai/。
type LLMConfig struct {
	APIKey         string              `mapstructure:"api_key"`
	BaseURL        string              `mapstructure:"base_url"`
	Model          string              `mapstructure:"model"`
	TimeoutSeconds int                 `mapstructure:"timeout_seconds"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// Timeout 返回单次远程调用的超时时间，未配置时为 10 秒。
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Enabled 表示远程模型的必要参数是否齐全。
func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// CompanionConfig 控制回复编排的行为。
type CompanionConfig struct {
	// Mode 取值 remote（远程模型 + 规则兜底）或 rule_based（只用规则回复）。
	Mode               string        `mapstructure:"mode"`
	TimeTagProbability float64       `mapstructure:"time_tag_probability"`
	CheckInProbability float64       `mapstructure:"check_in_probability"`
	MaxReplyChars      int           `mapstructure:"max_reply_chars"`
	ReplayLimit        int           `mapstructure:"replay_limit"`
	Session            SessionConfig `mapstructure:"session"`
}

// SessionConfig 控制会话上下文的存储与淘汰。
type SessionConfig struct {
	// Store 取值 memory 或 redis。
	Store         string `mapstructure:"store"`
	MaxAgeMinutes int    `mapstructure:"max_age_minutes"`
	MaxSize       int    `mapstructure:"max_size"`
	MaxTurns      int    `mapstructure:"max_turns"`
}

// MaxAge 返回会话上下文的最长存活时间。
func (c SessionConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeMinutes) * time.Minute
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// Default 返回一份带默认值的配置，配置文件中缺失的键保留这些值。
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080", Mode: "release"},
		Database: DatabaseConfig{
			Driver: "mysql",
			SQLite: SQLiteConfig{Path: "data/companion.db"},
			Redis:  RedisConfig{Addr: "localhost:6379"},
		},
		JWT: JWTConfig{AccessTokenExpireHours: 24, RefreshTokenExpireDays: 7},
		Log: LogConfig{Level: "info", Format: "json"},
		LLM: LLMConfig{
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:          "gemini-1.5-flash",
			TimeoutSeconds: 10,
		},
		Companion: CompanionConfig{
			Mode:               "remote",
			TimeTagProbability: 0.3,
			CheckInProbability: 0.2,
			MaxReplyChars:      300,
			ReplayLimit:        20,
			Session: SessionConfig{
				Store:         "memory",
				MaxAgeMinutes: 120,
				MaxSize:       10000,
				MaxTurns:      40,
			},
		},
		Kafka:         KafkaConfig{Topic: "companion-transcript-export", GroupID: "companion-go-consumer"},
		Elasticsearch: ElasticsearchConfig{IndexName: "companion_transcripts"},
	}
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
// 环境变量（如 LLM_API_KEY、JWT_SECRET）会覆盖文件中的同名键。
func Init(configPath string) {
	// .env 可选，不存在时只使用系统环境变量
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	conf := Default()
	if err := v.Unmarshal(&conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
	Conf = conf
}
