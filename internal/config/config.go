// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找
package config

import (
	"fmt"
	"time"

	"kama_call_ring/pkg/constants"

	"github.com/BurntSushi/toml"
)

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName string `toml:"appName"` // 应用名称，用于日志标识等
	Host    string `toml:"host"`    // 服务器监听地址，如 "0.0.0.0"
	Port    int    `toml:"port"`    // 服务器监听端口，如 8000
	Mode    string `toml:"mode"`    // 运行模式：dev 或 release
}

// AccountConfig 本地账号身份
// 一个进程只服务一个本地账号，所有持久化键都以 AccountID 作命名空间
type AccountConfig struct {
	AccountID int64  `toml:"accountId"` // 本地账号编号
	UserID    int64  `toml:"userId"`    // 本地用户 ID
	UserName  string `toml:"userName"`  // 公开用户名（@handle），可为空
	FirstName string `toml:"firstName"` // 名
	LastName  string `toml:"lastName"`  // 姓
}

// MysqlConfig 本地存储层连接配置
type MysqlConfig struct {
	Driver       string `toml:"driver"`       // mysql 或 sqlite
	Host         string `toml:"host"`         // MySQL 服务器地址
	Port         int    `toml:"port"`         // MySQL 端口，默认 3306
	User         string `toml:"user"`         // 数据库用户名
	Password     string `toml:"password"`     // 数据库密码
	DatabaseName string `toml:"databaseName"` // 数据库名称
	Path         string `toml:"path"`         // sqlite 文件路径
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string `toml:"host"`     // Redis 服务器地址
	Port     int    `toml:"port"`     // Redis 端口，默认 6379
	Password string `toml:"password"` // Redis 密码，无密码留空
	Db       int    `toml:"db"`       // Redis 数据库编号，默认 0
	Mode     string `toml:"mode"`     // redis 或 memory（单机调试）
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// KafkaConfig 消息通道配置
type KafkaConfig struct {
	MessageMode  string        `toml:"messageMode"`  // 消息模式："channel" 或 "kafka"
	HostPort     string        `toml:"hostPort"`     // Kafka 服务器地址，如 "localhost:9092"
	ChatTopic    string        `toml:"chatTopic"`    // 入站聊天消息主题
	CommandTopic string        `toml:"commandTopic"` // 出站命令（发送/删除）主题
	AckTopic     string        `toml:"ackTopic"`     // 服务端确认主题
	GroupID      string        `toml:"groupId"`      // 消费组
	Partition    int           `toml:"partition"`    // 创建主题时的分区数
	Timeout      time.Duration `toml:"timeout"`      // 超时时间（秒）
}

// BackendConfig 远端消息后台配置，用于权限解析的远程层
type BackendConfig struct {
	BaseURL string        `toml:"baseUrl"` // 后台地址
	Token   string        `toml:"token"`   // 访问令牌
	Timeout time.Duration `toml:"timeout"` // 请求超时（秒）
}

// RingConfig 响铃与呼叫相关参数
type RingConfig struct {
	HangupCooldownSeconds   int `toml:"hangupCooldownSeconds"`   // 挂断冷却
	InviteAllDelaySeconds   int `toml:"inviteAllDelaySeconds"`   // 发起通话后延迟广播
	CallingRetentionMinutes int `toml:"callingRetentionMinutes"` // 呼叫中条目保留时间
	AckTimeoutSeconds       int `toml:"ackTimeoutSeconds"`       // 命令消息确认超时
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	Secret            string `toml:"secret"`            // JWT 签名密钥，建议 32 字符以上
	AccessTokenExpiry int    `toml:"accessTokenExpiry"` // Access Token 有效期（分钟）
	ClientKey         string `toml:"clientKey"`         // UI 端换取 Token 的接入密钥，为空时不签发
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 雪花算法节点 ID，范围 0-1023
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig"`
	AccountConfig   `toml:"accountConfig"`
	MysqlConfig     `toml:"mysqlConfig"`
	RedisConfig     `toml:"redisConfig"`
	LogConfig       `toml:"logConfig"`
	KafkaConfig     `toml:"kafkaConfig"`
	BackendConfig   `toml:"backendConfig"`
	RingConfig      `toml:"ringConfig"`
	JWTConfig       `toml:"jwtConfig"`
	SnowflakeConfig `toml:"snowflakeConfig"`
}

// config 全局配置单例，延迟加载
var config *Config

// LoadConfig 从多个候选路径加载配置文件
// 按顺序尝试加载，找到第一个可用的配置文件即停止
func LoadConfig() error {
	paths := []string{
		"configs/config_local.toml",
		"configs/config.toml",
		"../../configs/config_local.toml",
		"../../configs/config.toml",
	}

	for _, path := range paths {
		if _, err := toml.DecodeFile(path, config); err == nil {
			return nil
		}
	}

	return fmt.Errorf("could not find configuration file in any of the search paths")
}

// GetConfig 获取全局配置实例（单例模式）
// 首次调用时会自动加载配置文件，找不到文件时全部使用默认值
func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig()
		config.ApplyDefaults()
	}
	return config
}

// ApplyDefaults 为所有零值字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.AppName == "" {
		c.AppName = "kama_call_ring"
	}
	if c.MainConfig.Host == "" {
		c.MainConfig.Host = "0.0.0.0"
	}
	if c.MainConfig.Port == 0 {
		c.MainConfig.Port = 8000
	}
	if c.MainConfig.Mode == "" {
		c.MainConfig.Mode = "dev"
	}
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.Driver == "sqlite" && c.Path == "" {
		c.Path = "call_ring.db"
	}
	if c.RedisConfig.Mode == "" {
		c.RedisConfig.Mode = "memory"
	}
	if c.LogPath == "" {
		c.LogPath = "./logs"
	}
	if c.MessageMode == "" {
		c.MessageMode = "channel"
	}
	if c.ChatTopic == "" {
		c.ChatTopic = "chat_message"
	}
	if c.CommandTopic == "" {
		c.CommandTopic = "call_command"
	}
	if c.AckTopic == "" {
		c.AckTopic = "message_ack"
	}
	if c.GroupID == "" {
		c.GroupID = fmt.Sprintf("call_ring_%d", c.AccountID)
	}
	if c.Partition == 0 {
		c.Partition = 1
	}
	if c.KafkaConfig.Timeout == 0 {
		c.KafkaConfig.Timeout = 1
	}
	if c.BackendConfig.Timeout == 0 {
		c.BackendConfig.Timeout = 10
	}
	if c.HangupCooldownSeconds == 0 {
		c.HangupCooldownSeconds = constants.HANGUP_COOLDOWN_SECONDS
	}
	if c.InviteAllDelaySeconds == 0 {
		c.InviteAllDelaySeconds = constants.INVITE_ALL_DELAY_SECONDS
	}
	if c.CallingRetentionMinutes == 0 {
		c.CallingRetentionMinutes = constants.CALLING_RETENTION_MINUTES
	}
	if c.AckTimeoutSeconds == 0 {
		c.AckTimeoutSeconds = constants.ACK_TIMEOUT_SECONDS
	}
	if c.AccessTokenExpiry == 0 {
		c.AccessTokenExpiry = 60 * 24
	}
}

// DisplayName 本地用户的展示名，格式同聊天客户端的 "名 姓"
func (a AccountConfig) DisplayName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	if a.FirstName == "" {
		return a.LastName
	}
	return a.FirstName + " " + a.LastName
}

// HangupCooldown 挂断冷却时长
func (r RingConfig) HangupCooldown() time.Duration {
	return time.Duration(r.HangupCooldownSeconds) * time.Second
}

// InviteAllDelay 延迟广播时长
func (r RingConfig) InviteAllDelay() time.Duration {
	return time.Duration(r.InviteAllDelaySeconds) * time.Second
}

// CallingRetention 呼叫中条目保留时长
func (r RingConfig) CallingRetention() time.Duration {
	return time.Duration(r.CallingRetentionMinutes) * time.Minute
}

// AckTimeout 命令消息确认超时
func (r RingConfig) AckTimeout() time.Duration {
	return time.Duration(r.AckTimeoutSeconds) * time.Second
}

// RequestTimeout 后台请求超时
func (b BackendConfig) RequestTimeout() time.Duration {
	return b.Timeout * time.Second
}
