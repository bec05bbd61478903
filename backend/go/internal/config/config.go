package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 存储后端驱动名称。
const (
	StorageFile  = "file"
	StorageRedis = "redis"
	StorageMongo = "mongo"
	StorageMySQL = "mysql"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MySQLConfig 定义了 MySQL 数据库的连接配置。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address  string `yaml:"address"`  // MongoDB 连接 URI
	Username string `yaml:"username"` // 用户名
	Password string `yaml:"password"` // 密码
	Database string `yaml:"database"` // 数据库名称
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
// Brokers 为空时不发布对话事件。
type KafkaConfig struct {
	Brokers   []string `yaml:"brokers"`   // Kafka Broker 地址列表
	TurnTopic string   `yaml:"turnTopic"` // 对话事件主题
}

// DatabaseConfigs 包含所有外部存储的配置。
type DatabaseConfigs struct {
	Redis   RedisConfig `yaml:"redis"`   // Redis 数据库配置
	MySQL   MySQLConfig `yaml:"mysql"`   // MySQL 数据库配置
	MongoDB MongoConfig `yaml:"mongodb"` // MongoDB 数据库配置
	Kafka   KafkaConfig `yaml:"kafka"`   // Kafka 消息队列配置
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// ServerConfig 定义了 HTTP 服务的监听配置。
type ServerConfig struct {
	Address         string `yaml:"address"`         // 监听地址，例如 ":3001"
	ShutdownTimeout string `yaml:"shutdownTimeout"` // 优雅关闭的等待时间，例如 "10s"
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// StorageConfig 选择 Profile 与 ChatLog 的持久化后端。
type StorageConfig struct {
	Driver    string `yaml:"driver"`    // "file", "redis", "mongo" 或 "mysql"
	DataDir   string `yaml:"dataDir"`   // file 驱动的数据目录
	KeyPrefix string `yaml:"keyPrefix"` // redis 驱动的键前缀
}

// GeminiConfig 包含了 Gemini 模型的配置。
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"` // Gemini API 密钥
	Model  string `yaml:"model"`  // Gemini 模型名称
}

// OllamaConfig 包含了本地 Ollama 服务的配置。
type OllamaConfig struct {
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

// OpenAIConfig 包含了 OpenAI 兼容接口的配置。
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

// CircuitBreakerConfig 定义了补全服务熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"` // 连续失败多少次后打开熔断器
	HalfOpenRequests uint32 `yaml:"halfOpenRequests"` // 半开状态允许通过的请求数
	Timeout          string `yaml:"timeout"`          // 打开状态持续时间，例如 "30s"
}

// LLMConfig 包含了补全服务的配置。
type LLMConfig struct {
	Provider       string               `yaml:"provider"`   // "gemini", "ollama" 或 "openai"
	Timeout        string               `yaml:"timeout"`    // 单次补全调用的超时时间
	MaxRetries     int                  `yaml:"maxRetries"` // 失败后的最大重试次数，0 表示不重试
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	Gemini         GeminiConfig         `yaml:"gemini"`
	Ollama         OllamaConfig         `yaml:"ollama"`
	OpenAI         OpenAIConfig         `yaml:"openai"`
}

// ConversationConfig 控制单轮对话的行为。
type ConversationConfig struct {
	ExtractionTimeout     string `yaml:"extractionTimeout"`     // 事实抽取阶段的超时时间
	FallbackNoResult      string `yaml:"fallbackNoResult"`      // 补全服务没有返回内容时的回复
	FallbackError         string `yaml:"fallbackError"`         // 补全服务调用出错时的回复
	ProtectOnboardingKeys bool   `yaml:"protectOnboardingKeys"` // 为 true 时抽取的事实不覆盖已有答案
}

// RateLimiterConfig 定义了按客户端限流的配置。
type RateLimiterConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`  // 每秒补充的令牌数
	Burst   int     `yaml:"burst"` // 令牌桶容量
}

// CORSConfig 定义了跨域访问的配置。
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter RateLimiterConfig `yaml:"rateLimiter"`
	CORS        CORSConfig        `yaml:"cors"`
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App          AppInfo            `yaml:"app"`
	Server       ServerConfig       `yaml:"server"`
	Logger       LoggerConfig       `yaml:"logger"`
	LLM          LLMConfig          `yaml:"llm"`
	Storage      StorageConfig      `yaml:"storage"`
	Databases    DatabaseConfigs    `yaml:"databases"`
	Conversation ConversationConfig `yaml:"conversation"`
	Middleware   MiddlewareConfig   `yaml:"middleware"`
}

// Default fallback replies used when the completion service cannot answer.
const (
	DefaultFallbackNoResult = "I'm not sure what to say to that right now. Could you try saying it another way?"
	DefaultFallbackError    = "Sorry, I'm having trouble responding at the moment. Please try again in a little while."
)

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
// 解析后依次应用默认值和环境变量覆盖，最后进行校验。
func LoadConfig(path string) (*AppConfig, error) {
	// 读取 YAML 文件内容。
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.ApplyDefaults()
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func (c *AppConfig) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "persona_service"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":3001"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Timeout == "" {
		c.LLM.Timeout = "30s"
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = "gemini-pro"
	}
	if c.LLM.CircuitBreaker.FailureThreshold == 0 {
		c.LLM.CircuitBreaker.FailureThreshold = 5
	}
	if c.LLM.CircuitBreaker.HalfOpenRequests == 0 {
		c.LLM.CircuitBreaker.HalfOpenRequests = 1
	}
	if c.LLM.CircuitBreaker.Timeout == "" {
		c.LLM.CircuitBreaker.Timeout = "30s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageFile
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "persona"
	}
	if c.Databases.MongoDB.Database == "" {
		c.Databases.MongoDB.Database = "persona"
	}
	if c.Databases.Kafka.TurnTopic == "" {
		c.Databases.Kafka.TurnTopic = "persona_turns"
	}
	if c.Conversation.ExtractionTimeout == "" {
		c.Conversation.ExtractionTimeout = "15s"
	}
	if c.Conversation.FallbackNoResult == "" {
		c.Conversation.FallbackNoResult = DefaultFallbackNoResult
	}
	if c.Conversation.FallbackError == "" {
		c.Conversation.FallbackError = DefaultFallbackError
	}
	if c.Middleware.RateLimiter.Rate == 0 {
		c.Middleware.RateLimiter.Rate = 5
	}
	if c.Middleware.RateLimiter.Burst == 0 {
		c.Middleware.RateLimiter.Burst = 10
	}
	if len(c.Middleware.CORS.AllowedOrigins) == 0 {
		c.Middleware.CORS.AllowedOrigins = []string{"*"}
	}
}

// ApplyEnv overlays the environment variables the service has always honoured.
// lookup is usually os.LookupEnv.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) {
	if port, ok := lookup("PORT"); ok && port != "" {
		c.Server.Address = ":" + strings.TrimPrefix(port, ":")
	}
	if key, ok := lookup("GEMINI_API_KEY"); ok && key != "" {
		c.LLM.Gemini.APIKey = key
	}
	if dir, ok := lookup("PERSONA_DATA_DIR"); ok && dir != "" {
		c.Storage.DataDir = dir
	}
	if driver, ok := lookup("PERSONA_STORAGE_DRIVER"); ok && driver != "" {
		c.Storage.Driver = driver
	}
}

// Validate reports the first invalid setting.
func (c *AppConfig) Validate() error {
	switch c.Storage.Driver {
	case StorageFile, StorageRedis, StorageMongo, StorageMySQL:
	default:
		return fmt.Errorf("不支持的存储驱动: %q", c.Storage.Driver)
	}
	switch c.LLM.Provider {
	case "gemini", "ollama", "openai":
	default:
		return fmt.Errorf("不支持的 LLM 提供商: %q", c.LLM.Provider)
	}
	if c.LLM.MaxRetries < 0 {
		return errors.New("llm.maxRetries 不能为负数")
	}
	durations := map[string]string{
		"server.shutdownTimeout":         c.Server.ShutdownTimeout,
		"llm.timeout":                    c.LLM.Timeout,
		"llm.circuitBreaker.timeout":     c.LLM.CircuitBreaker.Timeout,
		"conversation.extractionTimeout": c.Conversation.ExtractionTimeout,
	}
	for field, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s 不是合法的时间长度: %w", field, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s 必须大于 0", field)
		}
	}
	return nil
}

// durationOrZero parses a duration that Validate has already accepted; invalid input yields 0.
func durationOrZero(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

// ShutdownTimeoutDuration returns the graceful shutdown window.
func (c ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return durationOrZero(c.ShutdownTimeout)
}

// TimeoutDuration returns the per-call completion timeout.
func (c LLMConfig) TimeoutDuration() time.Duration {
	return durationOrZero(c.Timeout)
}

// TimeoutDuration returns how long the breaker stays open.
func (c CircuitBreakerConfig) TimeoutDuration() time.Duration {
	return durationOrZero(c.Timeout)
}

// ExtractionTimeoutDuration bounds the fact extraction stage of a turn.
func (c ConversationConfig) ExtractionTimeoutDuration() time.Duration {
	return durationOrZero(c.ExtractionTimeout)
}
