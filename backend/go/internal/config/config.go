package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FieldConfig 定义了 Milvus 集合中字段的配置。
type FieldConfig struct {
	Name         string `yaml:"name"`                // 字段名称
	DataType     string `yaml:"dataType"`            // 字段数据类型 (例如: "Int64", "VarChar", "FloatVector")
	IsPrimaryKey bool   `yaml:"isPrimaryKey"`        // 是否为主键
	IsAutoID     bool   `yaml:"isAutoID"`            // 是否自动生成ID
	Dim          int    `yaml:"dim,omitempty"`       // 向量维度 (仅适用于向量类型)
	MaxLength    int    `yaml:"maxLength,omitempty"` // 最大长度 (仅适用于VarChar类型)
}

// IndexConfig 定义了 Milvus 集合中索引的配置。
type IndexConfig struct {
	FieldName  string                 `yaml:"fieldName"`  // 要创建索引的字段名称
	IndexType  string                 `yaml:"indexType"`  // 索引类型 (例如: "IVF_FLAT", "HNSW")
	MetricType string                 `yaml:"metricType"` // 相似度度量类型 (例如: "L2", "COSINE")
	Params     map[string]interface{} `yaml:"params"`     // 索引参数 (例如: {"nlist": 128})
}

// SchemaConfig 定义了 Milvus 集合的 Schema 配置。
type SchemaConfig struct {
	CollectionName string        `yaml:"collectionName"` // 集合名称
	Description    string        `yaml:"description"`    // 集合描述
	VectorField    string        `yaml:"vectorField"`    // 向量字段名称
	Fields         []FieldConfig `yaml:"fields"`         // 字段配置列表
	Index          IndexConfig   `yaml:"index"`          // 索引配置
}

// MilvusConfig 定义了 Milvus 数据库的连接和 Schema 配置。
type MilvusConfig struct {
	Address string       `yaml:"address"` // Milvus 服务地址
	Schema  SchemaConfig `yaml:"schema"`  // Milvus 集合 Schema 配置
}

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

// MinIOConfig 定义了 MinIO 对象存储的连接配置。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Bucket    string `yaml:"bucket"`    // 默认存储桶名称
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address    string `yaml:"address"`    // MongoDB 服务器地址
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // AI 生成审计记录集合
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`     // Kafka Broker 地址列表
	IngestTopic string   `yaml:"ingestTopic"` // 文档向量化任务主题
	EventTopic  string   `yaml:"eventTopic"`  // 案件事件主题
	GroupID     string   `yaml:"groupID"`     // 消费者组
}

// Topics 返回需要自动创建的主题列表。
func (k KafkaConfig) Topics() []string {
	return []string{k.IngestTopic, k.EventTopic}
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	Milvus  MilvusConfig `yaml:"milvus"`  // Milvus 数据库配置
	Redis   RedisConfig  `yaml:"redis"`   // Redis 数据库配置
	MySQL   MySQLConfig  `yaml:"mysql"`   // MySQL 数据库配置
	MinIO   MinIOConfig  `yaml:"minio"`   // MinIO 对象存储配置
	MongoDB MongoConfig  `yaml:"mongodb"` // MongoDB 数据库配置
	Kafka   KafkaConfig  `yaml:"kafka"`   // Kafka 消息队列配置
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// ServerConfig 定义了 HTTP 服务的监听和对外地址。
type ServerConfig struct {
	Address       string `yaml:"address"`       // 监听地址, 例如 ":8080"
	ReadTimeout   string `yaml:"readTimeout"`   // 例如 "15s"
	WriteTimeout  string `yaml:"writeTimeout"`  // 例如 "60s"
	PublicBaseURL string `yaml:"publicBaseURL"` // 生成分享链接时使用的前端地址
	CookieDomain  string `yaml:"cookieDomain"`
	CookieSecure  bool   `yaml:"cookieSecure"`
}

// AuthConfig 用于配置认证方法和相关设置。
type AuthConfig struct {
	Method         string `yaml:"method"`         // 认证方法, "session" 或 "jwt"
	JwtSecret      string `yaml:"jwtSecret"`      // JWT 密钥
	CookieName     string `yaml:"cookieName"`     // session cookie 名称
	TokenTTL       int    `yaml:"tokenTTL"`       // JWT 令牌的有效期（秒）
	SessionTTL     int    `yaml:"sessionTTL"`     // session 的有效期（秒）
	ShareSecret    string `yaml:"shareSecret"`    // 文档分享链接的签名密钥
	ShareTTLHours  int    `yaml:"shareTTLHours"`  // 分享链接默认有效期（小时）
	AILimitPerMin  int    `yaml:"aiLimitPerMin"`  // 每个用户每分钟可调用 AI 接口次数
	AILimitBurst   int    `yaml:"aiLimitBurst"`   // AI 接口突发上限
	BcryptCostHint int    `yaml:"bcryptCostHint"` // 0 使用默认值
}

// ProviderConfig 描述一个 LLM 或 Embedding 提供商。
type ProviderConfig struct {
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseURL"`
}

// LLMConfig 包含了不同LLM提供商的配置。
type LLMConfig struct {
	Provider    string         `yaml:"provider"` // "openai", "gemini", "ollama"
	Temperature float32        `yaml:"temperature"`
	OpenAI      ProviderConfig `yaml:"openai"`
	Gemini      ProviderConfig `yaml:"gemini"`
	Ollama      ProviderConfig `yaml:"ollama"`
}

// Active 返回当前选中提供商的配置。
func (c LLMConfig) Active() ProviderConfig {
	return pickProvider(c.Provider, c.OpenAI, c.Gemini, c.Ollama)
}

// EmbeddingConfig 包含了不同Embedding提供商的配置。
type EmbeddingConfig struct {
	Provider   string         `yaml:"provider"`
	Dimensions int            `yaml:"dimensions"` // 向量维度，用于创建 Milvus 集合
	OpenAI     ProviderConfig `yaml:"openai"`
	Gemini     ProviderConfig `yaml:"gemini"`
	Ollama     ProviderConfig `yaml:"ollama"`
}

// Active 返回当前选中提供商的配置。
func (c EmbeddingConfig) Active() ProviderConfig {
	return pickProvider(c.Provider, c.OpenAI, c.Gemini, c.Ollama)
}

func pickProvider(name string, openai, gemini, ollama ProviderConfig) ProviderConfig {
	switch name {
	case "openai":
		return openai
	case "gemini":
		return gemini
	case "ollama":
		return ollama
	}
	return ProviderConfig{}
}

// ChunkingConfig 控制文本切分与向量化批量大小。
type ChunkingConfig struct {
	Size      int `yaml:"size"`      // 每块最大字符数 (rune)
	Overlap   int `yaml:"overlap"`   // 相邻块重叠字符数
	BatchSize int `yaml:"batchSize"` // 每次 embedding 调用的块数
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// EmailConfig 定义了邮件服务商的 REST 接口配置。
type EmailConfig struct {
	BaseURL string `yaml:"baseURL"`
	APIKey  string `yaml:"apiKey"`
	From    string `yaml:"from"`
}

// ESignConfig 定义了电子签名服务商的配置。
type ESignConfig struct {
	BaseURL       string `yaml:"baseURL"`
	APIKey        string `yaml:"apiKey"`
	WebhookSecret string `yaml:"webhookSecret"`
	ReminderDays  int    `yaml:"reminderDays"` // 超过多少天未签署自动提醒
}

// JobsConfig 定义了定时任务的 cron 表达式。
type JobsConfig struct {
	Enabled           bool   `yaml:"enabled"`
	ExpireSharesSpec  string `yaml:"expireSharesSpec"`
	RemindSignersSpec string `yaml:"remindSignersSpec"`
}

// UploadConfig 定义了文件上传的限制。
type UploadConfig struct {
	MaxBytes       int64    `yaml:"maxBytes"`
	AllowedGlobs   []string `yaml:"allowedGlobs"`   // 例如 "*.pdf", "*.docx"
	AllowedMIMEs   []string `yaml:"allowedMIMEs"`   // 例如 "application/pdf"
	UnioOfficeKey  string   `yaml:"unioOfficeKey"`  // unioffice 计量许可证
	PresignMinutes int      `yaml:"presignMinutes"` // 下载链接有效期
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Logger     LoggerConfig     `yaml:"logger"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Middleware MiddlewareConfig `yaml:"middleware"`
	Email      EmailConfig      `yaml:"email"`
	ESign      ESignConfig      `yaml:"esign"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Uploads    UploadConfig     `yaml:"uploads"`
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了全局按客户端限流的配置。
type RateLimiterConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`  // 每秒速率
	Burst   int     `yaml:"burst"` // 突发容量
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
// 文件中的 ${VAR} 会在解析前用环境变量替换，解析后填充默认值并校验。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	return Parse(yamlFile)
}

// Parse 解析 YAML 内容。
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults 为未设置的字段填充默认值。
func (c *AppConfig) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "case-for-ai"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "15s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "120s"
	}
	if c.Auth.Method == "" {
		c.Auth.Method = "session"
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "cfa_session"
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 7 * 24 * 3600
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * 3600
	}
	if c.Auth.ShareTTLHours == 0 {
		c.Auth.ShareTTLHours = 14 * 24
	}
	if c.Auth.AILimitPerMin == 0 {
		c.Auth.AILimitPerMin = 20
	}
	if c.Auth.AILimitBurst == 0 {
		c.Auth.AILimitBurst = 5
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = c.LLM.Provider
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Auth.ShareSecret == "" {
		c.Auth.ShareSecret = c.Auth.JwtSecret
	}
	if c.Chunking.Size == 0 {
		c.Chunking.Size = 1000
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = 200
	}
	if c.Chunking.BatchSize == 0 {
		c.Chunking.BatchSize = 64
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Databases.Kafka.IngestTopic == "" {
		c.Databases.Kafka.IngestTopic = "document.ingest"
	}
	if c.Databases.Kafka.EventTopic == "" {
		c.Databases.Kafka.EventTopic = "case.event"
	}
	if c.Databases.Kafka.GroupID == "" {
		c.Databases.Kafka.GroupID = "case-for-ai"
	}
	if c.Databases.MongoDB.Collection == "" {
		c.Databases.MongoDB.Collection = "generation_records"
	}
	if c.Databases.Milvus.Schema.CollectionName == "" {
		c.Databases.Milvus.Schema.CollectionName = "case_chunks"
	}
	if c.Databases.Milvus.Schema.VectorField == "" {
		c.Databases.Milvus.Schema.VectorField = "embedding"
	}
	if c.Jobs.ExpireSharesSpec == "" {
		c.Jobs.ExpireSharesSpec = "@hourly"
	}
	if c.Jobs.RemindSignersSpec == "" {
		c.Jobs.RemindSignersSpec = "0 9 * * *"
	}
	if c.ESign.ReminderDays == 0 {
		c.ESign.ReminderDays = 3
	}
	if c.Uploads.MaxBytes == 0 {
		c.Uploads.MaxBytes = 25 << 20
	}
	if len(c.Uploads.AllowedGlobs) == 0 {
		c.Uploads.AllowedGlobs = []string{"*.pdf", "*.docx", "*.xlsx", "*.txt", "*.md", "*.html", "*.{png,jpg,jpeg}"}
	}
	if c.Uploads.PresignMinutes == 0 {
		c.Uploads.PresignMinutes = 15
	}
	if c.Middleware.CircuitBreaker.Timeout == "" {
		c.Middleware.CircuitBreaker.Timeout = "30s"
	}
	if c.Middleware.CircuitBreaker.FailureThreshold == 0 {
		c.Middleware.CircuitBreaker.FailureThreshold = 5
	}
	if c.Middleware.CircuitBreaker.SuccessThreshold == 0 {
		c.Middleware.CircuitBreaker.SuccessThreshold = 1
	}
}

// Validate 校验配置中相互关联的字段。
func (c *AppConfig) Validate() error {
	switch c.Auth.Method {
	case "session", "jwt":
	default:
		return fmt.Errorf("不支持的认证方法: %s", c.Auth.Method)
	}
	if c.Auth.Method == "jwt" && c.Auth.JwtSecret == "" {
		return fmt.Errorf("jwt 认证需要配置 auth.jwtSecret")
	}
	for _, p := range []string{c.LLM.Provider, c.Embedding.Provider} {
		switch p {
		case "openai", "gemini", "ollama":
		default:
			return fmt.Errorf("不支持的模型提供商: %s", p)
		}
	}
	if c.Chunking.Size <= 0 || c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking 配置无效: size=%d overlap=%d", c.Chunking.Size, c.Chunking.Overlap)
	}
	for _, d := range []string{c.Server.ReadTimeout, c.Server.WriteTimeout, c.Middleware.CircuitBreaker.Timeout} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("无效的时长 '%s': %w", d, err)
		}
	}
	return nil
}

// Duration 解析一个已经通过校验的时长字段。
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
