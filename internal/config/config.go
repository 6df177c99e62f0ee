// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Expansion     ExpansionConfig     `mapstructure:"expansion"`
	Excerpt       ExcerptConfig       `mapstructure:"excerpt"`
	Answer        AnswerConfig        `mapstructure:"answer"`
	Quality       QualityConfig       `mapstructure:"quality"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。身份签发由上游完成，这里只负责校验。
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses     string `mapstructure:"addresses"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	EvidenceIndex string `mapstructure:"evidence_index"`
	LegalIndex    string `mapstructure:"legal_index"`
	Dims          int    `mapstructure:"dims"`
}

// MinIOConfig 存储 MinIO 对象存储的配置，用于给检索结果生成原文件的预签名链接。
type MinIOConfig struct {
	Endpoint             string `mapstructure:"endpoint"`
	AccessKeyID          string `mapstructure:"access_key_id"`
	SecretAccessKey      string `mapstructure:"secret_access_key"`
	UseSSL               bool   `mapstructure:"use_ssl"`
	BucketName           string `mapstructure:"bucket_name"`
	Region               string `mapstructure:"region"`
	PresignExpiryMinutes int    `mapstructure:"presign_expiry_minutes"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	Dimensions  int    `mapstructure:"dimensions"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	BackoffMS   int    `mapstructure:"backoff_ms"`
}

// LLMConfig 存储大语言模型相关的配置。Providers 按顺序构成降级链。
type LLMConfig struct {
	Providers   []LLMProviderConfig `mapstructure:"providers"`
	Generation  LLMGenerationConfig `mapstructure:"generation"`
	MaxAttempts int                 `mapstructure:"max_attempts"`
	BackoffMS   int                 `mapstructure:"backoff_ms"`
}

// LLMProviderConfig 描述降级链中的一个模型提供方及其能力。
type LLMProviderConfig struct {
	Name                string `mapstructure:"name"`
	APIKey              string `mapstructure:"api_key"`
	BaseURL             string `mapstructure:"base_url"`
	Model               string `mapstructure:"model"`
	TokenLimitStyle     string `mapstructure:"token_limit_style"` // max_tokens | max_completion_tokens
	SupportsTemperature bool   `mapstructure:"supports_temperature"`
	SupportsJSONMode    bool   `mapstructure:"supports_json_mode"`
	CostTier            int    `mapstructure:"cost_tier"`
	SpeedTier           int    `mapstructure:"speed_tier"`
	ReliabilityTier     int    `mapstructure:"reliability_tier"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RetrievalConfig 配置三路检索策略。
type RetrievalConfig struct {
	DefaultMaxResults    int     `mapstructure:"default_max_results"`
	MaxResultsCap        int     `mapstructure:"max_results_cap"`
	DefaultMinRelevance  float64 `mapstructure:"default_min_relevance"`
	StrategyTimeoutMS    int     `mapstructure:"strategy_timeout_ms"`
	LexicalBaselineScore float64 `mapstructure:"lexical_baseline_score"`
	MinTermLength        int     `mapstructure:"min_term_length"`
}

// ExpansionConfig 配置概念扩展。
type ExpansionConfig struct {
	ShortQueryThreshold int `mapstructure:"short_query_threshold"`
	TimeoutMS           int `mapstructure:"timeout_ms"`
	CacheTTLMinutes     int `mapstructure:"cache_ttl_minutes"`
}

// ExcerptConfig 配置摘录窗口与高亮标记。
type ExcerptConfig struct {
	Window         int    `mapstructure:"window"`
	Lead           int    `mapstructure:"lead"`
	Ellipsis       string `mapstructure:"ellipsis"`
	HighlightStart string `mapstructure:"highlight_start"`
	HighlightEnd   string `mapstructure:"highlight_end"`
}

// AnswerConfig 配置问答模式。
type AnswerConfig struct {
	ContextLimit         int     `mapstructure:"context_limit"`
	EvidenceLimit        int     `mapstructure:"evidence_limit"`
	MinLegalSimilarity   float64 `mapstructure:"min_legal_similarity"`
	TokenBudget          int     `mapstructure:"token_budget"`
	TokenizerModel       string  `mapstructure:"tokenizer_model"`
	DefaultFreshnessDays float64 `mapstructure:"default_freshness_days"`
	EvidenceBonus        float64 `mapstructure:"evidence_bonus"`
	IntentTimeoutMS      int     `mapstructure:"intent_timeout_ms"`
	ContextTimeoutMS     int     `mapstructure:"context_timeout_ms"`
	GenerationTimeoutMS  int     `mapstructure:"generation_timeout_ms"`
}

// QualityConfig 配置质量记录的落地方式。
type QualityConfig struct {
	Sink    string `mapstructure:"sink"` // kafka | mysql
	Workers int    `mapstructure:"workers"`
}

// Millis 把毫秒配置转换为 time.Duration。
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("kafka.topic", "quality-records")
	v.SetDefault("kafka.group_id", "evidence-rag-quality")
	v.SetDefault("elasticsearch.evidence_index", "evidence_chunks")
	v.SetDefault("elasticsearch.legal_index", "legal_knowledge")
	v.SetDefault("elasticsearch.dims", 1536)
	v.SetDefault("minio.presign_expiry_minutes", 15)
	v.SetDefault("embedding.max_attempts", 3)
	v.SetDefault("embedding.backoff_ms", 200)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.backoff_ms", 500)
	v.SetDefault("retrieval.default_max_results", 10)
	v.SetDefault("retrieval.max_results_cap", 50)
	v.SetDefault("retrieval.default_min_relevance", 0.5)
	v.SetDefault("retrieval.strategy_timeout_ms", 5000)
	v.SetDefault("retrieval.lexical_baseline_score", 0.5)
	v.SetDefault("retrieval.min_term_length", 3)
	v.SetDefault("expansion.short_query_threshold", 15)
	v.SetDefault("expansion.timeout_ms", 3000)
	v.SetDefault("expansion.cache_ttl_minutes", 1440)
	v.SetDefault("excerpt.window", 300)
	v.SetDefault("excerpt.lead", 100)
	v.SetDefault("excerpt.ellipsis", "...")
	v.SetDefault("excerpt.highlight_start", "<mark>")
	v.SetDefault("excerpt.highlight_end", "</mark>")
	v.SetDefault("answer.context_limit", 6)
	v.SetDefault("answer.evidence_limit", 5)
	v.SetDefault("answer.min_legal_similarity", 0.5)
	v.SetDefault("answer.token_budget", 6000)
	v.SetDefault("answer.tokenizer_model", "gpt-4o")
	v.SetDefault("answer.default_freshness_days", 30)
	v.SetDefault("answer.evidence_bonus", 0.1)
	v.SetDefault("answer.intent_timeout_ms", 5000)
	v.SetDefault("answer.context_timeout_ms", 8000)
	v.SetDefault("answer.generation_timeout_ms", 60000)
	v.SetDefault("quality.sink", "kafka")
	v.SetDefault("quality.workers", 4)
}

// Load 从指定路径读取 YAML 配置，允许 EVIDENCE_ 前缀的环境变量覆盖。
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EVIDENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("配置校验失败: %w", err)
	}
	return cfg, nil
}

// Validate 检查会导致运行期行为异常的配置组合。
func (c Config) Validate() error {
	if c.Excerpt.Window <= 2*len([]rune(c.Excerpt.Ellipsis)) {
		return fmt.Errorf("excerpt.window (%d) 必须大于两倍省略号长度", c.Excerpt.Window)
	}
	if c.Excerpt.Lead < 0 || c.Excerpt.Lead >= c.Excerpt.Window {
		return fmt.Errorf("excerpt.lead (%d) 必须位于 [0, window)", c.Excerpt.Lead)
	}
	if c.Retrieval.LexicalBaselineScore < 0 || c.Retrieval.LexicalBaselineScore > 1 {
		return fmt.Errorf("retrieval.lexical_baseline_score 必须位于 [0,1]")
	}
	if c.Retrieval.MaxResultsCap <= 0 {
		return fmt.Errorf("retrieval.max_results_cap 必须为正数")
	}
	if c.Retrieval.StrategyTimeoutMS <= 0 || c.Answer.IntentTimeoutMS <= 0 || c.Answer.GenerationTimeoutMS <= 0 {
		return fmt.Errorf("retrieval.strategy_timeout_ms、answer.intent_timeout_ms 和 answer.generation_timeout_ms 必须为正数")
	}
	// 证据上下文内部会跑检索策略，外层超时必须留出余量，否则单路策略变慢就会变成生成失败
	if c.Answer.ContextTimeoutMS <= c.Retrieval.StrategyTimeoutMS {
		return fmt.Errorf("answer.context_timeout_ms (%d) 必须大于 retrieval.strategy_timeout_ms (%d)", c.Answer.ContextTimeoutMS, c.Retrieval.StrategyTimeoutMS)
	}
	switch c.Quality.Sink {
	case "kafka", "mysql":
	default:
		return fmt.Errorf("未知的 quality.sink: %q", c.Quality.Sink)
	}
	return nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
