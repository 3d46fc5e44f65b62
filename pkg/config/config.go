package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Milvus  MilvusConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	LLM     LLMConfig
	Search  SearchConfig
	Map     MapConfig
	Engine  EngineConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
	EmbeddingDim   int
}

type SearchConfig struct {
	Enabled    bool
	APIKey     string
	MaxResults int
	TimeoutSec int
}

type MapConfig struct {
	Enabled    bool
	APIKey     string
	BaseURL    string
	MaxResults int
	TimeoutSec int
}

// EngineConfig carries the tunable constants of the evidence-orchestration
// core. None of these may be hardcoded into pipeline logic.
type EngineConfig struct {
	RetrievalTopK      int
	RetrievalStep      int
	MaxRetry           int
	MinDocsRequired    int
	MinRerankScore     float64
	RerankScoreFloor   float64
	VisionConfEnrich   float64
	DefaultRadiusKM    int
	MinRadiusKM        int
	MaxRadiusKM        int
	DefaultResource    string
	WebSearchMaxResult int
	// MapMaxResults is copied from map.maxResults at wiring time so the
	// collector sees a single config struct.
	MapMaxResults int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/rescue-agent")

	viper.SetEnvPrefix("RESCUE_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.LLM.APIKey == "" {
		return nil, fmt.Errorf("llm.apiKey is required")
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "rescue_knowledge")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("sqlite.path", "./data/rescue.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-large")
	viper.SetDefault("llm.embeddingDim", 1536)

	viper.SetDefault("search.enabled", true)
	viper.SetDefault("search.maxResults", 8)
	viper.SetDefault("search.timeoutSec", 10)

	viper.SetDefault("map.enabled", true)
	viper.SetDefault("map.baseURL", "https://restapi.amap.com/v3")
	viper.SetDefault("map.maxResults", 3)
	viper.SetDefault("map.timeoutSec", 10)

	viper.SetDefault("engine.retrievalTopK", 15)
	viper.SetDefault("engine.retrievalStep", 5)
	viper.SetDefault("engine.maxRetry", 2)
	viper.SetDefault("engine.minDocsRequired", 5)
	viper.SetDefault("engine.minRerankScore", 0.55)
	viper.SetDefault("engine.rerankScoreFloor", 0.35)
	viper.SetDefault("engine.visionConfEnrich", 0.6)
	viper.SetDefault("engine.defaultRadiusKM", 10)
	viper.SetDefault("engine.minRadiusKM", 1)
	viper.SetDefault("engine.maxRadiusKM", 20)
	viper.SetDefault("engine.defaultResource", "hospital")
	viper.SetDefault("engine.webSearchMaxResult", 8)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
