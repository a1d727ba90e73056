// =============================================================================
// 📦 echosys 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		LLM:        DefaultLLMConfig(),
		Analysis:   DefaultAnalysisConfig(),
		Evaluation: DefaultEvaluationConfig(),
		Kafka:      DefaultKafkaConfig(),
		Scheduler:  DefaultSchedulerConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8000,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:              "sqlite",
		Name:                "echosys.db",
		SSLMode:             "disable",
		MaxOpenConns:        25,
		MaxIdleConns:        5,
		ConnMaxLifetime:     5 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
		AutoMigrate:         true,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:         "openai",
		BaseURL:          "https://api.openai.com",
		Model:            "gpt-4",
		Temperature:      0,
		Timeout:          2 * time.Minute,
		MaxRetries:       3,
		MaxPayloadTokens: 6000,
		CacheTTL:         24 * time.Hour,
	}
}

// DefaultAnalysisConfig 返回默认分析配置
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		InteractionWindow:      300 * time.Second,
		LogWindow:              60 * time.Second,
		MetricThreshold:        0.1,
		HallucinationThreshold: 0.7,
		PromptDriftThreshold:   0.3,
		DataDriftThreshold:     0.2,
		BaselineWindow:         7 * 24 * time.Hour,
		DriftScorer:            "neutral",
		LockTTL:                5 * time.Minute,
	}
}

// DefaultEvaluationConfig 返回默认评估配置，启用 answer_relevancy、faithfulness、hallucination
func DefaultEvaluationConfig() EvaluationConfig {
	return EvaluationConfig{
		DefaultThreshold: 0.7,
		Metrics: map[string]MetricCriteriaConfig{
			"answer_relevancy": {Threshold: 0.7},
			"faithfulness":     {Threshold: 0.7},
			"hallucination":    {Threshold: 0.7},
		},
	}
}

// DefaultKafkaConfig 返回默认 Kafka 配置
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Enabled:       false,
		Topic:         "echosys.traces",
		ConsumerGroup: "echosys-ingest",
		ClientID:      "echosys",
		Version:       "2.8.0",
		Timeout:       30 * time.Second,
	}
}

// DefaultSchedulerConfig 返回默认定时测试配置
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:      false,
		PollInterval: time.Minute,
		Concurrency:  1,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "echosys",
		SampleRate:   0.1,
	}
}
