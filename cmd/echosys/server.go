package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/evaluation"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/execution"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/ingestion"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/rca"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/api/handlers"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/config"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/cache"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/database"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/ingest"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/metrics"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/server"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/store"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/telemetry"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/llm"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/llm/providers/openaicompat"
)

// API 路由
const (
	routeTraces        = "/api/v1/traces"
	routeAnalysis      = "/api/v1/analysis"
	routeRCA           = "/api/v1/analysis/rca"
	routeEvaluations   = "/api/v1/evaluations"
	routeEvalBatch     = "/api/v1/evaluations/batch"
	routeEvalCriteria  = "/api/v1/evaluations/criteria"
	routeEvalSummary   = "/api/v1/evaluations/summary"
	routeTestExecute   = "/api/v1/tests/execute"
	routeTestBatch     = "/api/v1/tests/batch"
	routeTestSchedules = "/api/v1/tests/schedules"
	routeTestResults   = "/api/v1/tests/results"
	routeIncidents     = "/api/v1/incidents"
	routeSignalsStream = "/api/v1/signals/stream"
	routeVersion       = "/version"
	routeHealth        = "/health"
	routeHealthz       = "/healthz"
	routeReady         = "/ready"
	routeReadyz        = "/readyz"
)

// probePaths 探针路径：跳过认证，日志只记 debug
var probePaths = map[string]struct{}{
	routeHealth:  {},
	routeHealthz: {},
	routeReady:   {},
	routeReadyz:  {},
}

// routePaths 静态路由，指标标签直接使用
var routePaths = map[string]struct{}{
	routeTraces: {}, routeAnalysis: {}, routeRCA: {},
	routeEvaluations: {}, routeEvalBatch: {}, routeEvalCriteria: {}, routeEvalSummary: {},
	routeTestExecute: {}, routeTestBatch: {}, routeTestSchedules: {}, routeTestResults: {},
	routeIncidents: {}, routeSignalsStream: {},
	routeVersion: {}, routeHealth: {}, routeHealthz: {}, routeReady: {}, routeReadyz: {},
}

// skipAuthPaths 不需要认证的路径
func skipAuthPaths() []string {
	paths := []string{routeVersion}
	for p := range probePaths {
		paths = append(paths, p)
	}
	return paths
}

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 持有全部组件，Run 结束后统一释放
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	collector *metrics.Collector
	telemetry *telemetry.Providers
	pool      *database.PoolManager
	cache     *cache.Manager
	store     *store.Store

	scheduler *execution.Scheduler
	consumer  *ingest.Consumer

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 按依赖顺序初始化组件。ctx 控制限流器等后台任务的生命周期。
// Redis 不可用时降级运行：不加分析锁，不缓存 RCA。
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Server, err error) {
	s := &Server{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	// 1. 指标与遥测
	s.collector = metrics.NewCollector("echosys", logger)
	if s.telemetry, err = telemetry.Init(cfg.Telemetry, Version, logger); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// 2. 数据库
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if s.pool, err = database.NewPoolManager(db, database.PoolConfigFrom(cfg.Database), logger, s.collector); err != nil {
		return nil, fmt.Errorf("init database pool: %w", err)
	}
	s.store = store.New(s.pool, logger)
	if cfg.Database.AutoMigrate {
		if err = s.store.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	// 3. 缓存（可选）
	s.cache = s.initCache()

	// 4. 分析链路
	ingestor, err := s.initIngestion()
	if err != nil {
		return nil, err
	}
	evaluator, err := s.initEvaluator()
	if err != nil {
		return nil, err
	}
	provider := s.initLLM()
	analyzer := s.initAnalyzer(provider)

	runner := execution.NewAgent(execution.Config{
		Concurrency: cfg.Scheduler.Concurrency,
		Severity:    store.SeverityMedium,
	}, evaluator, ingestor, analyzer, s.store, logger, execution.WithMetrics(s.collector))

	if cfg.Scheduler.Enabled {
		s.scheduler = execution.NewScheduler(cfg.Scheduler, s.store, runner, logger)
	}

	// 5. Kafka 接入
	if cfg.Kafka.Enabled {
		if s.consumer, err = ingest.NewConsumer(cfg.Kafka, s.store, logger, s.collector); err != nil {
			return nil, fmt.Errorf("init kafka consumer: %w", err)
		}
	}

	// 6. HTTP
	health := handlers.NewHealthHandler(handlers.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, logger)
	s.registerHealthChecks(health, provider)

	hub := handlers.NewSignalHub(logger)
	mux := http.NewServeMux()
	mux.HandleFunc(routeHealth, health.HandleHealth)
	mux.HandleFunc(routeHealthz, health.HandleHealth)
	mux.HandleFunc(routeReady, health.HandleReady)
	mux.HandleFunc(routeReadyz, health.HandleReady)
	mux.HandleFunc(routeVersion, health.HandleVersion)

	mux.Handle(routeTraces, handlers.NewTraceHandler(s.store, logger))
	mux.Handle(routeIncidents, handlers.NewIncidentHandler(s.store, logger))

	analysis := handlers.NewAnalysisHandler(ingestor, analyzer, hub, logger)
	mux.HandleFunc(routeAnalysis, analysis.HandleAnalyze)
	mux.HandleFunc(routeRCA, analysis.HandleRCA)
	mux.HandleFunc(routeSignalsStream, hub.HandleStream)

	evaluations := handlers.NewEvaluationHandler(evaluator, ingestor, logger)
	mux.HandleFunc(routeEvaluations, evaluations.HandleEvaluate)
	mux.HandleFunc(routeEvalBatch, evaluations.HandleBatch)
	mux.HandleFunc(routeEvalCriteria, evaluations.HandleCriteria)

	tests := handlers.NewTestHandler(runner, s.store, logger)
	mux.HandleFunc(routeTestExecute, tests.HandleExecute)
	mux.HandleFunc(routeTestBatch, tests.HandleBatch)
	mux.HandleFunc(routeTestSchedules, tests.HandleSchedules)

	results := handlers.NewResultHandler(s.store, logger)
	mux.HandleFunc(routeTestResults, results.HandleTestResults)
	mux.HandleFunc(routeEvalSummary, results.HandleSummary)

	s.httpManager = server.NewManager("api",
		s.middleware(ctx, mux),
		server.ConfigFor(cfg.Server.HTTPPort, cfg.Server),
		logger,
	)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsManager = server.NewManager("metrics",
		metricsMux,
		server.ConfigFor(cfg.Server.MetricsPort, cfg.Server),
		logger,
	)
	return s, nil
}

// middleware 组装中间件链，第一个在最外层
func (s *Server) middleware(ctx context.Context, h http.Handler) http.Handler {
	sc := s.cfg.Server
	auth := APIKeyAuth(sc.APIKeys, skipAuthPaths(), sc.AllowQueryAPIKey, s.logger)
	if sc.JWT.Enabled() {
		auth = JWTAuth(sc.JWT, skipAuthPaths(), s.logger)
	}

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(sc.CORSAllowedOrigins),
		auth,
	}
	if sc.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(ctx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger))
	}
	return Chain(h, chain...)
}

func (s *Server) initCache() *cache.Manager {
	rc := s.cfg.Redis
	if rc.Addr == "" {
		s.logger.Info("redis not configured, analysis locks and RCA cache disabled")
		return nil
	}
	cc := cache.DefaultConfig()
	cc.Addr = rc.Addr
	cc.Password = rc.Password
	cc.DB = rc.DB
	cc.TLS = rc.TLS
	if rc.PoolSize > 0 {
		cc.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		cc.MinIdleConns = rc.MinIdleConns
	}
	m, err := cache.NewManager(cc, s.logger)
	if err != nil {
		s.logger.Warn("redis unavailable, running without analysis locks and RCA cache",
			zap.String("addr", rc.Addr), zap.Error(err))
		return nil
	}
	return m
}

func (s *Server) initIngestion() (*ingestion.Agent, error) {
	ac := s.cfg.Analysis
	scorer, err := ingestion.NewScorer(ac.DriftScorer)
	if err != nil {
		return nil, fmt.Errorf("init drift scorer: %w", err)
	}
	opts := []ingestion.AgentOption{
		ingestion.WithScorer(scorer),
		ingestion.WithMetrics(s.collector),
	}
	if s.cache != nil {
		opts = append(opts, ingestion.WithLocker(s.cache))
	}
	return ingestion.NewAgent(ingestion.Config{
		InteractionWindow:      ac.InteractionWindow,
		LogWindow:              ac.LogWindow,
		MetricThreshold:        ac.MetricThreshold,
		HallucinationThreshold: ac.HallucinationThreshold,
		PromptDriftThreshold:   ac.PromptDriftThreshold,
		DataDriftThreshold:     ac.DataDriftThreshold,
		BaselineWindow:         ac.BaselineWindow,
		LockTTL:                ac.LockTTL,
	}, s.store, s.logger, opts...), nil
}

func (s *Server) initEvaluator() (*evaluation.Evaluator, error) {
	ec := s.cfg.Evaluation
	criteria := make(map[string]evaluation.Criteria, len(ec.Metrics))
	for name, mc := range ec.Metrics {
		c := evaluation.Criteria{
			EvaluationRules: mc.EvaluationRules,
			DetectionRules:  mc.DetectionRules,
		}
		// 0 表示使用默认阈值
		if mc.Threshold > 0 {
			threshold := mc.Threshold
			c.Threshold = &threshold
		}
		criteria[name] = c
	}
	e, err := evaluation.NewEvaluator(evaluation.Config{
		DefaultThreshold: ec.DefaultThreshold,
		Metrics:          criteria,
	}, s.store, s.logger, evaluation.WithMetrics(s.collector))
	if err != nil {
		return nil, fmt.Errorf("init evaluator: %w", err)
	}
	return e, nil
}

func (s *Server) initLLM() llm.Provider {
	lc := s.cfg.LLM
	base := openaicompat.New(openaicompat.Config{
		ProviderName: lc.Provider,
		APIKey:       lc.APIKey,
		BaseURL:      lc.BaseURL,
		DefaultModel: lc.Model,
		Timeout:      lc.Timeout,
	}, s.logger)

	rc := llm.DefaultResilientConfig()
	rc.Timeout = lc.Timeout
	rc.MaxRetries = lc.MaxRetries
	return llm.NewResilientProvider(base, rc, s.logger)
}

func (s *Server) initAnalyzer(provider llm.Provider) *rca.Analyzer {
	lc := s.cfg.LLM
	opts := []rca.Option{rca.WithMetrics(s.collector)}
	if s.cache != nil && lc.CacheTTL > 0 {
		opts = append(opts, rca.WithCache(s.cache))
	}
	return rca.NewAnalyzer(rca.Config{
		Model:            lc.Model,
		Temperature:      lc.Temperature,
		MaxPayloadTokens: lc.MaxPayloadTokens,
		CacheTTL:         lc.CacheTTL,
	}, provider, s.logger, opts...)
}

func (s *Server) registerHealthChecks(h *handlers.HealthHandler, provider llm.Provider) {
	h.RegisterCheck(handlers.CheckFunc{CheckName: "database", Fn: s.pool.Ping})
	if s.cache != nil {
		h.RegisterCheck(handlers.CheckFunc{CheckName: "redis", Fn: s.cache.Ping})
	}
	// 未配置密钥时不探测上游，RCA 请求会直接失败
	if s.cfg.LLM.APIKey != "" {
		h.RegisterCheck(handlers.CheckFunc{CheckName: "llm", Fn: func(ctx context.Context) error {
			_, err := provider.HealthCheck(ctx)
			return err
		}})
	}
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 启动 HTTP、指标服务以及可选的定时测试和 Kafka 消费，ctx 取消后优雅退出。
// 任一组件异常退出时其余组件随之停止。
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.httpManager.Run(gctx) })
	g.Go(func() error { return s.metricsManager.Run(gctx) })
	if s.scheduler != nil {
		g.Go(func() error { return s.scheduler.Run(gctx) })
	}
	if s.consumer != nil {
		g.Go(func() error { return s.consumer.Run(gctx) })
	}

	s.logger.Info("echosys started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("scheduler", s.scheduler != nil),
		zap.Bool("kafka", s.consumer != nil),
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) close() {
	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.logger.Warn("close kafka consumer", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("close redis", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Warn("close database", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Warn("shutdown telemetry", zap.Error(err))
		}
	}
}
