package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/evaluation"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/ingestion"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/rca"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/metrics"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/store"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// Outcome statuses.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
	StatusError  = "error"
)

const (
	detailsPassed = "Test passed successfully."
	detailsFailed = "Test failed."

	incidentTitlePrefix = "Test Failure: "
	errNoReport         = "RCA agent did not return a report"
)

// TestConfig describes one test run.
type TestConfig struct {
	TestName         string   `json:"test_name"`
	Instruction      string   `json:"instruction"`
	Agent            string   `json:"agent"`
	Environment      string   `json:"environment"`
	ExpectedBehavior string   `json:"expected_behavior"`
	ModelOutput      string   `json:"model_output,omitempty"`
	Context          []string `json:"context,omitempty"`
	// UserID scopes the ingestion pass run for failed tests; nil analyzes all traces.
	UserID *uint `json:"user_id,omitempty"`
}

// Validate reports every missing required field at once.
func (c TestConfig) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"test_name", c.TestName},
		{"instruction", c.Instruction},
		{"agent", c.Agent},
		{"environment", c.Environment},
		{"expected_behavior", c.ExpectedBehavior},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return types.NewError(types.ErrValidation, "Missing required fields: "+strings.Join(missing, ", ")).
			WithHTTPStatus(400)
	}
	return nil
}

// TestOutcome is the result of one test run.
type TestOutcome struct {
	Status       string                        `json:"status"`
	TestResult   *evaluation.InteractionResult `json:"test_result,omitempty"`
	TestResultID uint                          `json:"test_result_id,omitempty"`
	RCAReport    *rca.Report                   `json:"rca_report,omitempty"`
	IncidentID   uint                          `json:"incident_id,omitempty"`
	Error        string                        `json:"error,omitempty"`
}

// BatchItem pairs a test name with its outcome.
type BatchItem struct {
	TestName string      `json:"test_name"`
	Result   TestOutcome `json:"result"`
}

// Evaluator scores one interaction against a gold standard.
type Evaluator interface {
	EvaluateInteraction(ctx context.Context, query, output string, passages []string, gold *evaluation.GoldStandard) (evaluation.InteractionResult, error)
}

// Ingestor runs an analysis pass over stored traces.
type Ingestor interface {
	ProcessTraces(ctx context.Context, userID *uint) (*ingestion.ProcessedData, error)
}

// Analyzer produces an RCA report for a payload.
type Analyzer interface {
	Analyze(ctx context.Context, payload any) rca.Result
}

// Store persists test results and incidents in one transaction.
type Store interface {
	InTx(ctx context.Context, fn func(*store.Tx) error) error
}

// Config configures an Agent.
type Config struct {
	// Concurrency bounds ExecuteBatch. Values below 1 run tests one at a time.
	Concurrency int
	Severity    string
}

// DefaultConfig returns sequential batches and medium-severity incidents.
func DefaultConfig() Config {
	return Config{Concurrency: 1, Severity: store.SeverityMedium}
}

// Agent executes tests and opens incidents for failures.
type Agent struct {
	cfg       Config
	evaluator Evaluator
	ingestor  Ingestor
	analyzer  Analyzer
	store     Store
	tracer    trace.Tracer
	logger    *zap.Logger
	metrics   *metrics.Collector
	now       func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithMetrics records test run counts on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Agent) { a.metrics = c }
}

// WithClock overrides the time source used for RCA timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// NewAgent creates a test execution agent.
func NewAgent(cfg Config, evaluator Evaluator, ingestor Ingestor, analyzer Analyzer, st Store, logger *zap.Logger, opts ...Option) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Severity == "" {
		cfg.Severity = store.SeverityMedium
	}
	a := &Agent{
		cfg:       cfg,
		evaluator: evaluator,
		ingestor:  ingestor,
		analyzer:  analyzer,
		store:     st,
		tracer:    otel.Tracer("echosys/execution"),
		logger:    logger.With(zap.String("component", "test_execution_agent")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ExecuteTest runs one test. A passing test stores its result. A failing
// test stores its result together with an incident carrying the RCA report,
// or nothing at all when RCA fails.
func (a *Agent) ExecuteTest(ctx context.Context, cfg TestConfig) (out TestOutcome) {
	ctx, span := a.tracer.Start(ctx, "execution.execute_test",
		trace.WithAttributes(attribute.String("test.name", cfg.TestName)))
	defer func() {
		span.SetAttributes(attribute.String("test.status", out.Status))
		if out.Status == StatusError {
			span.SetStatus(codes.Error, out.Error)
		}
		span.End()
		a.metrics.RecordTestRun(out.Status)
	}()

	if err := cfg.Validate(); err != nil {
		a.logger.Warn("invalid test config", zap.String("test", cfg.TestName), zap.Error(err))
		return errorOutcome(err, nil)
	}
	log := a.logger.With(zap.String("test", cfg.TestName), zap.String("agent", cfg.Agent))
	log.Info("executing test", zap.String("environment", cfg.Environment))

	gold := &evaluation.GoldStandard{Input: cfg.Instruction, Output: cfg.ExpectedBehavior}
	result, err := a.evaluator.EvaluateInteraction(ctx, cfg.Instruction, cfg.ModelOutput, cfg.Context, gold)
	if err != nil {
		log.Error("evaluation failed", zap.Error(err))
		return errorOutcome(err, nil)
	}

	if result.Passed() {
		var id uint
		err := a.store.InTx(ctx, func(tx *store.Tx) error {
			tr, err := newTestResult(cfg, result, StatusPassed)
			if err != nil {
				return err
			}
			if err := tx.SaveTestResult(tr); err != nil {
				return err
			}
			id = tr.ID
			return nil
		})
		if err != nil {
			log.Error("save test result", zap.Error(err))
			return errorOutcome(err, &result)
		}
		log.Info("test passed", zap.Uint("test_result_id", id))
		return TestOutcome{Status: StatusPassed, TestResult: &result, TestResultID: id}
	}

	// RCA runs before the transaction opens so no connection is held
	// across the model call.
	report, err := a.rootCause(ctx, cfg, result)
	if err != nil {
		log.Error("root cause analysis failed", zap.Error(err))
		return errorOutcome(err, &result)
	}

	out = TestOutcome{Status: StatusFailed, TestResult: &result, RCAReport: report}
	err = a.store.InTx(ctx, func(tx *store.Tx) error {
		tr, err := newTestResult(cfg, result, StatusFailed)
		if err != nil {
			return err
		}
		if err := tx.SaveTestResult(tr); err != nil {
			return fmt.Errorf("save test result: %w", err)
		}
		incident, err := newIncident(cfg, tr.ID, a.cfg.Severity, report)
		if err != nil {
			return err
		}
		if err := tx.CreateIncident(incident); err != nil {
			return fmt.Errorf("create incident: %w", err)
		}
		detail, err := newRCADetail(incident.ID, report)
		if err != nil {
			return err
		}
		if err := tx.CreateRCADetail(detail); err != nil {
			return fmt.Errorf("create rca detail: %w", err)
		}
		out.TestResultID = tr.ID
		out.IncidentID = incident.ID
		return nil
	})
	if err != nil {
		log.Error("persist failed test", zap.Error(err))
		return errorOutcome(err, &result)
	}
	log.Info("test failed, incident opened", zap.Uint("incident_id", out.IncidentID))
	return out
}

// rcaPayload is the reduced trace data plus the failing test's context.
type rcaPayload struct {
	ingestion.AnalysisPayload
	TestName    string                       `json:"test_name"`
	TestResult  evaluation.InteractionResult `json:"test_result"`
	Environment string                       `json:"environment"`
	Agent       string                       `json:"agent"`
	Timestamp   time.Time                    `json:"timestamp"`
}

// CacheIdentity leaves out the run timestamp so re-runs of the same failure
// share a cached report.
func (p rcaPayload) CacheIdentity() any {
	p.Timestamp = time.Time{}
	return p
}

func (a *Agent) rootCause(ctx context.Context, cfg TestConfig, result evaluation.InteractionResult) (*rca.Report, error) {
	if a.analyzer == nil {
		return nil, types.NewError(types.ErrRCAFailed, "no RCA analyzer configured")
	}
	var processed *ingestion.ProcessedData
	if a.ingestor != nil {
		var err error
		if processed, err = a.ingestor.ProcessTraces(ctx, cfg.UserID); err != nil {
			return nil, fmt.Errorf("ingestion pass: %w", err)
		}
	}

	res := a.analyzer.Analyze(ctx, rcaPayload{
		AnalysisPayload: ingestion.BuildAnalysisPayload(processed),
		TestName:        cfg.TestName,
		TestResult:      result,
		Environment:     cfg.Environment,
		Agent:           cfg.Agent,
		Timestamp:       a.now().UTC(),
	})
	if res.Status == rca.StatusError {
		msg := res.Error
		if msg == "" {
			msg = "Unknown error in RCA analysis"
		}
		return nil, types.NewError(types.ErrRCAFailed, msg)
	}
	if res.Report == nil {
		return nil, types.NewError(types.ErrRCAFailed, errNoReport)
	}
	return res.Report, nil
}

// ExecuteBatch runs configs with bounded concurrency. Results keep input order.
func (a *Agent) ExecuteBatch(ctx context.Context, configs []TestConfig) []BatchItem {
	items := make([]BatchItem, len(configs))
	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)
	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			items[i] = BatchItem{TestName: cfg.TestName, Result: a.ExecuteTest(ctx, cfg)}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func errorOutcome(err error, result *evaluation.InteractionResult) TestOutcome {
	msg := err.Error()
	if te, ok := types.AsError(err); ok {
		msg = te.Message
	}
	return TestOutcome{Status: StatusError, Error: msg, TestResult: result}
}

func newTestResult(cfg TestConfig, result evaluation.InteractionResult, status string) (*store.TestResult, error) {
	encoded, err := store.NewJSON(result)
	if err != nil {
		return nil, fmt.Errorf("encode test result: %w", err)
	}
	details := detailsFailed
	if status == StatusPassed {
		details = detailsPassed
	}
	return &store.TestResult{
		TestName:         cfg.TestName,
		Instruction:      cfg.Instruction,
		Agent:            cfg.Agent,
		Environment:      cfg.Environment,
		ExpectedBehavior: cfg.ExpectedBehavior,
		Status:           status,
		Result:           encoded,
		Details:          details,
	}, nil
}

func newIncident(cfg TestConfig, testResultID uint, severity string, report *rca.Report) (*store.Incident, error) {
	encoded, err := store.NewJSON(report)
	if err != nil {
		return nil, fmt.Errorf("encode rca report: %w", err)
	}
	return &store.Incident{
		Title:        incidentTitlePrefix + cfg.TestName,
		Description:  report.Summary,
		Status:       store.IncidentStatusOpen,
		Severity:     severity,
		Agent:        cfg.Agent,
		TestResultID: &testResultID,
		RCAReport:    encoded,
	}, nil
}

func newRCADetail(incidentID uint, report *rca.Report) (*store.RCADetail, error) {
	factors, err := store.NewJSON(report.ContributingFactors)
	if err != nil {
		return nil, err
	}
	replay, err := store.NewJSON(report.Replay)
	if err != nil {
		return nil, err
	}
	resolution, err := store.NewJSON(report.Resolution)
	if err != nil {
		return nil, err
	}
	return &store.RCADetail{
		IncidentID:          incidentID,
		Summary:             report.Summary,
		RootCause:           report.RootCause,
		ContributingFactors: factors,
		Replay:              replay,
		Resolution:          resolution,
		Status:              store.IncidentStatusOpen,
	}, nil
}
