package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// JSON 是按方言存储的 JSON 列：postgres 为 JSONB，mysql 为 JSON，sqlite 为 TEXT
type JSON json.RawMessage

// NewJSON 序列化 v
func NewJSON(v any) (JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSON(b), nil
}

// Value 实现 driver.Valuer
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan 实现 sql.Scanner
func (j *JSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("store: cannot scan %T into JSON", src)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(b []byte) error {
	*j = append((*j)[:0], b...)
	return nil
}

// Decode 反序列化到 v，空值不做任何事
func (j JSON) Decode(v any) error {
	if len(j) == 0 || string(j) == "null" {
		return nil
	}
	return json.Unmarshal(j, v)
}

// GormDataType 实现 schema.GormDataTypeInterface
func (JSON) GormDataType() string { return "json" }

// GormDBDataType 按方言选择列类型
func (JSON) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	case "mysql":
		return "JSON"
	default:
		return "TEXT"
	}
}

// =============================================================================
// 📦 数据模型
// =============================================================================

// Trace 一条原始 trace 记录。Content 写入后不再修改
type Trace struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          *uint     `gorm:"index" json:"user_id,omitempty"`
	Content         JSON      `gorm:"not null" json:"content"`
	FileName        string    `gorm:"size:255" json:"file_name,omitempty"`
	FileSize        int       `json:"file_size,omitempty"`
	AnalysisResults JSON      `json:"analysis_results,omitempty"`
	Status          string    `gorm:"size:32;default:pending" json:"status"`
	Duration        *float64  `json:"duration,omitempty"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Trace) TableName() string { return "traces" }

// Raw 转换为未校验的 trace 行
func (t Trace) Raw() types.RawTrace {
	return types.RawTrace{
		ID:        t.ID,
		UserID:    t.UserID,
		CreatedAt: t.CreatedAt,
		Status:    t.Status,
		Duration:  t.Duration,
		Content:   json.RawMessage(t.Content),
	}
}

// Trace 状态
const (
	TraceStatusPending   = "pending"
	TraceStatusAnalyzing = "analyzing"
	TraceStatusCompleted = "completed"
	TraceStatusFailed    = "failed"
)

// TestResult 一次测试执行的结果
type TestResult struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	TestName         string    `gorm:"size:255;not null;index" json:"test_name"`
	Instruction      string    `gorm:"type:text" json:"instruction"`
	Agent            string    `gorm:"size:255" json:"agent"`
	Environment      string    `gorm:"size:255" json:"environment"`
	ExpectedBehavior string    `gorm:"type:text" json:"expected_behavior"`
	Status           string    `gorm:"size:32;not null" json:"status"`
	Result           JSON      `json:"result"`
	Details          string    `gorm:"type:text" json:"details"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (TestResult) TableName() string { return "test_results" }

// 事故状态与严重度
const (
	IncidentStatusOpen     = "open"
	IncidentStatusResolved = "resolved"

	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Incident 由失败测试生成的事故，携带 RCA 报告
type Incident struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	Status       string    `gorm:"size:32;not null;index" json:"status"`
	Severity     string    `gorm:"size:32;not null" json:"severity"`
	Impact       int       `gorm:"default:0" json:"impact"`
	Agent        string    `gorm:"size:255" json:"agent"`
	TestResultID *uint     `gorm:"index" json:"test_result_id,omitempty"`
	RCAReport    JSON      `json:"rca_report"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	TestResult *TestResult `gorm:"foreignKey:TestResultID" json:"test_result,omitempty"`
}

func (Incident) TableName() string { return "incidents" }

// RCADetail 事故 RCA 报告的展开形式
type RCADetail struct {
	ID                  uint   `gorm:"primaryKey" json:"id"`
	IncidentID          uint   `gorm:"not null;index" json:"incident_id"`
	Summary             string `gorm:"type:text" json:"summary"`
	RootCause           string `gorm:"type:text" json:"root_cause"`
	ContributingFactors JSON   `json:"contributing_factors"`
	Replay              JSON   `json:"replay"`
	Resolution          JSON   `json:"resolution"`
	Status              string `gorm:"size:32" json:"status"`

	Incident *Incident `gorm:"foreignKey:IncidentID" json:"-"`
}

func (RCADetail) TableName() string { return "rca_details" }

// 定时测试的日期与时间格式
const (
	ScheduleDateLayout = "2006-01-02"
	ScheduleTimeLayout = "15:04"
)

// TestSchedule 定时执行的测试。Config 保存完整的测试配置
type TestSchedule struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Date        string     `gorm:"column:run_date;size:10;not null;index:idx_schedule_due" json:"date"`
	Time        string     `gorm:"column:run_time;size:5;not null;index:idx_schedule_due" json:"time"`
	TestName    string     `gorm:"size:255;not null" json:"test_name"`
	Description string     `gorm:"size:1024" json:"description"`
	Tags        string     `gorm:"size:1024" json:"-"`
	Config      JSON       `json:"config"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (TestSchedule) TableName() string { return "test_schedules" }

// TagList 返回去空白后的标签列表
func (s TestSchedule) TagList() []string {
	var tags []string
	for _, t := range strings.Split(s.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// SetTags 以逗号拼接保存标签
func (s *TestSchedule) SetTags(tags []string) {
	s.Tags = strings.Join(tags, ",")
}

// RunAt 解析计划执行时间（UTC）
func (s TestSchedule) RunAt() (time.Time, error) {
	return time.ParseInLocation(ScheduleDateLayout+" "+ScheduleTimeLayout, s.Date+" "+s.Time, time.UTC)
}

// MetricSummary 用户维度的指标配置与最近一次评估汇总
type MetricSummary struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_metric_user_name" json:"user_id"`
	Name        string    `gorm:"size:255;not null;uniqueIndex:idx_metric_user_name" json:"name"`
	Description string    `gorm:"size:1024" json:"description"`
	Config      JSON      `json:"config"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (MetricSummary) TableName() string { return "metric_summaries" }

// Models 返回全部模型，供 AutoMigrate 使用
func Models() []any {
	return []any{&Trace{}, &TestResult{}, &Incident{}, &RCADetail{}, &TestSchedule{}, &MetricSummary{}}
}
