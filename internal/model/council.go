package model

import (
	"time"
)

// 咨询状态
const (
	ConsultationStatusRunning   = "running"
	ConsultationStatusCompleted = "completed"
	ConsultationStatusDegraded  = "degraded"
	ConsultationStatusFailed    = "failed"
)

// Consultation 一次议会咨询，组装完成后不再修改
// 不保存原始权重数值，只保存定性的 emphasis
type Consultation struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	CallerKey     string     `json:"-" gorm:"size:255;index"`
	Question      string     `json:"question" gorm:"type:text;not null"`
	Context       string     `json:"context" gorm:"type:text"` // JSON
	Lineup        string     `json:"lineup" gorm:"type:text"`  // JSON，仅角色与位置
	PresetID      string     `json:"preset_id" gorm:"size:100"`
	Status        string     `json:"status" gorm:"size:20;default:running;index"` // running, completed, degraded, failed
	Consensus     string     `json:"consensus" gorm:"type:text"`                  // JSON
	Emphasis      string     `json:"emphasis" gorm:"type:text"`                   // JSON，角色 -> 定性影响力
	AppliedRules  string     `json:"applied_rules" gorm:"type:text"`              // JSON，仅关键词与角色
	SchemaVersion string     `json:"schema_version" gorm:"size:50"`
	PromptVersion string     `json:"prompt_version" gorm:"size:50"`
	Locale        string     `json:"locale" gorm:"size:20"`
	Backend       string     `json:"backend" gorm:"size:50"`
	ErrorKind     string     `json:"error_kind" gorm:"size:50"`
	ErrorMsg      string     `json:"error_msg" gorm:"size:1000"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// RoleOutputRecord 单个角色的输出，(consultation_id, role) 唯一
type RoleOutputRecord struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ConsultationID string    `json:"consultation_id" gorm:"size:36;not null;uniqueIndex:idx_role_outputs_consultation_role"`
	Role           string    `json:"role" gorm:"size:50;not null;uniqueIndex:idx_role_outputs_consultation_role"`
	Status         string    `json:"status" gorm:"size:20"`   // ok, failed
	Output         string    `json:"output" gorm:"type:text"` // JSON
	FailureKind    string    `json:"failure_kind" gorm:"size:50"`
	FailureMsg     string    `json:"failure_msg" gorm:"size:1000"`
	Repaired       bool      `json:"repaired"`
	LatencyMs      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (RoleOutputRecord) TableName() string {
	return "role_outputs"
}

// CostRecord 每次生成调用的用量与成本估算
type CostRecord struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	ConsultationID   string    `json:"consultation_id" gorm:"size:36;index"`
	Label            string    `json:"label" gorm:"size:100"` // 角色或 assembler
	Backend          string    `json:"backend" gorm:"size:50"`
	Model            string    `json:"model" gorm:"size:255"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CostUSD          float64   `json:"cost_usd"`
	Repair           bool      `json:"repair"`
	Error            string    `json:"error" gorm:"size:1000"`
	CreatedAt        time.Time `json:"created_at" gorm:"index"`
}

// AuditEntry 只追加的签名审计记录
type AuditEntry struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	ConsultationID string    `json:"consultation_id" gorm:"size:36;index"`
	Partition      string    `json:"partition" gorm:"column:day_partition;size:10;index"` // yyyy-mm-dd
	Kind           string    `json:"kind" gorm:"size:50"`
	Payload        string    `json:"payload" gorm:"type:text"` // 规范化 JSON
	Diff           string    `json:"diff" gorm:"type:text"`
	Signature      string    `json:"signature" gorm:"size:64"`
	CreatedAt      time.Time `json:"created_at"`
}

// RateLimitCounter 限流窗口计数，过期后视为不存在
type RateLimitCounter struct {
	Key       string    `json:"key" gorm:"primaryKey;size:255"`
	Value     int64     `json:"value"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
}

// HeuristicRule 关键词到角色的权重调整规则
type HeuristicRule struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Locale    string    `json:"locale" gorm:"size:20;default:'*';uniqueIndex:idx_heuristic_rules_key"`
	Keyword   string    `json:"keyword" gorm:"size:100;not null;uniqueIndex:idx_heuristic_rules_key"`
	Role      string    `json:"role" gorm:"size:50;not null;uniqueIndex:idx_heuristic_rules_key"`
	Delta     float64   `json:"delta"`
	Priority  int       `json:"priority" gorm:"default:0"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
