package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ConsensusSchemaName 共识输出的 schema 标签
const ConsensusSchemaName = "council.consensus.v1"

// ErrInvalidConsensus 共识对象不满足 schema
var ErrInvalidConsensus = errors.New("invalid consensus object")

// Consensus 议会最终的综合建议
type Consensus struct {
	Decision         string              `json:"decision"`
	Summary          string              `json:"summary"`
	ConsensusBullets []string            `json:"consensus_bullets"`
	TopRisks         []string            `json:"top_risks"`
	Conditions       []string            `json:"conditions"`
	Disagreements    []string            `json:"disagreements"`
	NextSteps        []string            `json:"next_steps"`
	Confidence       float64             `json:"confidence"`
	AdvisorBullets   map[string][]string `json:"advisor_bullets"`
	Degraded         bool                `json:"degraded,omitempty"`
	MissingRoles     []RoleKey           `json:"missing_roles,omitempty"`
}

// ConsensusSkeleton 共识 schema 的示例对象
func ConsensusSkeleton() map[string]any {
	return map[string]any{
		"_schema":           ConsensusSchemaName,
		"decision":          "Go, no-go, or conditional go in one sentence",
		"summary":           "Short synthesis of the council position",
		"consensus_bullets": []any{"Point most advisors agree on"},
		"top_risks":         []any{"Most important risk"},
		"conditions":        []any{"Condition that must hold for the decision"},
		"disagreements":     []any{"Open disagreement between advisors"},
		"next_steps":        []any{"Concrete next step"},
		"confidence":        0.6,
		"advisor_bullets":   map[string]any{"STRATEGIST": []any{"Advisor-specific point"}},
	}
}

// ConsensusSchemaHint JSON 形式的共识 schema 提示
func ConsensusSchemaHint() string {
	data, err := json.Marshal(ConsensusSkeleton())
	if err != nil {
		return "{}"
	}
	return string(data)
}

// DecodeConsensus 把生成结果解码为强类型共识并校验
func DecodeConsensus(data map[string]any) (*Consensus, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConsensus, err)
	}
	var c Consensus
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConsensus, err)
	}
	if strings.TrimSpace(c.Decision) == "" {
		return nil, fmt.Errorf("%w: decision is required", ErrInvalidConsensus)
	}
	if strings.TrimSpace(c.Summary) == "" {
		return nil, fmt.Errorf("%w: summary is required", ErrInvalidConsensus)
	}
	switch {
	case c.Confidence < 0:
		c.Confidence = 0
	case c.Confidence > 1:
		c.Confidence = 1
	}
	if c.AdvisorBullets == nil {
		c.AdvisorBullets = map[string][]string{}
	}
	return &c, nil
}

// ErrorKind 错误分类
type ErrorKind string

const (
	KindAdmissionDenied    ErrorKind = "AdmissionDenied"
	KindBackendUnavailable ErrorKind = "BackendUnavailable"
	KindUnparsableOutput   ErrorKind = "UnparsableOutput"
	KindConfiguration      ErrorKind = "ConfigurationError"
	KindAuditWriteFailure  ErrorKind = "AuditWriteFailure"
	KindInvalidRequest     ErrorKind = "InvalidRequest"
	KindNotFound           ErrorKind = "NotFound"
	KindInternal           ErrorKind = "InternalError"
)

// RoleFailure 角色调用失败后的终态标记
type RoleFailure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// RoleOutput 单个角色的结构化输出，失败时 Failure 非空
type RoleOutput struct {
	Role     RoleKey        `json:"role"`
	Data     map[string]any `json:"data,omitempty"`
	Failure  *RoleFailure   `json:"failure,omitempty"`
	Repaired bool           `json:"repaired,omitempty"`
}

// OK 输出是否可用于综合
func (o RoleOutput) OK() bool {
	return o.Failure == nil && o.Data != nil
}
