package eventbus

import (
	"time"

	"github.com/weibaohui/decision-council/internal/domain"
)

type CouncilEventType string

const (
	CouncilEventRoleCompleted      CouncilEventType = "RoleCompleted"
	CouncilEventRoleFailed         CouncilEventType = "RoleFailed"
	CouncilEventDigestCompleted    CouncilEventType = "DigestCompleted"
	CouncilEventConsensusAssembled CouncilEventType = "ConsensusAssembled"
	CouncilEventConsultationFailed CouncilEventType = "ConsultationFailed"
	CouncilEventAdmissionDenied    CouncilEventType = "AdmissionDenied"
)

// CouncilEvent 咨询生命周期事件，不携带原始权重
type CouncilEvent struct {
	Type           CouncilEventType
	ConsultationID string
	CallerKey      string
	Role           domain.RoleKey
	Payload        map[string]any
	At             time.Time
}

type CouncilEventHandler = Handler[CouncilEvent]
type CouncilEventBus = Bus[CouncilEventType, CouncilEvent]

func NewCouncilEventBus() *CouncilEventBus {
	return NewBus[CouncilEventType, CouncilEvent]()
}
