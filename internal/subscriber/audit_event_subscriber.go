package subscriber

import (
	"context"
	"fmt"

	"github.com/weibaohui/decision-council/internal/eventbus"
	"github.com/weibaohui/decision-council/internal/pkg/audit"
	"k8s.io/klog/v2"
)

// AuditEventSubscriber 把咨询事件转换为审计条目
type AuditEventSubscriber struct {
	trail auditAppender
}

type auditAppender interface {
	Append(entry audit.Entry)
}

var eventKinds = map[eventbus.CouncilEventType]audit.Kind{
	eventbus.CouncilEventRoleCompleted:      audit.KindRoleCompleted,
	eventbus.CouncilEventRoleFailed:         audit.KindRoleFailed,
	eventbus.CouncilEventDigestCompleted:    audit.KindDigestCompleted,
	eventbus.CouncilEventConsensusAssembled: audit.KindConsensusAssembled,
	eventbus.CouncilEventConsultationFailed: audit.KindConsultationFailed,
	eventbus.CouncilEventAdmissionDenied:    audit.KindAdmissionDenied,
}

func NewAuditEventSubscriber(trail auditAppender) *AuditEventSubscriber {
	return &AuditEventSubscriber{trail: trail}
}

func (s *AuditEventSubscriber) Register(bus *eventbus.CouncilEventBus) {
	if bus == nil || s.trail == nil {
		return
	}
	for eventType := range eventKinds {
		bus.Subscribe(eventType, s.handle)
	}
}

func (s *AuditEventSubscriber) handle(ctx context.Context, event eventbus.CouncilEvent) error {
	kind, ok := eventKinds[event.Type]
	if !ok {
		return fmt.Errorf("未知的咨询事件类型: %s", event.Type)
	}

	payload := make(map[string]any, len(event.Payload)+2)
	for k, v := range event.Payload {
		payload[k] = v
	}
	if event.Role != "" {
		payload["role"] = string(event.Role)
	}
	if event.CallerKey != "" {
		payload["caller"] = event.CallerKey
	}

	s.trail.Append(audit.Entry{
		ConsultationID: event.ConsultationID,
		Kind:           kind,
		Payload:        payload,
		CreatedAt:      event.At,
		Final:          kind == audit.KindConsensusAssembled || kind == audit.KindConsultationFailed,
	})
	klog.V(6).Infof("审计事件已入队: type=%s, consultation=%s", event.Type, event.ConsultationID)
	return nil
}
