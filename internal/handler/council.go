package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/internal/domain"
	"github.com/weibaohui/decision-council/internal/service"
)

// SessionHeader 会话令牌请求头，与来源地址一起组成限流键
const SessionHeader = "X-Session-Token"

// ConsultRequest 咨询请求体
type ConsultRequest struct {
	Question string         `json:"question"`
	Context  map[string]any `json:"context"`
	Lineup   *domain.Lineup `json:"lineup"`
	PresetID string         `json:"preset_id"`
	Locale   string         `json:"locale"`
}

type CouncilHandler struct {
	council service.CouncilService
	audit   service.AuditService
	cost    service.CostService
}

// NewCouncilHandler audit 与 cost 为 nil 时对应接口返回 404
func NewCouncilHandler(council service.CouncilService, audit service.AuditService, cost service.CostService) *CouncilHandler {
	return &CouncilHandler{
		council: council,
		audit:   audit,
		cost:    cost,
	}
}

// Consult POST /api/consultations
func (h *CouncilHandler) Consult(c *gin.Context) {
	var req ConsultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &service.ConsultError{Kind: domain.KindInvalidRequest, Message: "invalid request body: " + err.Error()})
		return
	}

	resp, err := h.council.Consult(c.Request.Context(), service.ConsultRequest{
		Question:     req.Question,
		Context:      req.Context,
		Lineup:       req.Lineup,
		PresetID:     req.PresetID,
		Locale:       req.Locale,
		Origin:       c.ClientIP(),
		SessionToken: sessionToken(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Preview POST /api/council/weights
func (h *CouncilHandler) Preview(c *gin.Context) {
	var req ConsultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &service.ConsultError{Kind: domain.KindInvalidRequest, Message: "invalid request body: " + err.Error()})
		return
	}
	preview, err := h.council.Preview(c.Request.Context(), service.ConsultRequest{
		Question: req.Question,
		Context:  req.Context,
		Lineup:   req.Lineup,
		PresetID: req.PresetID,
		Locale:   req.Locale,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (h *CouncilHandler) Get(c *gin.Context) {
	resp, err := h.council.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Audit GET /api/consultations/:id/audit
func (h *CouncilHandler) Audit(c *gin.Context) {
	if h.audit == nil {
		writeError(c, &service.ConsultError{Kind: domain.KindNotFound, Message: "audit trail is disabled"})
		return
	}
	records, err := h.audit.ListByConsultation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consultation_id": c.Param("id"), "entries": records})
}

// AuditByDay GET /api/audit?day=2006-01-02
func (h *CouncilHandler) AuditByDay(c *gin.Context) {
	if h.audit == nil {
		writeError(c, &service.ConsultError{Kind: domain.KindNotFound, Message: "audit trail is disabled"})
		return
	}
	day := c.DefaultQuery("day", time.Now().UTC().Format("2006-01-02"))
	records, err := h.audit.ListByDay(c.Request.Context(), day)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "entries": records})
}

// Cost GET /api/consultations/:id/cost
func (h *CouncilHandler) Cost(c *gin.Context) {
	if h.cost == nil {
		writeError(c, &service.ConsultError{Kind: domain.KindNotFound, Message: "cost tracking is disabled"})
		return
	}
	report, err := h.cost.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// CostSince GET /api/cost?since=24h
func (h *CouncilHandler) CostSince(c *gin.Context) {
	if h.cost == nil {
		writeError(c, &service.ConsultError{Kind: domain.KindNotFound, Message: "cost tracking is disabled"})
		return
	}
	window, err := time.ParseDuration(c.DefaultQuery("since", "24h"))
	if err != nil || window <= 0 {
		writeError(c, &service.ConsultError{Kind: domain.KindInvalidRequest, Message: "invalid since duration"})
		return
	}
	since := time.Now().UTC().Add(-window)
	summary, err := h.cost.SumSince(c.Request.Context(), since)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "summary": summary})
}

func (h *CouncilHandler) Roles(c *gin.Context) {
	c.JSON(http.StatusOK, h.council.Roles())
}

func (h *CouncilHandler) Presets(c *gin.Context) {
	c.JSON(http.StatusOK, h.council.Presets())
}

// writeError 统一的错误体 {"error": {"kind", "message", "retry_after"}}
func writeError(c *gin.Context, err error) {
	ce := service.AsConsultError(err)
	status := ce.HTTPStatus()
	if ce.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(ce.RetryAfter))
	}
	if status >= http.StatusInternalServerError {
		klog.Errorf("[handler] 请求失败: path=%s, kind=%s, err=%s", c.FullPath(), ce.Kind, ce.Message)
	}
	c.JSON(status, gin.H{"error": gin.H{
		"kind":        ce.Kind,
		"message":     ce.Message,
		"retry_after": ce.RetryAfter,
	}})
}

// sessionToken 优先取 X-Session-Token，其次 Bearer 令牌
func sessionToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader(SessionHeader)); token != "" {
		return token
	}
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
