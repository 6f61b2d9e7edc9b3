package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/utils"
)

// AuditEvent is the outbound record for every mutating engine operation.
type AuditEvent struct {
	ID            int       `gorm:"primary_key" json:"id"`
	UserId        string    `gorm:"size:64;index" json:"user_id"`
	Action        string    `gorm:"size:40;not null;index" json:"action"`
	EntityType    string    `gorm:"size:40;not null;index" json:"entity_type"`
	EntityId      int       `gorm:"not null;index" json:"entity_id"`
	BeforeState   []byte    `gorm:"type:json" json:"before_state"`
	AfterState    []byte    `gorm:"type:json" json:"after_state"`
	Description   string    `gorm:"type:text" json:"description"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// AuditRecorder is the one-way sink for audit events. The engine never
// branches on whether auditing is wired; callers that do not want audit
// records inject the no-op recorder.
type AuditRecorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// NopAuditRecorder discards every event.
type NopAuditRecorder struct{}

func (NopAuditRecorder) Record(ctx context.Context, event *AuditEvent) error { return nil }

// GormAuditRecorder persists events in the audit_events table.
type GormAuditRecorder struct{}

func (GormAuditRecorder) Record(ctx context.Context, event *AuditEvent) error {
	db := config.GetDB()
	return db.WithContext(ctx).Create(event).Error
}

var auditRecorder AuditRecorder = NopAuditRecorder{}

// SetAuditRecorder wires the audit sink. Called once at startup.
func SetAuditRecorder(r AuditRecorder) {
	if r == nil {
		r = NopAuditRecorder{}
	}
	auditRecorder = r
}

// recordAudit emits one audit event. Audit logging is best-effort: failures
// are logged, never propagated to the caller.
func recordAudit(ctx context.Context, action, entityType string, entityId int, before interface{}, after interface{}, description string) {

	userId, _ := utils.GetUserIdFromContext(ctx)
	cid, _ := utils.GetCorrelationIdFromContext(ctx)

	event := &AuditEvent{
		UserId:        userId,
		Action:        action,
		EntityType:    entityType,
		EntityId:      entityId,
		Description:   description,
		CorrelationId: cid,
	}
	if before != nil {
		if b, err := json.Marshal(before); err == nil {
			event.BeforeState = b
		}
	}
	if after != nil {
		if b, err := json.Marshal(after); err == nil {
			event.AfterState = b
		}
	}

	if err := auditRecorder.Record(ctx, event); err != nil {
		config.LogError(config.GetLogger(), "auditLog.go", "recordAudit", action+" "+entityType, nil, err)
	}
}
