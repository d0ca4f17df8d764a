package model

// AuditLog 审计日志，Details 中不包含 PHI
type AuditLog struct {
	BaseModel
	CorrelationID string  `gorm:"type:char(36);not null;index" json:"correlation_id"`
	Action        string  `gorm:"type:varchar(64);not null;index:idx_audit_logs_action" json:"action"`
	Entity        string  `gorm:"type:varchar(64);not null" json:"entity"`
	EntityID      string  `gorm:"type:varchar(64)" json:"entity_id,omitempty"`
	UserID        string  `gorm:"type:varchar(64);index:idx_audit_logs_user" json:"user_id,omitempty"`
	Success       bool    `gorm:"not null" json:"success"`
	Error         *string `gorm:"type:varchar(512)" json:"error,omitempty"`
	Details       JSONB   `gorm:"type:jsonb" json:"details,omitempty"`
}

// TableName 指定表名
func (AuditLog) TableName() string {
	return "audit_logs"
}
