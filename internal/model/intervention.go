package model

import (
	"time"
)

// InterventionStatus 干预记录状态
type InterventionStatus string

const (
	InterventionStatusActive    InterventionStatus = "ACTIVE"
	InterventionStatusCompleted InterventionStatus = "COMPLETED"
)

// InterventionRecord 干预记录，症状与触发事件以密文存储
type InterventionRecord struct {
	BaseModel
	UserID             string             `gorm:"type:varchar(64);not null;index:idx_intervention_records_user" json:"user_id"`
	Severity           string             `gorm:"type:varchar(16);not null" json:"severity"`
	InterventionType   string             `gorm:"type:varchar(32);not null" json:"intervention_type"`
	Status             InterventionStatus `gorm:"type:varchar(16);not null;default:'ACTIVE';index:idx_intervention_records_follow_up" json:"status"`
	SymptomsCipher     string             `gorm:"type:text;not null" json:"-"`
	TriggerEventCipher *string            `gorm:"type:text" json:"-"`
	FollowUpRequired   bool               `gorm:"not null;default:false" json:"follow_up_required"`
	FollowUpDate       *time.Time         `gorm:"type:timestamptz;index:idx_intervention_records_follow_up" json:"follow_up_date,omitempty"`
	FollowUpQueuedAt   *time.Time         `gorm:"type:timestamptz" json:"-"`
	FollowUpSentAt     *time.Time         `gorm:"type:timestamptz" json:"follow_up_sent_at,omitempty"`
	ResourcesProvided  StringList         `gorm:"type:jsonb;not null" json:"resources_provided"`
	CompletedAt        *time.Time         `gorm:"type:timestamptz" json:"completed_at,omitempty"`
}

// TableName 指定表名
func (InterventionRecord) TableName() string {
	return "intervention_records"
}
