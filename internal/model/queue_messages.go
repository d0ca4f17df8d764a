package model

import "time"

// FollowUpMessage 随访到期消息
type FollowUpMessage struct {
	MessageID      string    `json:"message_id"` // 消息唯一ID，用于幂等性检查
	InterventionID int64     `json:"intervention_id"`
	UserID         string    `json:"user_id"`
	Severity       string    `json:"severity"`
	FollowUpAt     time.Time `json:"follow_up_at"`
	DelaySeconds   int       `json:"delay_seconds"`
}

// EmergencyDispatchMessage 紧急调度请求，由调度中心对接方消费
type EmergencyDispatchMessage struct {
	MessageID   string    `json:"message_id"`
	UserID      string    `json:"user_id"`
	Severity    string    `json:"severity"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Address     string    `json:"address,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// CrisisAlertMessage 推送给危机团队控制台，不含症状与触发事件原文
type CrisisAlertMessage struct {
	MessageID        string     `json:"message_id"`
	Kind             string     `json:"kind"` // crisis_alert / follow_up_reminder
	InterventionID   int64      `json:"intervention_id,omitempty"`
	UserID           string     `json:"user_id"`
	Severity         string     `json:"severity"`
	InterventionType string     `json:"intervention_type,omitempty"`
	Urgent           bool       `json:"urgent"`
	HasSupport       bool       `json:"has_support"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	Address          string     `json:"address,omitempty"`
	FollowUpAt       *time.Time `json:"follow_up_at,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

const (
	AlertKindCrisis           = "crisis_alert"
	AlertKindFollowUpReminder = "follow_up_reminder"
)
