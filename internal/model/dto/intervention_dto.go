package dto

import "time"

// InterventionItem 干预记录列表项
type InterventionItem struct {
	ID                string     `json:"id"`
	Severity          string     `json:"severity"`
	InterventionType  string     `json:"interventionType"`
	Status            string     `json:"status"`
	Symptoms          []string   `json:"symptoms"`
	TriggerEvent      string     `json:"triggerEvent,omitempty"`
	FollowUpRequired  bool       `json:"followUpRequired"`
	FollowUpDate      *time.Time `json:"followUpDate,omitempty"`
	ResourcesProvided []string   `json:"resourcesProvided"`
	CreatedAt         time.Time  `json:"createdAt"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

// ListInterventionsRequest 分页参数
type ListInterventionsRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// ListInterventionsResponse 干预记录列表
type ListInterventionsResponse struct {
	Items []InterventionItem `json:"items"`
	Total int64              `json:"total"`
}
