package crisis

import "time"

// Severity 危机严重等级，EMERGENCY > CRITICAL > HIGH > MODERATE > LOW
type Severity string

const (
	SeverityEmergency Severity = "EMERGENCY"
	SeverityCritical  Severity = "CRITICAL"
	SeverityHigh      Severity = "HIGH"
	SeverityModerate  Severity = "MODERATE"
	SeverityLow       Severity = "LOW"
)

// Rank 数值越大越紧急，未知等级返回 0
func (s Severity) Rank() int {
	switch s {
	case SeverityEmergency:
		return 5
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityModerate:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string {
	return string(s)
}

// RequiresAlert EMERGENCY 与 CRITICAL 需要通知危机响应团队
func (s Severity) RequiresAlert() bool {
	return s == SeverityEmergency || s == SeverityCritical
}

// InterventionType 干预渠道，与 Severity 一一对应
type InterventionType string

const (
	InterventionEmergencyDispatch InterventionType = "EMERGENCY_DISPATCH"
	InterventionCall              InterventionType = "CALL"
	InterventionVideo             InterventionType = "VIDEO"
	InterventionChat              InterventionType = "CHAT"
	InterventionReferral          InterventionType = "REFERRAL"
)

// Input 已校验的自评输入，分类过程中只读
type Input struct {
	Symptoms          []string
	SuicidalIdeation  bool
	HomicidalIdeation bool
	SelfHarmRisk      bool
	SubstanceUse      bool
	HasSupport        bool
	HasPlan           bool
	HasMeans          bool
	ImmediateRisk     bool
	TriggerEvent      string

	EmergencyContacts []EmergencyContact
	Location          *Location
}

// EmergencyContact 调用方随评估一起提交的紧急联系人
type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}

// Location 紧急调度使用的位置
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// RecordStatus 干预记录状态
type RecordStatus string

const (
	RecordStatusActive    RecordStatus = "ACTIVE"
	RecordStatusCompleted RecordStatus = "COMPLETED"
)

// Record 每次评估生成一条，由 PersistenceStore 持久化
type Record struct {
	ID                int64
	UserID            string
	Severity          Severity
	InterventionType  InterventionType
	Status            RecordStatus
	Symptoms          []string
	TriggerEvent      string
	FollowUpRequired  bool
	FollowUpDate      *time.Time
	ResourcesProvided []string
	CreatedAt         time.Time
}

// CrisisEvent 推送给危机响应团队控制台的事件
type CrisisEvent struct {
	EventID          string           `json:"event_id"`
	InterventionID   int64            `json:"intervention_id"`
	UserID           string           `json:"user_id"`
	Severity         Severity         `json:"severity"`
	InterventionType InterventionType `json:"intervention_type"`
	Urgent           bool             `json:"urgent"`
	HasSupport       bool             `json:"has_support"`
	Location         *Location        `json:"location,omitempty"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

// Decision 限流器判定结果
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// AuditEntry 审计记录
type AuditEntry struct {
	Action   string
	Entity   string
	EntityID string
	UserID   string
	Details  map[string]any
}

const (
	AuditActionAssess   = "CRISIS_ASSESSMENT"
	AuditActionDispatch = "CRISIS_DISPATCH"
	AuditEntityRecord   = "InterventionRecord"
)
