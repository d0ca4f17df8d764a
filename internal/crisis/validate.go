package crisis

import (
	"fmt"
	"strings"

	pkgerrors "CrisisDesk/pkg/errors"
	"CrisisDesk/utils"
)

const (
	maxSymptoms          = 50
	maxSymptomLength     = 200
	maxTriggerLength     = 1000
	maxEmergencyContacts = 5
)

// Request 评估请求体，布尔字段使用指针以区分缺失与 false
type Request struct {
	Symptoms          []string           `json:"symptoms"`
	SuicidalIdeation  *bool              `json:"suicidalIdeation"`
	HomicidalIdeation *bool              `json:"homicidalIdeation"`
	SelfHarmRisk      *bool              `json:"selfHarmRisk"`
	SubstanceUse      *bool              `json:"substanceUse"`
	HasSupport        *bool              `json:"hasSupport"`
	HasPlan           *bool              `json:"hasPlan"`
	HasMeans          *bool              `json:"hasMeans"`
	ImmediateRisk     *bool              `json:"immediateRisk"`
	TriggerEvent      *string            `json:"triggerEvent,omitempty"`
	EmergencyContacts []EmergencyContact `json:"emergencyContacts,omitempty"`
	Location          *Location          `json:"location,omitempty"`

	// 以下字段由传输层填充
	UserID   string `json:"-"`
	ClientIP string `json:"-"`
}

// ValidationError 携带逐字段的错误详情
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %d invalid field(s)", len(e.Details))
}

func (e *ValidationError) Unwrap() error {
	return pkgerrors.ValidationFailed
}

// NewValidationError 针对单个字段的校验错误，解码失败时由传输层使用
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Details: map[string]string{field: reason}}
}

// Validate 结构校验并转换为只读 Input
func Validate(req Request) (Input, error) {
	details := make(map[string]string)

	if len(req.Symptoms) == 0 {
		details["symptoms"] = "at least one symptom is required"
	} else if len(req.Symptoms) > maxSymptoms {
		details["symptoms"] = fmt.Sprintf("at most %d symptoms are allowed", maxSymptoms)
	}

	symptoms := make([]string, 0, len(req.Symptoms))
	for i, s := range req.Symptoms {
		s = strings.TrimSpace(s)
		switch {
		case s == "":
			details[fmt.Sprintf("symptoms[%d]", i)] = "must not be blank"
		case len(s) > maxSymptomLength:
			details[fmt.Sprintf("symptoms[%d]", i)] = fmt.Sprintf("must be at most %d characters", maxSymptomLength)
		}
		symptoms = append(symptoms, s)
	}

	flags := []struct {
		name  string
		value *bool
	}{
		{"suicidalIdeation", req.SuicidalIdeation},
		{"homicidalIdeation", req.HomicidalIdeation},
		{"selfHarmRisk", req.SelfHarmRisk},
		{"substanceUse", req.SubstanceUse},
		{"hasSupport", req.HasSupport},
		{"hasPlan", req.HasPlan},
		{"hasMeans", req.HasMeans},
		{"immediateRisk", req.ImmediateRisk},
	}
	for _, f := range flags {
		if f.value == nil {
			details[f.name] = "is required and must be a boolean"
		}
	}

	var trigger string
	if req.TriggerEvent != nil {
		trigger = strings.TrimSpace(*req.TriggerEvent)
		if len(trigger) > maxTriggerLength {
			details["triggerEvent"] = fmt.Sprintf("must be at most %d characters", maxTriggerLength)
		}
	}

	if len(req.EmergencyContacts) > maxEmergencyContacts {
		details["emergencyContacts"] = fmt.Sprintf("at most %d contacts are allowed", maxEmergencyContacts)
	}
	contacts := make([]EmergencyContact, 0, len(req.EmergencyContacts))
	for i, c := range req.EmergencyContacts {
		c.Name = strings.TrimSpace(c.Name)
		c.Phone = strings.TrimSpace(c.Phone)
		if c.Name == "" {
			details[fmt.Sprintf("emergencyContacts[%d].name", i)] = "is required"
		}
		if !utils.ValidatePhone(c.Phone) {
			details[fmt.Sprintf("emergencyContacts[%d].phone", i)] = "must be a valid phone number"
		}
		contacts = append(contacts, c)
	}

	if loc := req.Location; loc != nil {
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			details["location"] = "latitude/longitude out of range"
		}
	}

	if len(details) > 0 {
		return Input{}, &ValidationError{Details: details}
	}

	in := Input{
		Symptoms:          symptoms,
		SuicidalIdeation:  *req.SuicidalIdeation,
		HomicidalIdeation: *req.HomicidalIdeation,
		SelfHarmRisk:      *req.SelfHarmRisk,
		SubstanceUse:      *req.SubstanceUse,
		HasSupport:        *req.HasSupport,
		HasPlan:           *req.HasPlan,
		HasMeans:          *req.HasMeans,
		ImmediateRisk:     *req.ImmediateRisk,
		TriggerEvent:      trigger,
		EmergencyContacts: contacts,
	}
	if req.Location != nil {
		loc := *req.Location
		in.Location = &loc
	}
	return in, nil
}
