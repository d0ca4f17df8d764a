package crisis

import "time"

// Plan 由严重等级推导出的干预方案
type Plan struct {
	Severity         Severity
	InterventionType InterventionType
	Urgent           bool
	// UrgentReported 为 false 时响应中不输出 urgent 字段（LOW）
	UrgentReported   bool
	Message          string
	NextSteps        []string
	FollowUpRequired bool
	FollowUpDelay    time.Duration
}

// FollowUpDate 在执行时刻计算随访时间，不需要随访时返回 nil
func (p Plan) FollowUpDate(now time.Time) *time.Time {
	if !p.FollowUpRequired {
		return nil
	}
	at := now.Add(p.FollowUpDelay)
	return &at
}

var planTable = map[Severity]Plan{
	SeverityEmergency: {
		InterventionType: InterventionEmergencyDispatch,
		Urgent:           true,
		UrgentReported:   true,
		Message:          "IMMEDIATE HELP NEEDED",
		NextSteps: []string{
			"Call 911 immediately",
			"Go to the nearest emergency room",
			"Stay with someone you trust until help arrives",
			"Remove access to any means of self-harm",
			"Call or text 988 to reach the Suicide & Crisis Lifeline",
		},
		FollowUpRequired: true,
		FollowUpDelay:    2 * time.Hour,
	},
	SeverityCritical: {
		InterventionType: InterventionCall,
		Urgent:           true,
		UrgentReported:   true,
		Message:          "Please seek help immediately",
		NextSteps: []string{
			"Call 988 or the suicide prevention lifeline",
			"Contact your therapist or crisis counselor now",
			"Reach out to a trusted friend or family member",
			"Remove access to any means of self-harm",
			"Go to the nearest emergency room if you feel unsafe",
		},
		FollowUpRequired: true,
		FollowUpDelay:    6 * time.Hour,
	},
	SeverityHigh: {
		InterventionType: InterventionVideo,
		UrgentReported:   true,
		Message:          "Professional support recommended",
		NextSteps: []string{
			"Schedule an urgent appointment with your therapist",
			"Use your safety plan",
			"Reach out to your support network",
			"Call or text 988 if your feelings intensify",
		},
		FollowUpRequired: true,
		FollowUpDelay:    24 * time.Hour,
	},
	SeverityModerate: {
		InterventionType: InterventionChat,
		UrgentReported:   true,
		Message:          "Monitor symptoms and seek support",
		NextSteps: []string{
			"Schedule an appointment with your therapist",
			"Practice your coping strategies",
			"Avoid alcohol and non-prescribed substances",
			"Track your mood and symptoms daily",
		},
		FollowUpRequired: true,
		FollowUpDelay:    72 * time.Hour,
	},
	SeverityLow: {
		InterventionType: InterventionReferral,
		Message:          "Continue monitoring your wellness",
		NextSteps: []string{
			"Continue regular therapy sessions",
			"Maintain healthy routines for sleep, exercise and meals",
			"Stay connected with friends and family",
		},
	},
}

// PlanFor 查表得到方案，返回值不与表共享切片
func PlanFor(sev Severity) Plan {
	p, ok := planTable[sev]
	if !ok {
		// 未知等级按最高等级处理，宁可多给帮助
		sev = SeverityEmergency
		p = planTable[sev]
	}
	p.Severity = sev
	p.NextSteps = append([]string(nil), p.NextSteps...)
	return p
}
