package crisis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanFor_Table(t *testing.T) {
	tests := []struct {
		severity  Severity
		typ       InterventionType
		urgent    bool
		reported  bool
		message   string
		firstStep string
		delay     time.Duration
	}{
		{SeverityEmergency, InterventionEmergencyDispatch, true, true, "IMMEDIATE HELP NEEDED", "Call 911 immediately", 2 * time.Hour},
		{SeverityCritical, InterventionCall, true, true, "Please seek help immediately", "Call 988 or the suicide prevention lifeline", 6 * time.Hour},
		{SeverityHigh, InterventionVideo, false, true, "Professional support recommended", "Schedule an urgent appointment with your therapist", 24 * time.Hour},
		{SeverityModerate, InterventionChat, false, true, "Monitor symptoms and seek support", "Schedule an appointment with your therapist", 72 * time.Hour},
		{SeverityLow, InterventionReferral, false, false, "Continue monitoring your wellness", "Continue regular therapy sessions", 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			p := PlanFor(tt.severity)
			assert.Equal(t, tt.severity, p.Severity)
			assert.Equal(t, tt.typ, p.InterventionType)
			assert.Equal(t, tt.urgent, p.Urgent)
			assert.Equal(t, tt.reported, p.UrgentReported)
			assert.Equal(t, tt.message, p.Message)
			require.NotEmpty(t, p.NextSteps)
			assert.Equal(t, tt.firstStep, p.NextSteps[0])
			assert.Equal(t, tt.delay, p.FollowUpDelay)
			assert.Equal(t, tt.delay > 0, p.FollowUpRequired)
		})
	}
}

func TestPlan_FollowUpDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	at := PlanFor(SeverityCritical).FollowUpDate(now)
	require.NotNil(t, at)
	assert.Equal(t, now.Add(6*time.Hour), *at)

	assert.Nil(t, PlanFor(SeverityLow).FollowUpDate(now))
}

func TestPlanFor_ReturnsIndependentSteps(t *testing.T) {
	p := PlanFor(SeverityEmergency)
	p.NextSteps[0] = "mutated"

	assert.Equal(t, "Call 911 immediately", PlanFor(SeverityEmergency).NextSteps[0])
}

func TestPlanFor_UnknownSeverity(t *testing.T) {
	p := PlanFor(Severity("SEVERE"))
	assert.Equal(t, SeverityEmergency, p.Severity)
	assert.Equal(t, InterventionEmergencyDispatch, p.InterventionType)
}
