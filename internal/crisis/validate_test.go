package crisis

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "CrisisDesk/pkg/errors"
)

func TestValidate_Success(t *testing.T) {
	req := validRequest()
	req.Symptoms = []string{"  insomnia ", "panic attacks"}
	trigger := " lost my job "
	req.TriggerEvent = &trigger
	req.EmergencyContacts = []EmergencyContact{{Name: "Sam", Phone: "+1 555-123-4567"}}
	req.Location = &Location{Latitude: 40.7, Longitude: -74.0}

	in, err := Validate(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"insomnia", "panic attacks"}, in.Symptoms)
	assert.Equal(t, "lost my job", in.TriggerEvent)
	assert.True(t, in.HasSupport)
	require.Len(t, in.EmergencyContacts, 1)
	require.NotNil(t, in.Location)
	assert.NotSame(t, req.Location, in.Location)
}

func TestValidate_MissingFields(t *testing.T) {
	req := validRequest()
	req.Symptoms = nil
	req.HasPlan = nil
	req.ImmediateRisk = nil

	_, err := Validate(req)
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Details, "symptoms")
	assert.Contains(t, ve.Details, "hasPlan")
	assert.Contains(t, ve.Details, "immediateRisk")
	assert.Len(t, ve.Details, 3)

	def, ok := pkgerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, pkgerrors.ValidationFailed.Code, def.Code)
}

func TestValidate_Limits(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Request)
		field  string
	}{
		{"blank symptom", func(r *Request) { r.Symptoms = []string{"ok", "  "} }, "symptoms[1]"},
		{"long symptom", func(r *Request) { r.Symptoms = []string{strings.Repeat("a", 201)} }, "symptoms[0]"},
		{"too many symptoms", func(r *Request) { r.Symptoms = make([]string, 51) }, "symptoms"},
		{"long trigger", func(r *Request) {
			s := strings.Repeat("x", 1001)
			r.TriggerEvent = &s
		}, "triggerEvent"},
		{"contact without name", func(r *Request) {
			r.EmergencyContacts = []EmergencyContact{{Phone: "5551234567"}}
		}, "emergencyContacts[0].name"},
		{"contact bad phone", func(r *Request) {
			r.EmergencyContacts = []EmergencyContact{{Name: "Sam", Phone: "call me"}}
		}, "emergencyContacts[0].phone"},
		{"too many contacts", func(r *Request) {
			r.EmergencyContacts = make([]EmergencyContact, 6)
			for i := range r.EmergencyContacts {
				r.EmergencyContacts[i] = EmergencyContact{Name: "c", Phone: "5551234567"}
			}
		}, "emergencyContacts"},
		{"location out of range", func(r *Request) { r.Location = &Location{Latitude: 91} }, "location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			_, err := Validate(req)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Details, tt.field)
		})
	}
}
