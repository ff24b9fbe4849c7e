package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/medassistd/internal/ehr"
)

func newAppointmentFixture(t *testing.T) (*AppointmentTool, ehr.Store, ehr.Patient) {
	t.Helper()
	store := ehr.NewMemoryStore()
	patient, err := store.CreatePatient(context.Background(), ehr.Patient{
		Ref:  "MRN-1001",
		Name: "Jordan Blake",
	})
	require.NoError(t, err)
	tool, err := NewAppointmentTool(store)
	require.NoError(t, err)
	return tool, store, patient
}

func TestAppointmentTool_Execute(t *testing.T) {
	tool, store, patient := newAppointmentFixture(t)

	result := tool.Execute(context.Background(), []byte(
		`{"patient_ref":"MRN-1001","time":"2026-09-01T14:30:00Z","reason":"persistent cough"}`))
	require.False(t, result.IsError, result.Content)

	var resp appointmentResponse
	require.NoError(t, json.Unmarshal([]byte(result.Content), &resp))
	assert.NotEmpty(t, resp.AppointmentID)
	assert.Equal(t, "Jordan Blake", resp.Patient)
	assert.Equal(t, "2026-09-01T14:30:00Z", resp.ScheduledAt)
	assert.Equal(t, ehr.DefaultAppointmentMinutes, resp.DurationMinutes)
	assert.Equal(t, ehr.DefaultProvider, resp.Provider)
	assert.Equal(t, string(ehr.AppointmentScheduled), resp.Status)

	appts, err := store.ListAppointments(context.Background(), patient.ID)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "persistent cough", appts[0].Reason)
}

// TestAppointmentTool_Execute_Guest verifies a missing ref is refused and
// nothing is written.
func TestAppointmentTool_Execute_Guest(t *testing.T) {
	tool, store, patient := newAppointmentFixture(t)

	result := tool.Execute(context.Background(), []byte(
		`{"patient_ref":"","time":"2026-09-01T14:30:00Z"}`))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "unknown patient")

	appts, err := store.ListAppointments(context.Background(), patient.ID)
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestAppointmentTool_Execute_UnknownRef(t *testing.T) {
	tool, store, patient := newAppointmentFixture(t)

	result := tool.Execute(context.Background(), []byte(
		`{"patient_ref":"MRN-9999","time":"2026-09-01T14:30:00Z"}`))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "unknown patient")

	appts, err := store.ListAppointments(context.Background(), patient.ID)
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestAppointmentTool_Execute_BadTime(t *testing.T) {
	tool, _, _ := newAppointmentFixture(t)

	result := tool.Execute(context.Background(), []byte(
		`{"patient_ref":"MRN-1001","time":"tomorrow at noon"}`))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "RFC 3339")
}

func TestNewAppointmentTool_NilStore(t *testing.T) {
	_, err := NewAppointmentTool(nil)
	require.Error(t, err)
}
