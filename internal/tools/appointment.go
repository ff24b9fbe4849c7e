package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/medassistd/internal/ehr"
	"github.com/fyrsmithlabs/medassistd/internal/llm"
)

// AppointmentTool books visits for registered patients. Guests cannot
// book: an unknown or missing ref yields an error result and no record.
type AppointmentTool struct {
	store ehr.Store
}

// NewAppointmentTool builds the schedule_appointment tool.
func NewAppointmentTool(store ehr.Store) (*AppointmentTool, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &AppointmentTool{store: store}, nil
}

func (t *AppointmentTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name: "schedule_appointment",
		Description: "Schedule a doctor's appointment for a registered patient. Requires " +
			"the patient's reference id; guests must register before booking.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patient_ref": map[string]any{
					"type":        "string",
					"description": "The patient's reference id.",
				},
				"time": map[string]any{
					"type":        "string",
					"description": "Requested appointment time, RFC 3339 (e.g. 2026-03-02T14:30:00Z).",
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Reason for the visit.",
				},
			},
			"required": []string{"patient_ref", "time"},
		},
	}
}

type appointmentArgs struct {
	PatientRef string `json:"patient_ref"`
	Time       string `json:"time"`
	Reason     string `json:"reason"`
}

type appointmentResponse struct {
	AppointmentID   string `json:"appointment_id"`
	Patient         string `json:"patient"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
	Provider        string `json:"provider"`
	Status          string `json:"status"`
}

func (t *AppointmentTool) Execute(ctx context.Context, args json.RawMessage) ToolResult {
	var a appointmentArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorResult("invalid schedule_appointment arguments: %v", err)
	}

	if strings.TrimSpace(a.PatientRef) == "" {
		return errorResult("unknown patient: appointments require a registered patient reference; ask the user to register first")
	}

	scheduledAt, err := time.Parse(time.RFC3339, a.Time)
	if err != nil {
		return errorResult("time must be RFC 3339, e.g. 2026-03-02T14:30:00Z: %v", err)
	}

	patient, err := t.store.FindPatientByRef(ctx, a.PatientRef)
	if errors.Is(err, ehr.ErrUnknownPatient) {
		return errorResult("unknown patient %q: no record matches that reference", a.PatientRef)
	}
	if err != nil {
		return errorResult("patient lookup failed: %v", err)
	}

	appt, err := t.store.CreateAppointment(ctx, ehr.Appointment{
		PatientID:   patient.ID,
		ScheduledAt: scheduledAt,
		Reason:      a.Reason,
	})
	if err != nil {
		return errorResult("could not create appointment: %v", err)
	}

	b, err := json.Marshal(appointmentResponse{
		AppointmentID:   appt.ID,
		Patient:         patient.Name,
		ScheduledAt:     appt.ScheduledAt.Format(time.RFC3339),
		DurationMinutes: appt.DurationMinutes,
		Provider:        appt.Provider,
		Status:          string(appt.Status),
	})
	if err != nil {
		return errorResult("encode confirmation: %v", err)
	}
	return ToolResult{Content: string(b)}
}
