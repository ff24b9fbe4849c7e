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

// ReminderTool creates reminders. Guests are allowed: their reminders
// are stored without a patient id and never leave the system.
type ReminderTool struct {
	store ehr.Store
}

// NewReminderTool builds the set_reminder tool.
func NewReminderTool(store ehr.Store) (*ReminderTool, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &ReminderTool{store: store}, nil
}

func (t *ReminderTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name: "set_reminder",
		Description: "Create a reminder, such as taking medication or checking symptoms. " +
			"Works for guests too; include patient_ref only when the user gave one.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patient_ref": map[string]any{
					"type":        "string",
					"description": "The patient's reference id, if known.",
				},
				"text": map[string]any{
					"type":        "string",
					"description": "What to remind the user about.",
				},
				"due": map[string]any{
					"type":        "string",
					"description": "When the reminder is due, RFC 3339 (e.g. 2026-03-02T09:00:00Z).",
				},
				"method": map[string]any{
					"type":        "string",
					"enum":        []string{"system", "email", "sms"},
					"description": "Delivery method. Defaults to system.",
				},
			},
			"required": []string{"text", "due"},
		},
	}
}

type reminderArgs struct {
	PatientRef string `json:"patient_ref"`
	Text       string `json:"text"`
	Due        string `json:"due"`
	Method     string `json:"method"`
}

type reminderResponse struct {
	ReminderID string `json:"reminder_id"`
	Text       string `json:"text"`
	DueAt      string `json:"due_at"`
	Method     string `json:"method"`
	Guest      bool   `json:"guest"`
}

func (t *ReminderTool) Execute(ctx context.Context, args json.RawMessage) ToolResult {
	var a reminderArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorResult("invalid set_reminder arguments: %v", err)
	}

	if strings.TrimSpace(a.Text) == "" {
		return errorResult("set_reminder requires text")
	}
	dueAt, err := time.Parse(time.RFC3339, a.Due)
	if err != nil {
		return errorResult("due must be RFC 3339, e.g. 2026-03-02T09:00:00Z: %v", err)
	}

	method := ehr.MethodSystem
	if a.Method != "" {
		method = ehr.DeliveryMethod(strings.ToLower(a.Method))
		if !ehr.ValidMethod(method) {
			return errorResult("unknown delivery method %q: use system, email, or sms", a.Method)
		}
	}

	var patientID *string
	if strings.TrimSpace(a.PatientRef) != "" {
		patient, err := t.store.FindPatientByRef(ctx, a.PatientRef)
		if errors.Is(err, ehr.ErrUnknownPatient) {
			return errorResult("unknown patient %q: omit patient_ref to set a guest reminder", a.PatientRef)
		}
		if err != nil {
			return errorResult("patient lookup failed: %v", err)
		}
		patientID = &patient.ID
	}

	rem, err := t.store.CreateReminder(ctx, ehr.Reminder{
		PatientID: patientID,
		Text:      a.Text,
		DueAt:     dueAt,
		Method:    method,
	})
	if err != nil {
		return errorResult("could not create reminder: %v", err)
	}

	b, err := json.Marshal(reminderResponse{
		ReminderID: rem.ID,
		Text:       rem.Text,
		DueAt:      rem.DueAt.Format(time.RFC3339),
		Method:     string(rem.Method),
		Guest:      rem.IsGuest(),
	})
	if err != nil {
		return errorResult("encode confirmation: %v", err)
	}
	return ToolResult{Content: string(b)}
}
