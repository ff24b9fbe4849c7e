package ehr

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrUnknownPatient is returned when a patient ref or id does not resolve.
	ErrUnknownPatient = errors.New("unknown patient")
	// ErrReminderNotFound is returned when a reminder id does not resolve.
	ErrReminderNotFound = errors.New("reminder not found")
	// ErrReminderAlreadySent is returned by MarkReminderSent when the
	// reminder already left the pending state. Callers treat it as "someone
	// else owns delivery".
	ErrReminderAlreadySent = errors.New("reminder already sent")
)

// Patient is a directory entry. Ref is the external identifier users and
// tools present (an intake id); ID is internal.
type Patient struct {
	ID          string    `json:"id"`
	Ref         string    `json:"ref"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	DateOfBirth time.Time `json:"date_of_birth,omitempty"`
}

// AppointmentStatus tracks an appointment's lifecycle.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

const (
	// DefaultAppointmentMinutes applies when a caller does not specify a
	// duration.
	DefaultAppointmentMinutes = 30
	// DefaultProvider applies when no provider preference is given.
	DefaultProvider = "first available"
)

// Appointment is a scheduled visit.
type Appointment struct {
	ID              string            `json:"id"`
	PatientID       string            `json:"patient_id"`
	ScheduledAt     time.Time         `json:"scheduled_at"`
	DurationMinutes int               `json:"duration_minutes"`
	Provider        string            `json:"provider"`
	Reason          string            `json:"reason,omitempty"`
	Status          AppointmentStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}

// DeliveryMethod is how a reminder reaches the patient.
type DeliveryMethod string

const (
	MethodSystem DeliveryMethod = "system"
	MethodEmail  DeliveryMethod = "email"
	MethodSMS    DeliveryMethod = "sms"
)

// ValidMethod reports whether m is a known delivery method.
func ValidMethod(m DeliveryMethod) bool {
	switch m {
	case MethodSystem, MethodEmail, MethodSMS:
		return true
	default:
		return false
	}
}

// ReminderStatus is the delivery state of a reminder.
type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderSent    ReminderStatus = "sent"
)

// Reminder is a scheduled notification. A nil PatientID marks a guest
// reminder: it is stored and eventually marked sent, but never dispatched.
type Reminder struct {
	ID        string         `json:"id"`
	PatientID *string        `json:"patient_id,omitempty"`
	Text      string         `json:"text"`
	DueAt     time.Time      `json:"due_at"`
	Method    DeliveryMethod `json:"method"`
	Status    ReminderStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
}

// IsGuest reports whether the reminder belongs to no known patient.
func (r Reminder) IsGuest() bool { return r.PatientID == nil }

// AuditEntry records one completed chat exchange for compliance review.
type AuditEntry struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"session_id"`
	PatientRef     string          `json:"patient_ref,omitempty"`
	UserMessage    string          `json:"user_message"`
	AssistantReply string          `json:"assistant_reply"`
	ToolTrace      json.RawMessage `json:"tool_trace,omitempty"`
	TriageTag      string          `json:"triage_tag,omitempty"`
	LatencyMS      int64           `json:"latency_ms"`
	CreatedAt      time.Time       `json:"created_at"`
}
