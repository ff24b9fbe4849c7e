package ehr

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medassistd/internal/logging"
)

// Store persists patients, appointments, reminders, and the audit trail.
// Both implementations share the same semantics; tests run against the
// in-memory one.
type Store interface {
	CreatePatient(ctx context.Context, p Patient) (Patient, error)
	FindPatientByRef(ctx context.Context, ref string) (Patient, error)
	FindPatientByID(ctx context.Context, id string) (Patient, error)

	CreateAppointment(ctx context.Context, appt Appointment) (Appointment, error)
	ListAppointments(ctx context.Context, patientID string) ([]Appointment, error)

	CreateReminder(ctx context.Context, rem Reminder) (Reminder, error)
	// ListReminders returns reminders for a patient, soonest due first. An
	// empty patientID lists guest reminders. Sent reminders are filtered
	// out unless includeSent is set.
	ListReminders(ctx context.Context, patientID string, includeSent bool) ([]Reminder, error)
	// DueReminders returns every pending reminder whose due time is at or
	// before now, soonest first. Guest reminders are included; the
	// scheduler decides what dispatch means for them.
	DueReminders(ctx context.Context, now time.Time) ([]Reminder, error)
	// MarkReminderSent atomically transitions pending -> sent. It returns
	// ErrReminderAlreadySent when the reminder is not pending, which is the
	// exactly-once guarantee delivery relies on.
	MarkReminderSent(ctx context.Context, id string, now time.Time) error
	// RevertReminderSent returns a sent reminder to pending after a failed
	// dispatch so a later sweep retries it. Reverting an already-pending
	// reminder is a no-op.
	RevertReminderSent(ctx context.Context, id string) error

	SaveAudit(ctx context.Context, entry AuditEntry) (AuditEntry, error)
	ListAudit(ctx context.Context, sessionID string) ([]AuditEntry, error)

	Close() error
}

// NewStore creates a postgres-backed store when a database URL is
// configured, otherwise the in-memory store.
func NewStore(ctx context.Context, databaseURL string, logger *logging.Logger) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		logger.Info(ctx, "ehr store: using in-memory backend")
		return NewMemoryStore(), nil
	}
	logger.Info(ctx, "ehr store: using postgres backend", zap.String("database", redactDSN(databaseURL)))
	return NewPostgresStore(ctx, databaseURL)
}

// redactDSN strips credentials from a connection string for logging.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at == -1 {
		return dsn
	}
	scheme := strings.Index(dsn, "://")
	if scheme == -1 || scheme+3 > at {
		return dsn[at+1:]
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
