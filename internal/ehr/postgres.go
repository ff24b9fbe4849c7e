package ehr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS patients (
			id TEXT PRIMARY KEY,
			ref TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			date_of_birth DATE
		);`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			patient_id TEXT NOT NULL REFERENCES patients(id),
			scheduled_at TIMESTAMPTZ NOT NULL,
			duration_minutes INTEGER NOT NULL DEFAULT 30,
			provider TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'scheduled',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments (patient_id, scheduled_at);`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id TEXT PRIMARY KEY,
			patient_id TEXT REFERENCES patients(id),
			text TEXT NOT NULL,
			due_at TIMESTAMPTZ NOT NULL,
			method TEXT NOT NULL DEFAULT 'system',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			sent_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders (status, due_at);`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			patient_ref TEXT NOT NULL DEFAULT '',
			user_message TEXT NOT NULL,
			assistant_reply TEXT NOT NULL,
			tool_trace JSONB,
			triage_tag TEXT NOT NULL DEFAULT '',
			latency_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log (session_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// isFKViolation reports whether err is a foreign key violation, which for
// this schema always means an unknown patient id.
func isFKViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (s *PostgresStore) CreatePatient(ctx context.Context, p Patient) (Patient, error) {
	if strings.TrimSpace(p.Ref) == "" {
		return Patient{}, fmt.Errorf("patient ref cannot be empty")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	var dob any
	if !p.DateOfBirth.IsZero() {
		dob = p.DateOfBirth
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO patients (id, ref, name, email, date_of_birth) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Ref, p.Name, p.Email, dob,
	)
	if err != nil {
		return Patient{}, fmt.Errorf("create patient: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) FindPatientByRef(ctx context.Context, ref string) (Patient, error) {
	var (
		p   Patient
		dob *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, ref, name, email, date_of_birth FROM patients WHERE ref=$1`,
		ref,
	).Scan(&p.ID, &p.Ref, &p.Name, &p.Email, &dob)
	if errors.Is(err, pgx.ErrNoRows) {
		return Patient{}, ErrUnknownPatient
	}
	if err != nil {
		return Patient{}, fmt.Errorf("find patient: %w", err)
	}
	if dob != nil {
		p.DateOfBirth = *dob
	}
	return p, nil
}

func (s *PostgresStore) FindPatientByID(ctx context.Context, id string) (Patient, error) {
	var (
		p   Patient
		dob *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, ref, name, email, date_of_birth FROM patients WHERE id=$1`,
		id,
	).Scan(&p.ID, &p.Ref, &p.Name, &p.Email, &dob)
	if errors.Is(err, pgx.ErrNoRows) {
		return Patient{}, ErrUnknownPatient
	}
	if err != nil {
		return Patient{}, fmt.Errorf("find patient: %w", err)
	}
	if dob != nil {
		p.DateOfBirth = *dob
	}
	return p, nil
}

func (s *PostgresStore) CreateAppointment(ctx context.Context, appt Appointment) (Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.DurationMinutes <= 0 {
		appt.DurationMinutes = DefaultAppointmentMinutes
	}
	if appt.Provider == "" {
		appt.Provider = DefaultProvider
	}
	if appt.Status == "" {
		appt.Status = AppointmentScheduled
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO appointments (id, patient_id, scheduled_at, duration_minutes, provider, reason, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		appt.ID, appt.PatientID, appt.ScheduledAt, appt.DurationMinutes, appt.Provider, appt.Reason, appt.Status, appt.CreatedAt,
	)
	if isFKViolation(err) {
		return Appointment{}, ErrUnknownPatient
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	return appt, nil
}

func (s *PostgresStore) ListAppointments(ctx context.Context, patientID string) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, patient_id, scheduled_at, duration_minutes, provider, reason, status, created_at
		 FROM appointments WHERE patient_id=$1 ORDER BY scheduled_at ASC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var appt Appointment
		if err := rows.Scan(&appt.ID, &appt.PatientID, &appt.ScheduledAt, &appt.DurationMinutes,
			&appt.Provider, &appt.Reason, &appt.Status, &appt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateReminder(ctx context.Context, rem Reminder) (Reminder, error) {
	if strings.TrimSpace(rem.Text) == "" {
		return Reminder{}, fmt.Errorf("reminder text cannot be empty")
	}
	if rem.ID == "" {
		rem.ID = uuid.NewString()
	}
	if rem.Method == "" {
		rem.Method = MethodSystem
	}
	if !ValidMethod(rem.Method) {
		return Reminder{}, fmt.Errorf("unknown delivery method %q", rem.Method)
	}
	rem.Status = ReminderPending
	rem.SentAt = nil
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO reminders (id, patient_id, text, due_at, method, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rem.ID, rem.PatientID, rem.Text, rem.DueAt, rem.Method, rem.Status, rem.CreatedAt,
	)
	if isFKViolation(err) {
		return Reminder{}, ErrUnknownPatient
	}
	if err != nil {
		return Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	return rem, nil
}

func (s *PostgresStore) ListReminders(ctx context.Context, patientID string, includeSent bool) ([]Reminder, error) {
	query := `SELECT id, patient_id, text, due_at, method, status, created_at, sent_at
		 FROM reminders WHERE `
	args := []any{}
	if patientID == "" {
		query += `patient_id IS NULL`
	} else {
		query += `patient_id=$1`
		args = append(args, patientID)
	}
	if !includeSent {
		query += ` AND status='pending'`
	}
	query += ` ORDER BY due_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *PostgresStore) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, patient_id, text, due_at, method, status, created_at, sent_at
		 FROM reminders WHERE status='pending' AND due_at <= $1 ORDER BY due_at ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func scanReminders(rows pgx.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		var rem Reminder
		if err := rows.Scan(&rem.ID, &rem.PatientID, &rem.Text, &rem.DueAt,
			&rem.Method, &rem.Status, &rem.CreatedAt, &rem.SentAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkReminderSent(ctx context.Context, id string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reminders SET status='sent', sent_at=$2 WHERE id=$1 AND status='pending'`,
		id, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing transitioned: either the id is unknown or it already left
	// the pending state.
	var status ReminderStatus
	err = s.pool.QueryRow(ctx, `SELECT status FROM reminders WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrReminderNotFound
	}
	if err != nil {
		return fmt.Errorf("check reminder status: %w", err)
	}
	return ErrReminderAlreadySent
}

func (s *PostgresStore) RevertReminderSent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reminders SET status='pending', sent_at=NULL WHERE id=$1 AND status='sent'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("revert reminder: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM reminders WHERE id=$1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check reminder: %w", err)
	}
	if !exists {
		return ErrReminderNotFound
	}
	return nil
}

func (s *PostgresStore) SaveAudit(ctx context.Context, entry AuditEntry) (AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var trace any
	if len(entry.ToolTrace) > 0 {
		trace = []byte(entry.ToolTrace)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, session_id, patient_ref, user_message, assistant_reply, tool_trace, triage_tag, latency_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.SessionID, entry.PatientRef, entry.UserMessage, entry.AssistantReply,
		trace, entry.TriageTag, entry.LatencyMS, entry.CreatedAt,
	)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("save audit entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, sessionID string) ([]AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, patient_ref, user_message, assistant_reply, tool_trace, triage_tag, latency_ms, created_at
		 FROM audit_log WHERE session_id=$1 ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			entry AuditEntry
			trace []byte
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.PatientRef, &entry.UserMessage,
			&entry.AssistantReply, &trace, &entry.TriageTag, &entry.LatencyMS, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(trace) > 0 {
			entry.ToolTrace = trace
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*MemoryStore)(nil)
