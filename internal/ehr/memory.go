package ehr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Store used when no database is configured,
// and by tests.
type MemoryStore struct {
	mu           sync.RWMutex
	patients     map[string]Patient // by internal id
	patientByRef map[string]string  // ref -> id
	appointments map[string]Appointment
	reminders    map[string]Reminder
	audit        []AuditEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients:     make(map[string]Patient),
		patientByRef: make(map[string]string),
		appointments: make(map[string]Appointment),
		reminders:    make(map[string]Reminder),
	}
}

func (s *MemoryStore) CreatePatient(_ context.Context, p Patient) (Patient, error) {
	if strings.TrimSpace(p.Ref) == "" {
		return Patient{}, fmt.Errorf("patient ref cannot be empty")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.patientByRef[p.Ref]; exists {
		return Patient{}, fmt.Errorf("patient ref %q already exists", p.Ref)
	}
	s.patients[p.ID] = p
	s.patientByRef[p.Ref] = p.ID
	return p, nil
}

func (s *MemoryStore) FindPatientByRef(_ context.Context, ref string) (Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.patientByRef[ref]
	if !ok {
		return Patient{}, ErrUnknownPatient
	}
	return s.patients[id], nil
}

func (s *MemoryStore) FindPatientByID(_ context.Context, id string) (Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return Patient{}, ErrUnknownPatient
	}
	return p, nil
}

func (s *MemoryStore) CreateAppointment(_ context.Context, appt Appointment) (Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[appt.PatientID]; !ok {
		return Appointment{}, ErrUnknownPatient
	}

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
	s.appointments[appt.ID] = appt
	return appt, nil
}

func (s *MemoryStore) ListAppointments(_ context.Context, patientID string) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, appt := range s.appointments {
		if appt.PatientID == patientID {
			out = append(out, appt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *MemoryStore) CreateReminder(_ context.Context, rem Reminder) (Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rem.PatientID != nil {
		if _, ok := s.patients[*rem.PatientID]; !ok {
			return Reminder{}, ErrUnknownPatient
		}
	}
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
	s.reminders[rem.ID] = rem
	return rem, nil
}

func (s *MemoryStore) ListReminders(_ context.Context, patientID string, includeSent bool) ([]Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Reminder
	for _, rem := range s.reminders {
		switch {
		case patientID == "" && rem.PatientID != nil:
			continue
		case patientID != "" && (rem.PatientID == nil || *rem.PatientID != patientID):
			continue
		}
		if !includeSent && rem.Status == ReminderSent {
			continue
		}
		out = append(out, rem)
	}
	sortRemindersByDue(out)
	return out, nil
}

func (s *MemoryStore) DueReminders(_ context.Context, now time.Time) ([]Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Reminder
	for _, rem := range s.reminders {
		if rem.Status == ReminderPending && !rem.DueAt.After(now) {
			out = append(out, rem)
		}
	}
	sortRemindersByDue(out)
	return out, nil
}

func (s *MemoryStore) MarkReminderSent(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rem, ok := s.reminders[id]
	if !ok {
		return ErrReminderNotFound
	}
	if rem.Status != ReminderPending {
		return ErrReminderAlreadySent
	}
	sentAt := now.UTC()
	rem.Status = ReminderSent
	rem.SentAt = &sentAt
	s.reminders[id] = rem
	return nil
}

func (s *MemoryStore) RevertReminderSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rem, ok := s.reminders[id]
	if !ok {
		return ErrReminderNotFound
	}
	if rem.Status == ReminderPending {
		return nil
	}
	rem.Status = ReminderPending
	rem.SentAt = nil
	s.reminders[id] = rem
	return nil
}

func (s *MemoryStore) SaveAudit(_ context.Context, entry AuditEntry) (AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return entry, nil
}

func (s *MemoryStore) ListAudit(_ context.Context, sessionID string) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AuditEntry
	for _, entry := range s.audit {
		if entry.SessionID == sessionID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func sortRemindersByDue(rems []Reminder) {
	sort.Slice(rems, func(i, j int) bool { return rems[i].DueAt.Before(rems[j].DueAt) })
}
