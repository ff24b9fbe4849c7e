package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/medassistd/internal/ehr"
	"github.com/fyrsmithlabs/medassistd/internal/llm"
	"github.com/fyrsmithlabs/medassistd/internal/logging"
	"github.com/fyrsmithlabs/medassistd/internal/orchestrator"
	"github.com/fyrsmithlabs/medassistd/internal/session"
)

type fakeChatter struct {
	resp orchestrator.Response
	err  error
	got  orchestrator.Request
}

func (f *fakeChatter) Chat(_ context.Context, req orchestrator.Request) (orchestrator.Response, error) {
	f.got = req
	if f.err != nil {
		return orchestrator.Response{}, f.err
	}
	return f.resp, nil
}

type apiFixture struct {
	echo     *echo.Echo
	chatter  *fakeChatter
	store    *ehr.MemoryStore
	sessions *session.Manager
	patient  ehr.Patient
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := ehr.NewMemoryStore()
	patient, err := store.CreatePatient(context.Background(), ehr.Patient{
		Ref:   "MRN-1001",
		Name:  "Jordan Blake",
		Email: "jordan@example.com",
	})
	require.NoError(t, err)

	sessions, err := session.NewManager(session.Config{}, logging.Nop())
	require.NoError(t, err)

	chatter := &fakeChatter{}
	api, err := NewAPI(chatter, sessions, store, logging.Nop())
	require.NoError(t, err)

	e := echo.New()
	api.RegisterRoutes(e)

	return &apiFixture{
		echo:     e,
		chatter:  chatter,
		store:    store,
		sessions: sessions,
		patient:  patient,
	}
}

func (f *apiFixture) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	assert.NotEmpty(t, envelope.Error.Message)
	return envelope.Error.Code
}

func TestAPI_Chat(t *testing.T) {
	f := newAPIFixture(t)
	f.chatter.resp = orchestrator.Response{
		SessionID: "sess-1",
		Reply:     "Rest and drink fluids.",
		Sources:   []string{"cold-care.md"},
		TriageTag: "triage:self_care",
	}

	rec := f.do(http.MethodPost, "/api/v1/chat",
		`{"session_id":"sess-1","patient_ref":"MRN-1001","message":"I have a cold"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{
		"session_id": "sess-1",
		"reply": "Rest and drink fluids.",
		"sources": ["cold-care.md"],
		"triage_tag": "triage:self_care"
	}`, rec.Body.String())

	assert.Equal(t, "I have a cold", f.chatter.got.Message)
	assert.Equal(t, "MRN-1001", f.chatter.got.PatientRef)
}

func TestAPI_Chat_EmptyMessage(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/chat", `{"message":"   "}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, errorCode(t, rec))
}

func TestAPI_Chat_MalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/chat", `{"message":`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, errorCode(t, rec))
}

func TestAPI_Chat_CollaboratorUnavailable(t *testing.T) {
	f := newAPIFixture(t)
	f.chatter.err = fmt.Errorf("completion request: %w", llm.ErrCollaboratorUnavailable)

	rec := f.do(http.MethodPost, "/api/v1/chat", `{"message":"hello"}`)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, codeCollaboratorUnavailable, errorCode(t, rec))
}

func TestAPI_Chat_InternalError(t *testing.T) {
	f := newAPIFixture(t)
	f.chatter.err = errors.New("session store corrupted")

	rec := f.do(http.MethodPost, "/api/v1/chat", `{"message":"hello"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, codeInternal, errorCode(t, rec))
}

func TestAPI_SessionTurns(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.sessions.Append(context.Background(), "sess-1",
		session.UserTurn("I have a headache"),
		session.AssistantTurn("How long has it lasted?", ""),
	))

	rec := f.do(http.MethodGet, "/api/v1/sessions/sess-1/turns", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp sessionTurnsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	require.Len(t, resp.Turns, 2)
	assert.Equal(t, session.RoleUser, resp.Turns[0].Role)
	assert.Equal(t, "How long has it lasted?", resp.Turns[1].Content)
}

func TestAPI_SessionTurns_Unknown(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/sessions/nope/turns", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, errorCode(t, rec))
}

func TestAPI_CreateReminder_Guest(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/reminders",
		`{"text":"drink water","due":"2026-09-01T09:00:00Z"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rem ehr.Reminder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rem))
	assert.True(t, rem.IsGuest())
	assert.Equal(t, ehr.MethodSystem, rem.Method)
	assert.Equal(t, ehr.ReminderPending, rem.Status)

	list := f.do(http.MethodGet, "/api/v1/reminders", "")
	require.Equal(t, http.StatusOK, list.Code)
	var resp listRemindersResponse
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &resp))
	require.Len(t, resp.Reminders, 1)
	assert.Equal(t, rem.ID, resp.Reminders[0].ID)
}

func TestAPI_CreateReminder_KnownPatient(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/reminders",
		`{"patient_ref":"MRN-1001","text":"take antibiotics","due":"2026-09-01T09:00:00Z","method":"email"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rem ehr.Reminder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rem))
	require.NotNil(t, rem.PatientID)
	assert.Equal(t, f.patient.ID, *rem.PatientID)
	assert.Equal(t, ehr.MethodEmail, rem.Method)

	list := f.do(http.MethodGet, "/api/v1/reminders?patient_ref=MRN-1001", "")
	require.Equal(t, http.StatusOK, list.Code)
	var resp listRemindersResponse
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &resp))
	require.Len(t, resp.Reminders, 1)
}

func TestAPI_CreateReminder_UnknownPatient(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/reminders",
		`{"patient_ref":"MRN-9999","text":"take antibiotics","due":"2026-09-01T09:00:00Z"}`)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeUnknownPatient, errorCode(t, rec))
}

func TestAPI_CreateReminder_Validation(t *testing.T) {
	f := newAPIFixture(t)

	for name, body := range map[string]string{
		"missing text": `{"due":"2026-09-01T09:00:00Z"}`,
		"missing due":  `{"text":"drink water"}`,
		"bad due":      `{"text":"drink water","due":"next tuesday"}`,
		"bad method":   `{"text":"drink water","due":"2026-09-01T09:00:00Z","method":"carrier_pigeon"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/reminders", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, codeInvalidRequest, errorCode(t, rec))
		})
	}
}

func TestAPI_ListReminders_IncludeSent(t *testing.T) {
	f := newAPIFixture(t)

	created := f.do(http.MethodPost, "/api/v1/reminders",
		`{"text":"drink water","due":"2026-09-01T09:00:00Z"}`)
	require.Equal(t, http.StatusCreated, created.Code)
	var rem ehr.Reminder
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &rem))

	require.NoError(t, f.store.MarkReminderSent(context.Background(), rem.ID, time.Now()))

	pendingOnly := f.do(http.MethodGet, "/api/v1/reminders", "")
	var resp listRemindersResponse
	require.NoError(t, json.Unmarshal(pendingOnly.Body.Bytes(), &resp))
	assert.Empty(t, resp.Reminders)

	all := f.do(http.MethodGet, "/api/v1/reminders?include_sent=true", "")
	require.NoError(t, json.Unmarshal(all.Body.Bytes(), &resp))
	require.Len(t, resp.Reminders, 1)
	assert.Equal(t, ehr.ReminderSent, resp.Reminders[0].Status)

	bad := f.do(http.MethodGet, "/api/v1/reminders?include_sent=maybe", "")
	require.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, codeInvalidRequest, errorCode(t, bad))
}

func TestAPI_CreateAppointment(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/appointments",
		`{"patient_ref":"MRN-1001","scheduled_at":"2026-09-02T10:00:00Z","reason":"persistent cough"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var appt ehr.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))
	assert.Equal(t, f.patient.ID, appt.PatientID)
	assert.Equal(t, ehr.DefaultAppointmentMinutes, appt.DurationMinutes)
	assert.Equal(t, ehr.DefaultProvider, appt.Provider)
	assert.Equal(t, ehr.AppointmentScheduled, appt.Status)
	assert.Equal(t, "persistent cough", appt.Reason)

	list := f.do(http.MethodGet, "/api/v1/appointments?patient_ref=MRN-1001", "")
	require.Equal(t, http.StatusOK, list.Code)
	var resp listAppointmentsResponse
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &resp))
	require.Len(t, resp.Appointments, 1)
	assert.Equal(t, appt.ID, resp.Appointments[0].ID)
}

func TestAPI_CreateAppointment_Validation(t *testing.T) {
	f := newAPIFixture(t)

	for name, tc := range map[string]struct {
		body     string
		wantCode int
		wantErr  string
	}{
		"missing patient_ref": {
			body:     `{"scheduled_at":"2026-09-02T10:00:00Z"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  codeInvalidRequest,
		},
		"missing scheduled_at": {
			body:     `{"patient_ref":"MRN-1001"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  codeInvalidRequest,
		},
		"unknown patient": {
			body:     `{"patient_ref":"MRN-9999","scheduled_at":"2026-09-02T10:00:00Z"}`,
			wantCode: http.StatusNotFound,
			wantErr:  codeUnknownPatient,
		},
	} {
		t.Run(name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/appointments", tc.body)
			require.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tc.wantErr, errorCode(t, rec))
		})
	}
}

func TestAPI_ListAppointments_RequiresRef(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/appointments", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, errorCode(t, rec))
}

func TestAPI_GetPatient(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/patients/MRN-1001", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var patient ehr.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patient))
	assert.Equal(t, "Jordan Blake", patient.Name)

	missing := f.do(http.MethodGet, "/api/v1/patients/MRN-9999", "")
	require.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, codeUnknownPatient, errorCode(t, missing))
}

func TestAPI_UnknownRouteUsesEnvelope(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/nope", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, errorCode(t, rec))
}

func TestAPI_MetricsRoute(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestNewAPI_Validation(t *testing.T) {
	store := ehr.NewMemoryStore()
	sessions, err := session.NewManager(session.Config{}, logging.Nop())
	require.NoError(t, err)
	chatter := &fakeChatter{}

	_, err = NewAPI(nil, sessions, store, logging.Nop())
	require.Error(t, err)

	_, err = NewAPI(chatter, nil, store, logging.Nop())
	require.Error(t, err)

	_, err = NewAPI(chatter, sessions, nil, logging.Nop())
	require.Error(t, err)

	api, err := NewAPI(chatter, sessions, store, nil)
	require.NoError(t, err, "nil logger is acceptable")
	require.NotNil(t, api)
}
