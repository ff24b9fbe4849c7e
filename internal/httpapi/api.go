// Package httpapi mounts the public JSON API onto the server core.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medassistd/internal/ehr"
	"github.com/fyrsmithlabs/medassistd/internal/llm"
	"github.com/fyrsmithlabs/medassistd/internal/logging"
	"github.com/fyrsmithlabs/medassistd/internal/observability"
	"github.com/fyrsmithlabs/medassistd/internal/orchestrator"
	"github.com/fyrsmithlabs/medassistd/internal/session"
)

// Error envelope codes.
const (
	codeUnknownPatient          = "unknown_patient"
	codeInvalidRequest          = "invalid_request"
	codeCollaboratorUnavailable = "collaborator_unavailable"
	codeNotFound                = "not_found"
	codeInternal                = "internal"
)

// Chatter runs one conversational exchange.
type Chatter interface {
	Chat(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
}

// API holds the handlers for the v1 routes.
type API struct {
	chatter  Chatter
	sessions *session.Manager
	records  ehr.Store
	logger   *logging.Logger
}

// NewAPI creates the API handler set.
func NewAPI(chatter Chatter, sessions *session.Manager, records ehr.Store, logger *logging.Logger) (*API, error) {
	if chatter == nil {
		return nil, errors.New("chatter is required")
	}
	if sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if records == nil {
		return nil, errors.New("records store is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &API{
		chatter:  chatter,
		sessions: sessions,
		records:  records,
		logger:   logger.Named("api"),
	}, nil
}

// RegisterRoutes mounts the v1 API, the metrics endpoint, and the
// envelope-producing error handler.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.HTTPErrorHandler = a.handleError
	e.GET("/metrics", echo.WrapHandler(observability.MetricsHandler()))

	v1 := e.Group("/api/v1")
	v1.POST("/chat", a.handleChat)
	v1.GET("/sessions/:id/turns", a.handleSessionTurns)
	v1.POST("/reminders", a.handleCreateReminder)
	v1.GET("/reminders", a.handleListReminders)
	v1.POST("/appointments", a.handleCreateAppointment)
	v1.GET("/appointments", a.handleListAppointments)
	v1.GET("/patients/:ref", a.handleGetPatient)
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

func apiError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, errorEnvelope{Error: errorDetail{Code: code, Message: message}})
}

// handleError converts errors that escape the handlers (binding
// failures, unmatched routes, panics surfaced by the recover
// middleware) into the error envelope.
func (a *API) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	code := codeInternal
	message := "internal error"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		message = fmt.Sprintf("%v", he.Message)
		switch {
		case status == http.StatusNotFound:
			code = codeNotFound
		case status >= 400 && status < 500:
			code = codeInvalidRequest
		}
	} else {
		a.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
	}

	if writeErr := apiError(c, status, code, message); writeErr != nil {
		a.logger.Error(c.Request().Context(), "writing error response failed", zap.Error(writeErr))
	}
}

// lookupPatient resolves a patient ref, writing the 404 envelope when
// it does not resolve. ok is false when the caller should stop and
// return err.
func (a *API) lookupPatient(c echo.Context, ref string) (patient ehr.Patient, ok bool, err error) {
	patient, err = a.records.FindPatientByRef(c.Request().Context(), ref)
	if errors.Is(err, ehr.ErrUnknownPatient) {
		return ehr.Patient{}, false, apiError(c, http.StatusNotFound, codeUnknownPatient,
			fmt.Sprintf("unknown patient %q", ref))
	}
	if err != nil {
		return ehr.Patient{}, false, err
	}
	return patient, true, nil
}

func (a *API) handleChat(c echo.Context) error {
	var req orchestrator.Request
	if err := c.Bind(&req); err != nil {
		return apiError(c, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return apiError(c, http.StatusBadRequest, codeInvalidRequest, "message is required")
	}

	resp, err := a.chatter.Chat(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, llm.ErrCollaboratorUnavailable) {
			return apiError(c, http.StatusServiceUnavailable, codeCollaboratorUnavailable,
				"the assistant is temporarily unavailable, please retry shortly")
		}
		a.logger.Error(c.Request().Context(), "chat failed", zap.Error(err))
		return apiError(c, http.StatusInternalServerError, codeInternal, "internal error")
	}

	return c.JSON(http.StatusOK, resp)
}

type sessionTurnsResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []session.Turn `json:"turns"`
}

func (a *API) handleSessionTurns(c echo.Context) error {
	id := c.Param("id")
	turns, err := a.sessions.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return apiError(c, http.StatusNotFound, codeNotFound,
				fmt.Sprintf("session %q not found", id))
		}
		return err
	}
	return c.JSON(http.StatusOK, sessionTurnsResponse{SessionID: id, Turns: turns})
}

type createReminderRequest struct {
	PatientRef string    `json:"patient_ref,omitempty"`
	Text       string    `json:"text"`
	Due        time.Time `json:"due"`
	Method     string    `json:"method,omitempty"`
}

func (a *API) handleCreateReminder(c echo.Context) error {
	var req createReminderRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return apiError(c, http.StatusBadRequest, codeInvalidRequest, "text is required")
	}
	if req.Due.IsZero() {
		return apiError(c, http.StatusBadRequest, codeInvalidRequest, "due is required (RFC 3339 timestamp)")
	}

	method := ehr.DeliveryMethod(req.Method)
	if method == "" {
		method = ehr.MethodSystem
	}
	if !ehr.ValidMethod(method) {
		return apiError(c, http.StatusBadRequest, codeInvalidRequest,
			fmt.Sprintf("unknown delivery method %q", req.Method))
	}

	var patientID *string
	if req.PatientRef != "" {
		patient, ok, err := a.lookupPatient(c, req.PatientRef)
		if !ok {
			return err
		}
		patientID = &patient.ID
	}

	rem, err := a.records.CreateReminder(c.Request().Context(), ehr.Reminder{
		PatientID: patientID,
		Text:      req.Text,
		DueAt:     req.Due,
		Method:    method,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rem)
}

type listRemindersResponse struct {
	Reminders []ehr.Reminder `json:"reminders"`
}

func (a *API) handleListReminders(c echo.Context) error {
	includeSent := false
	if v := c.QueryParam("include_sent"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return apiError(c, http.StatusBadRequest, codeInvalidRequest,
				fmt.Sprintf("include_sent must be a boolean, got %q", v))
		}
		includeSent = parsed
	}

	patientID := ""
	if ref := c.QueryParam("patient_ref"); ref != "" {
		patient, ok, err := a.lookupPatient(c, ref)
		if !ok {
			return err
		}
		patientID = patient.ID
	}

	rems, err := a.records.ListReminders(c.Request().Context(), patientID, includeSent)
	if err != nil {
		return err
	}
	if rems == nil {
		rems = []ehr.Reminder{}
	}
	return c.JSON(http.StatusOK, listRemindersResponse{Reminders: rems})
}

type createAppointmentRequest struct {
	PatientRef      string    `json:"patient_ref"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	Provider        string    `json:"provider,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

func (a *API) handleCreateAppointment(c echo.Context) error {
	var req createAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
	}
	if req.PatientRef == "" {
		return apiError(c, http.StatusBadRequest, codeInvalidRequest, "patient_ref is required")
	}
	if req.ScheduledAt.IsZero() {
		return apiError(c, http.StatusBadRequest, codeInvalidRequest, "scheduled_at is required (RFC 3339 timestamp)")
	}

	patient, ok, err := a.lookupPatient(c, req.PatientRef)
	if !ok {
		return err
	}

	appt, err := a.records.CreateAppointment(c.Request().Context(), ehr.Appointment{
		PatientID:       patient.ID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		Provider:        req.Provider,
		Reason:          req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, appt)
}

type listAppointmentsResponse struct {
	Appointments []ehr.Appointment `json:"appointments"`
}

func (a *API) handleListAppointments(c echo.Context) error {
	ref := c.QueryParam("patient_ref")
	if ref == "" {
		return apiError(c, http.StatusBadRequest, codeInvalidRequest, "patient_ref is required")
	}

	patient, ok, err := a.lookupPatient(c, ref)
	if !ok {
		return err
	}

	appts, err := a.records.ListAppointments(c.Request().Context(), patient.ID)
	if err != nil {
		return err
	}
	if appts == nil {
		appts = []ehr.Appointment{}
	}
	return c.JSON(http.StatusOK, listAppointmentsResponse{Appointments: appts})
}

func (a *API) handleGetPatient(c echo.Context) error {
	patient, ok, err := a.lookupPatient(c, c.Param("ref"))
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, patient)
}
