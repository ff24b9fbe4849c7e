package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medassistd/internal/ehr"
	"github.com/fyrsmithlabs/medassistd/internal/logging"
)

// ErrDeliveryFailure is returned when a dispatch attempt did not reach
// the delivery channel. The scheduler reverts the reminder to pending
// and retries it on a later tick.
var ErrDeliveryFailure = errors.New("reminder delivery failed")

// DefaultSubjectPrefix groups delivery subjects when the configuration
// does not override it.
const DefaultSubjectPrefix = "medassist.reminders"

// Dispatcher delivers one due reminder to its patient.
type Dispatcher interface {
	Dispatch(ctx context.Context, rem ehr.Reminder, patient ehr.Patient) error
}

// logDispatcher records deliveries in the log. It is the default when
// no notification transport is configured.
type logDispatcher struct {
	logger *logging.Logger
}

// NewLogDispatcher returns a Dispatcher that only logs deliveries.
func NewLogDispatcher(logger *logging.Logger) Dispatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &logDispatcher{logger: logger.Named("dispatch")}
}

func (d *logDispatcher) Dispatch(ctx context.Context, rem ehr.Reminder, patient ehr.Patient) error {
	d.logger.Info(ctx, "reminder delivered",
		zap.String("reminder_id", rem.ID),
		zap.String("patient_ref", patient.Ref),
		zap.String("method", string(rem.Method)),
		zap.Time("due_at", rem.DueAt),
	)
	return nil
}

// deliveryEvent is the JSON payload published for each dispatched
// reminder. Downstream consumers (mail relay, SMS gateway) subscribe to
// the subject that matches the methods they handle.
type deliveryEvent struct {
	ReminderID string    `json:"reminder_id"`
	PatientID  string    `json:"patient_id"`
	PatientRef string    `json:"patient_ref"`
	Name       string    `json:"name,omitempty"`
	Email      string    `json:"email,omitempty"`
	Text       string    `json:"text"`
	DueAt      time.Time `json:"due_at"`
	Method     string    `json:"method"`
}

// publisher is the subset of *nats.Conn the dispatcher uses.
type publisher interface {
	Publish(subj string, data []byte) error
}

// natsDispatcher publishes one delivery event per reminder to
// <prefix>.<method>.
type natsDispatcher struct {
	conn          publisher
	subjectPrefix string
	logger        *logging.Logger
}

// NewNATSDispatcher returns a Dispatcher that hands deliveries to NATS.
// The connection is owned by the caller.
func NewNATSDispatcher(conn *nats.Conn, subjectPrefix string, logger *logging.Logger) (Dispatcher, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	return newNATSDispatcher(conn, subjectPrefix, logger), nil
}

func newNATSDispatcher(conn publisher, subjectPrefix string, logger *logging.Logger) Dispatcher {
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &natsDispatcher{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		logger:        logger.Named("dispatch"),
	}
}

func (d *natsDispatcher) Dispatch(ctx context.Context, rem ehr.Reminder, patient ehr.Patient) error {
	event := deliveryEvent{
		ReminderID: rem.ID,
		PatientID:  patient.ID,
		PatientRef: patient.Ref,
		Name:       patient.Name,
		Email:      patient.Email,
		Text:       rem.Text,
		DueAt:      rem.DueAt,
		Method:     string(rem.Method),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %w", ErrDeliveryFailure, err)
	}

	subject := fmt.Sprintf("%s.%s", d.subjectPrefix, rem.Method)
	if err := d.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("%w: publish %s: %w", ErrDeliveryFailure, subject, err)
	}

	d.logger.Debug(ctx, "delivery event published",
		zap.String("reminder_id", rem.ID),
		zap.String("subject", subject),
	)
	return nil
}
