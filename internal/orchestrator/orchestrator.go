// Package orchestrator drives the bounded tool-calling conversation loop
// around the LLM collaborator and owns the session and audit bookkeeping
// for every chat.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medassistd/internal/config"
	"github.com/fyrsmithlabs/medassistd/internal/ehr"
	"github.com/fyrsmithlabs/medassistd/internal/llm"
	"github.com/fyrsmithlabs/medassistd/internal/logging"
	"github.com/fyrsmithlabs/medassistd/internal/observability"
	"github.com/fyrsmithlabs/medassistd/internal/session"
	"github.com/fyrsmithlabs/medassistd/internal/tools"
)

const instrumentationName = "medassistd/orchestrator"

// ErrToolLoopExceeded marks a chat that ran out of tool iterations. The
// user still receives a degraded reply; the sentinel shows up in logs and
// spans.
var ErrToolLoopExceeded = errors.New("tool loop exceeded")

// DefaultMaxToolIterations bounds the loop when config does not.
const DefaultMaxToolIterations = 5

// apologyReply is the fixed reply for an exhausted tool loop.
const apologyReply = "I wasn't able to complete that request. Please try again."

// Request is one user chat message.
type Request struct {
	SessionID  string `json:"session_id,omitempty"`
	PatientRef string `json:"patient_ref,omitempty"`
	Message    string `json:"message"`
}

// Response is the assistant's reply.
type Response struct {
	SessionID string   `json:"session_id"`
	Reply     string   `json:"reply"`
	Sources   []string `json:"sources,omitempty"`
	TriageTag string   `json:"triage_tag,omitempty"`
}

// Config tunes the conversation loop.
type Config struct {
	MaxToolIterations int
}

// FromAppConfig converts the application llm section.
func FromAppConfig(cfg config.LLMConfig) Config {
	return Config{MaxToolIterations: cfg.MaxToolIterations}
}

// Orchestrator coordinates collaborator, tools, session memory, and the
// audit trail.
type Orchestrator struct {
	collaborator llm.Collaborator
	registry     *tools.Registry
	sessions     *session.Manager
	records      ehr.Store
	maxIters     int
	logger       *logging.Logger
	metrics      *observability.Metrics
	tracer       trace.Tracer
}

// New wires an orchestrator. metrics may be nil.
func New(cfg Config, collaborator llm.Collaborator, registry *tools.Registry, sessions *session.Manager, records ehr.Store, logger *logging.Logger, metrics *observability.Metrics) (*Orchestrator, error) {
	if collaborator == nil {
		return nil, errors.New("collaborator is required")
	}
	if registry == nil {
		return nil, errors.New("registry is required")
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
	maxIters := cfg.MaxToolIterations
	if maxIters <= 0 {
		maxIters = DefaultMaxToolIterations
	}
	return &Orchestrator{
		collaborator: collaborator,
		registry:     registry,
		sessions:     sessions,
		records:      records,
		maxIters:     maxIters,
		logger:       logger.Named("orchestrator"),
		metrics:      metrics,
		tracer:       otel.Tracer(instrumentationName),
	}, nil
}

// toolTraceEntry is one audit line for a tool call made during a chat.
type toolTraceEntry struct {
	Tool    string `json:"tool"`
	CallID  string `json:"call_id,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// Chat runs one user message through the conversation loop.
//
// A collaborator failure is returned as an error and leaves session
// memory untouched. An exhausted tool loop degrades to a fixed apology:
// the turn pair is still recorded (without a triage tag) and no error is
// returned.
func (o *Orchestrator) Chat(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Response{}, errors.New("message is required")
	}

	start := time.Now()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.Chat",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	conversation, err := o.buildConversation(ctx, sessionID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.ObserveChat(observability.ChatOutcomeError, time.Since(start))
		return Response{}, err
	}

	defs := o.registry.Definitions()
	var (
		triageTag string
		toolTrace []toolTraceEntry
	)

	for iter := 0; iter < o.maxIters; iter++ {
		result, err := o.collaborator.Complete(ctx, conversation, defs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.metrics.ObserveChat(observability.ChatOutcomeUnavailable, time.Since(start))
			o.logger.Error(ctx, "collaborator failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			return Response{}, fmt.Errorf("chat completion: %w", err)
		}

		if result.Kind == llm.KindFinalAnswer {
			reply, sources := extractSources(result.Text)
			resp := Response{
				SessionID: sessionID,
				Reply:     reply,
				Sources:   sources,
				TriageTag: triageTag,
			}
			if err := o.commit(ctx, req, resp, toolTrace, time.Since(start)); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				o.metrics.ObserveChat(observability.ChatOutcomeError, time.Since(start))
				return Response{}, err
			}
			span.SetAttributes(
				attribute.Int("iterations", iter+1),
				attribute.String("triage_tag", triageTag),
			)
			o.metrics.ObserveChat(observability.ChatOutcomeOK, time.Since(start))
			return resp, nil
		}

		conversation = append(conversation, llm.AssistantToolCalls(result.ToolCalls))
		for _, call := range result.ToolCalls {
			toolResult := o.registry.Execute(ctx, call)
			if toolResult.TriageTag != "" {
				// Last triage invocation wins.
				triageTag = toolResult.TriageTag
			}
			toolTrace = append(toolTrace, toolTraceEntry{
				Tool:    call.Name,
				CallID:  call.ID,
				IsError: toolResult.IsError,
			})
			content := toolResult.Content
			if toolResult.IsError {
				content = "Error: " + toolResult.Content
			}
			conversation = append(conversation, llm.ToolResultMessage(call.ID, call.Name, content))
		}
	}

	// Budget exhausted: degrade to the fixed apology. The turn pair is
	// still recorded, without a triage tag.
	o.logger.Warn(ctx, "tool loop exceeded",
		zap.String("session_id", sessionID),
		zap.Int("max_iterations", o.maxIters),
		zap.Error(ErrToolLoopExceeded),
	)
	span.RecordError(ErrToolLoopExceeded)

	resp := Response{SessionID: sessionID, Reply: apologyReply}
	if err := o.commit(ctx, req, resp, toolTrace, time.Since(start)); err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.metrics.ObserveChat(observability.ChatOutcomeError, time.Since(start))
		return Response{}, err
	}
	o.metrics.ObserveChat(observability.ChatOutcomeExhausted, time.Since(start))
	return resp, nil
}

// buildConversation assembles persona, prior turns, and the new message.
// Only user and assistant turns replay; tool chatter is not persisted.
func (o *Orchestrator) buildConversation(ctx context.Context, sessionID string, req Request) ([]llm.Message, error) {
	conversation := make([]llm.Message, 0, 16)
	conversation = append(conversation, llm.SystemMessage(systemPrompt))

	prior, err := o.sessions.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("load session: %w", err)
	}
	for _, turn := range prior {
		switch turn.Role {
		case session.RoleUser:
			conversation = append(conversation, llm.UserMessage(turn.Content))
		case session.RoleAssistant:
			conversation = append(conversation, llm.AssistantMessage(turn.Content))
		}
	}

	if req.PatientRef != "" {
		conversation = append(conversation, llm.SystemMessage(
			"The user is registered with patient reference "+req.PatientRef+". Pass it to tools that accept patient_ref."))
	}
	conversation = append(conversation, llm.UserMessage(req.Message))
	return conversation, nil
}

// commit appends the turn pair atomically and records the audit entry.
// Audit write failures are logged, not surfaced: the chat already
// happened.
func (o *Orchestrator) commit(ctx context.Context, req Request, resp Response, toolTrace []toolTraceEntry, elapsed time.Duration) error {
	turns := []session.Turn{
		session.UserTurn(req.Message),
		session.AssistantTurn(resp.Reply, resp.TriageTag),
	}
	if err := o.sessions.Append(ctx, resp.SessionID, turns...); err != nil {
		return fmt.Errorf("append session turns: %w", err)
	}

	var traceJSON json.RawMessage
	if len(toolTrace) > 0 {
		if b, err := json.Marshal(toolTrace); err == nil {
			traceJSON = b
		}
	}
	if _, err := o.records.SaveAudit(ctx, ehr.AuditEntry{
		SessionID:      resp.SessionID,
		PatientRef:     req.PatientRef,
		UserMessage:    req.Message,
		AssistantReply: resp.Reply,
		ToolTrace:      traceJSON,
		TriageTag:      resp.TriageTag,
		LatencyMS:      elapsed.Milliseconds(),
	}); err != nil {
		o.logger.Error(ctx, "audit write failed",
			zap.String("session_id", resp.SessionID),
			zap.Error(err),
		)
	}
	return nil
}
