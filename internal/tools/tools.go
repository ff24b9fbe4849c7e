// Package tools exposes the assistant's callable tools behind a registry
// the orchestrator drives. Tool failures are reported back to the model
// as error results, never as Go errors that abort the conversation.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medassistd/internal/llm"
	"github.com/fyrsmithlabs/medassistd/internal/logging"
	"github.com/fyrsmithlabs/medassistd/internal/observability"
)

var tracer = otel.Tracer("medassistd/tools")

// ToolResult is what a tool hands back to the model.
type ToolResult struct {
	Content string
	IsError bool
	// TriageTag is set by the triage tool; the orchestrator carries the
	// last one into the chat response.
	TriageTag string
}

func errorResult(format string, args ...any) ToolResult {
	return ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

// Tool is a named handler with a JSON Schema argument definition.
type Tool interface {
	Definition() llm.ToolDef
	Execute(ctx context.Context, args json.RawMessage) ToolResult
}

// Registry holds tools in registration order.
type Registry struct {
	logger  *logging.Logger
	metrics *observability.Metrics
	names   []string
	tools   map[string]Tool
}

// NewRegistry builds an empty registry. metrics may be nil.
func NewRegistry(logger *logging.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		logger:  logger.Named("tools"),
		metrics: metrics,
		tools:   make(map[string]Tool),
	}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	name := t.Definition().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.names = append(r.names, name)
	r.tools[name] = t
	return nil
}

// Definitions returns every tool definition in registration order, ready
// to pass to the collaborator.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.names))
	for _, name := range r.names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute runs one requested call. Unknown names and handler panics come
// back as error results so the conversation loop keeps going.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (result ToolResult) {
	ctx, span := tracer.Start(ctx, "tools.Execute",
		trace.WithAttributes(attribute.String("tool", call.Name)))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(ctx, "tool handler panicked",
				zap.String("tool", call.Name),
				zap.Any("panic", rec),
			)
			result = errorResult("tool %s failed unexpectedly", call.Name)
		}
		outcome := observability.ToolOutcomeOK
		if result.IsError {
			outcome = observability.ToolOutcomeError
			span.SetStatus(codes.Error, result.Content)
		}
		r.metrics.RecordToolCall(call.Name, outcome)
	}()

	tool, ok := r.tools[call.Name]
	if !ok {
		r.logger.Warn(ctx, "model requested unknown tool", zap.String("tool", call.Name))
		return errorResult("unknown tool %q", call.Name)
	}

	r.logger.Debug(ctx, "executing tool",
		zap.String("tool", call.Name),
		zap.String("call_id", call.ID),
	)
	return tool.Execute(ctx, call.Args)
}
