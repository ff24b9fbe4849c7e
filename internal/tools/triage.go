package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/medassistd/internal/llm"
	"github.com/fyrsmithlabs/medassistd/internal/observability"
	"github.com/fyrsmithlabs/medassistd/internal/triage"
)

// TriageTool runs the rule engine over reported symptoms. Its result
// carries the verdict's triage tag so the orchestrator can stamp the
// final response.
type TriageTool struct {
	engine  *triage.Engine
	metrics *observability.Metrics
}

// NewTriageTool builds the triage_symptoms tool. metrics may be nil.
func NewTriageTool(engine *triage.Engine, metrics *observability.Metrics) (*TriageTool, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	return &TriageTool{engine: engine, metrics: metrics}, nil
}

func (t *TriageTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name: "triage_symptoms",
		Description: "Assess reported symptoms against the triage rules and return an " +
			"urgency tier (self_care, see_doctor_soon, or emergency) with explanations. " +
			"Call this whenever the user describes symptoms.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symptoms": map[string]any{
					"type": "object",
					"description": "Reported symptoms keyed by name (e.g. chest_pain, fever). " +
						"The value holds known details such as " +
						`{"severity": "severe", "radiating": true} or {"temperature_c": 39.8}; ` +
						"use true when no details were given.",
					"additionalProperties": true,
				},
			},
			"required": []string{"symptoms"},
		},
	}
}

type triageArgs struct {
	Symptoms json.RawMessage `json:"symptoms"`
}

type triageResponse struct {
	Tier         string   `json:"tier"`
	TriageTag    string   `json:"triage_tag"`
	Explanations []string `json:"explanations"`
	MatchedRules []string `json:"matched_rules,omitempty"`
}

func (t *TriageTool) Execute(ctx context.Context, args json.RawMessage) ToolResult {
	var a triageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorResult("invalid triage_symptoms arguments: %v", err)
	}

	facts, err := parseSymptomFacts(a.Symptoms)
	if err != nil {
		return errorResult("invalid triage_symptoms arguments: %v", err)
	}

	_, span := tracer.Start(ctx, "triage.Evaluate")
	verdict := t.engine.Evaluate(facts)
	span.SetAttributes(
		attribute.Int("symptoms", len(facts)),
		attribute.String("tier", verdict.Tier.String()),
	)
	span.End()

	t.metrics.RecordTriageVerdict(verdict.Tier.String())

	resp := triageResponse{
		Tier:         verdict.Tier.String(),
		TriageTag:    verdict.Tag(),
		Explanations: verdict.Explanations,
		MatchedRules: verdict.MatchedRules,
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return errorResult("encode verdict: %v", err)
	}
	return ToolResult{Content: string(b), TriageTag: verdict.Tag()}
}

// parseSymptomFacts accepts the two shapes models produce: an object
// keyed by symptom name, or a bare list of names.
func parseSymptomFacts(raw json.RawMessage) (triage.Facts, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("symptoms are required")
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err == nil {
		if len(asMap) == 0 {
			return nil, fmt.Errorf("symptoms are required")
		}
		facts := make(triage.Facts, len(asMap))
		for name, v := range asMap {
			v = bytes.TrimSpace(v)
			var details triage.Details
			if len(v) > 0 && v[0] == '{' {
				if err := json.Unmarshal(v, &details); err != nil {
					return nil, fmt.Errorf("symptom %q: %w", name, err)
				}
			}
			// Scalars (true, "3 days", 1) record presence only.
			facts[name] = details
		}
		return facts, nil
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		if len(asList) == 0 {
			return nil, fmt.Errorf("symptoms are required")
		}
		facts := make(triage.Facts, len(asList))
		for _, name := range asList {
			facts[name] = nil
		}
		return facts, nil
	}

	return nil, fmt.Errorf("symptoms must be an object keyed by symptom name or a list of names")
}
