package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/medassistd/internal/triage"
)

const triageToolCatalog = `{
  "default_explanation": "Nothing concerning was reported; self-care is reasonable.",
  "symptoms": [
    {
      "symptom": "fever",
      "tier": "self_care",
      "explanation": "Most fevers resolve with rest and fluids.",
      "overrides": [
        {
          "when": [{"type": "at_least", "field": "temperature_c", "value": 40}],
          "tier": "emergency",
          "explanation": "A fever this high needs immediate care."
        }
      ]
    }
  ]
}`

func newTriageTool(t *testing.T) *TriageTool {
	t.Helper()
	cat, err := triage.ParseCatalog([]byte(triageToolCatalog))
	require.NoError(t, err)
	tool, err := NewTriageTool(triage.NewEngine(cat), nil)
	require.NoError(t, err)
	return tool
}

func TestTriageTool_Execute(t *testing.T) {
	tool := newTriageTool(t)

	result := tool.Execute(context.Background(), []byte(`{"symptoms":{"fever":{"temperature_c":41}}}`))
	require.False(t, result.IsError, result.Content)
	assert.Equal(t, "triage:emergency", result.TriageTag)

	var resp triageResponse
	require.NoError(t, json.Unmarshal([]byte(result.Content), &resp))
	assert.Equal(t, "emergency", resp.Tier)
	assert.Equal(t, "triage:emergency", resp.TriageTag)
	require.NotEmpty(t, resp.Explanations)
	assert.Contains(t, resp.Explanations[0], "immediate care")
	assert.Equal(t, []string{"fever"}, resp.MatchedRules)
}

func TestTriageTool_Execute_PresenceOnly(t *testing.T) {
	tool := newTriageTool(t)

	// Scalar values such as true mark presence without details.
	result := tool.Execute(context.Background(), []byte(`{"symptoms":{"fever":true}}`))
	require.False(t, result.IsError, result.Content)
	assert.Equal(t, "triage:self_care", result.TriageTag)
}

func TestTriageTool_Execute_ListForm(t *testing.T) {
	tool := newTriageTool(t)

	result := tool.Execute(context.Background(), []byte(`{"symptoms":["fever"]}`))
	require.False(t, result.IsError, result.Content)
	assert.Equal(t, "triage:self_care", result.TriageTag)
}

func TestTriageTool_Execute_RecordsVerdictMetric(t *testing.T) {
	cat, err := triage.ParseCatalog([]byte(triageToolCatalog))
	require.NoError(t, err)
	metrics := newTestMetrics()
	tool, err := NewTriageTool(triage.NewEngine(cat), metrics)
	require.NoError(t, err)

	tool.Execute(context.Background(), []byte(`{"symptoms":{"fever":{"temperature_c":41}}}`))

	got := testutil.ToFloat64(metrics.TriageVerdicts.WithLabelValues("emergency"))
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestTriageTool_Execute_InvalidArgs(t *testing.T) {
	tool := newTriageTool(t)

	for name, args := range map[string]string{
		"missing symptoms": `{}`,
		"empty object":     `{"symptoms":{}}`,
		"empty list":       `{"symptoms":[]}`,
		"wrong shape":      `{"symptoms":42}`,
		"broken json":      `{"symptoms":`,
	} {
		t.Run(name, func(t *testing.T) {
			result := tool.Execute(context.Background(), []byte(args))
			assert.True(t, result.IsError, "args %s should be rejected", args)
		})
	}
}

func TestParseSymptomFacts(t *testing.T) {
	facts, err := parseSymptomFacts([]byte(`{"Chest_Pain":{"severity":"severe"},"nausea":true}`))
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "severe", facts["Chest_Pain"]["severity"])
	assert.Nil(t, facts["nausea"])
}

func TestNewTriageTool_NilEngine(t *testing.T) {
	_, err := NewTriageTool(nil, nil)
	require.Error(t, err)
}
