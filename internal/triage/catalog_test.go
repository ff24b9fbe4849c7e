package triage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCatalogJSON = `{
  "default_explanation": "Self-care may be appropriate. Monitor your symptoms.",
  "red_flags": [
    {
      "id": "cardiac-distress",
      "symptoms": ["Chest_Pain", "shortness_of_breath"],
      "tier": "emergency",
      "explanation": "Chest pain with shortness of breath can signal a heart attack."
    }
  ],
  "symptoms": [
    {
      "symptom": "Chest_Pain",
      "tier": "see_doctor_soon",
      "explanation": "Chest pain should be evaluated by a clinician.",
      "overrides": [
        {
          "when": [
            {"type": "equals", "field": "radiating", "value": true},
            {"type": "equals", "field": "severity", "value": "severe"}
          ],
          "tier": "emergency",
          "explanation": "Severe radiating chest pain may indicate a heart attack."
        }
      ]
    },
    {
      "symptom": "fever",
      "tier": "self_care",
      "explanation": "A mild fever can be managed at home."
    }
  ]
}`

// TestParseCatalog tests decoding and normalization of a valid catalog.
func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(validCatalogJSON))
	require.NoError(t, err)

	require.Len(t, cat.Symptoms, 2)
	assert.Equal(t, "chest_pain", cat.Symptoms[0].Symptom, "symptom names are normalized to lower case")
	assert.Equal(t, TierDoctorSoon, cat.Symptoms[0].Tier)
	require.Len(t, cat.Symptoms[0].Overrides, 1)
	assert.Equal(t, TierEmergency, cat.Symptoms[0].Overrides[0].Tier)
	assert.Len(t, cat.Symptoms[0].Overrides[0].When, 2)

	require.Len(t, cat.RedFlags, 1)
	assert.Equal(t, []string{"chest_pain", "shortness_of_breath"}, cat.RedFlags[0].Symptoms)
	assert.NotEmpty(t, cat.DefaultExplanation)
}

// TestParseCatalog_Invalid tests that malformed catalogs are rejected with
// ErrMalformedRuleCatalog.
func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{
			name: "not json",
			in:   `{`,
		},
		{
			name: "unknown tier name",
			in:   `{"default_explanation":"d","symptoms":[{"symptom":"fever","tier":"panic","explanation":"e"}]}`,
		},
		{
			name: "no symptom rules",
			in:   `{"default_explanation":"d","symptoms":[]}`,
		},
		{
			name: "missing default explanation",
			in:   `{"symptoms":[{"symptom":"fever","tier":"self_care","explanation":"e"}]}`,
		},
		{
			name: "empty symptom name",
			in:   `{"default_explanation":"d","symptoms":[{"symptom":"","tier":"self_care","explanation":"e"}]}`,
		},
		{
			name: "duplicate symptom ignoring case",
			in:   `{"default_explanation":"d","symptoms":[{"symptom":"fever","tier":"self_care","explanation":"e"},{"symptom":"Fever","tier":"emergency","explanation":"e2"}]}`,
		},
		{
			name: "missing rule explanation",
			in:   `{"default_explanation":"d","symptoms":[{"symptom":"fever","tier":"self_care","explanation":""}]}`,
		},
		{
			name: "override with empty when clause",
			in:   `{"default_explanation":"d","symptoms":[{"symptom":"fever","tier":"self_care","explanation":"e","overrides":[{"when":[],"tier":"emergency","explanation":"o"}]}]}`,
		},
		{
			name: "override missing explanation",
			in:   `{"default_explanation":"d","symptoms":[{"symptom":"fever","tier":"self_care","explanation":"e","overrides":[{"when":[{"type":"at_least","field":"temperature_c","value":40}],"tier":"emergency","explanation":""}]}]}`,
		},
		{
			name: "unknown condition type",
			in:   `{"default_explanation":"d","symptoms":[{"symptom":"fever","tier":"self_care","explanation":"e","overrides":[{"when":[{"type":"below","field":"temperature_c","value":35}],"tier":"emergency","explanation":"o"}]}]}`,
		},
		{
			name: "red flag with single symptom",
			in:   `{"default_explanation":"d","red_flags":[{"id":"rf","symptoms":["chest_pain"],"tier":"emergency","explanation":"e"}],"symptoms":[{"symptom":"fever","tier":"self_care","explanation":"e"}]}`,
		},
		{
			name: "red flag missing id",
			in:   `{"default_explanation":"d","red_flags":[{"symptoms":["a","b"],"tier":"emergency","explanation":"e"}],"symptoms":[{"symptom":"fever","tier":"self_care","explanation":"e"}]}`,
		},
		{
			name: "duplicate red flag id",
			in:   `{"default_explanation":"d","red_flags":[{"id":"rf","symptoms":["a","b"],"tier":"emergency","explanation":"e"},{"id":"rf","symptoms":["c","d"],"tier":"emergency","explanation":"e"}],"symptoms":[{"symptom":"fever","tier":"self_care","explanation":"e"}]}`,
		},
		{
			name: "unknown top-level field",
			in:   `{"default_explanation":"d","rules":[],"symptoms":[{"symptom":"fever","tier":"self_care","explanation":"e"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, err := ParseCatalog([]byte(tt.in))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedRuleCatalog)
			assert.Nil(t, cat)
		})
	}
}

// TestLoadCatalog tests loading a catalog from disk.
func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(validCatalogJSON), 0o644))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, cat.Symptoms, 2)
}

// TestLoadCatalog_MissingFile tests that a missing file is a catalog error.
func TestLoadCatalog_MissingFile(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRuleCatalog)
	assert.Nil(t, cat)
}

// TestLoadCatalog_ShippedRules tests that the catalog shipped with the
// repository loads cleanly.
func TestLoadCatalog_ShippedRules(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join("..", "..", "configs", "rules.json"))
	require.NoError(t, err)

	symptoms := make(map[string]bool, len(cat.Symptoms))
	for _, rule := range cat.Symptoms {
		symptoms[rule.Symptom] = true
	}
	for _, want := range []string{"chest_pain", "fever", "rash", "headache"} {
		assert.True(t, symptoms[want], "shipped catalog should cover %s", want)
	}
	require.NotEmpty(t, cat.RedFlags)
	assert.Equal(t, "cardiac-distress", cat.RedFlags[0].ID)
}
