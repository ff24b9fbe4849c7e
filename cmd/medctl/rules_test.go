package main

import (
	"os"
	"path/filepath"
	"testing"
)

const validCatalogJSON = `{
  "default_explanation": "No specific guidance matched; monitor symptoms.",
  "symptoms": [
    {
      "symptom": "fever",
      "tier": "self_care",
      "explanation": "Rest and fluids for a mild fever.",
      "overrides": [
        {
          "when": [{"type": "at_least", "field": "temperature_c", "value": 39.5}],
          "tier": "see_doctor_soon",
          "explanation": "High fever should be assessed."
        }
      ]
    },
    {
      "symptom": "chest pain",
      "tier": "emergency",
      "explanation": "Chest pain needs immediate assessment."
    }
  ],
  "red_flags": [
    {
      "id": "fever-with-chest-pain",
      "symptoms": ["fever", "chest pain"],
      "tier": "emergency",
      "explanation": "Fever with chest pain together needs emergency care."
    }
  ]
}`

func TestRunRulesValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name:    "valid catalog",
			content: validCatalogJSON,
		},
		{
			name:    "unparseable JSON",
			content: `{"symptoms": [`,
			wantErr: true,
		},
		{
			name:    "missing default explanation",
			content: `{"symptoms":[{"symptom":"fever","tier":"self_care","explanation":"rest"}]}`,
			wantErr: true,
		},
		{
			name:    "unknown tier name",
			content: `{"default_explanation":"x","symptoms":[{"symptom":"fever","tier":"panic","explanation":"rest"}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rules.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("write catalog: %v", err)
			}

			err := runRulesValidate(rulesValidateCmd, []string{path})
			if (err != nil) != tt.wantErr {
				t.Fatalf("runRulesValidate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunRulesValidate_MissingFile(t *testing.T) {
	err := runRulesValidate(rulesValidateCmd, []string{filepath.Join(t.TempDir(), "absent.json")})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
