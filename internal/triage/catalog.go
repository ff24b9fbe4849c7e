package triage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMalformedRuleCatalog wraps every catalog load or validation failure.
// The daemon treats it as fatal at startup; a half-loaded catalog must
// never serve triage traffic.
var ErrMalformedRuleCatalog = errors.New("malformed rule catalog")

// Override escalates (or adjusts) a symptom rule when every condition in
// When holds. Conditions are conjunctive.
type Override struct {
	When        []Condition `json:"when"`
	Tier        Tier        `json:"tier"`
	Explanation string      `json:"explanation"`
}

// SymptomRule is the per-symptom entry: a base tier plus zero or more
// conditional overrides evaluated against the reported details.
type SymptomRule struct {
	Symptom     string     `json:"symptom"`
	Tier        Tier       `json:"tier"`
	Explanation string     `json:"explanation"`
	Overrides   []Override `json:"overrides,omitempty"`
}

// RedFlagRule fires when every listed symptom is present in the same
// evaluation, regardless of the per-symptom details.
type RedFlagRule struct {
	ID          string   `json:"id"`
	Symptoms    []string `json:"symptoms"`
	Tier        Tier     `json:"tier"`
	Explanation string   `json:"explanation"`
}

// Catalog is the full rule set. Slice order is declaration order and is
// load-bearing: it breaks ties between rules that land on the same tier.
type Catalog struct {
	DefaultExplanation string        `json:"default_explanation"`
	RedFlags           []RedFlagRule `json:"red_flags,omitempty"`
	Symptoms           []SymptomRule `json:"symptoms"`
}

// LoadCatalog reads and validates a rule catalog from a JSON file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrMalformedRuleCatalog, path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog JSON.
func ParseCatalog(data []byte) (*Catalog, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cat Catalog
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRuleCatalog, err)
	}
	if err := cat.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRuleCatalog, err)
	}

	cat.normalize()
	return &cat, nil
}

func (c *Catalog) validate() error {
	if len(c.Symptoms) == 0 {
		return errors.New("catalog has no symptom rules")
	}
	if c.DefaultExplanation == "" {
		return errors.New("catalog missing default_explanation")
	}

	seen := make(map[string]bool, len(c.Symptoms))
	for i, rule := range c.Symptoms {
		if rule.Symptom == "" {
			return fmt.Errorf("symptoms[%d]: missing symptom name", i)
		}
		key := strings.ToLower(rule.Symptom)
		if seen[key] {
			return fmt.Errorf("symptoms[%d]: duplicate symptom %q", i, rule.Symptom)
		}
		seen[key] = true
		if rule.Explanation == "" {
			return fmt.Errorf("symptoms[%d] (%s): missing explanation", i, rule.Symptom)
		}
		for j, ov := range rule.Overrides {
			if len(ov.When) == 0 {
				return fmt.Errorf("symptoms[%d] (%s) overrides[%d]: empty when clause", i, rule.Symptom, j)
			}
			if ov.Explanation == "" {
				return fmt.Errorf("symptoms[%d] (%s) overrides[%d]: missing explanation", i, rule.Symptom, j)
			}
		}
	}

	flagIDs := make(map[string]bool, len(c.RedFlags))
	for i, flag := range c.RedFlags {
		if flag.ID == "" {
			return fmt.Errorf("red_flags[%d]: missing id", i)
		}
		if flagIDs[flag.ID] {
			return fmt.Errorf("red_flags[%d]: duplicate id %q", i, flag.ID)
		}
		flagIDs[flag.ID] = true
		if len(flag.Symptoms) < 2 {
			return fmt.Errorf("red_flags[%d] (%s): requires at least two symptoms", i, flag.ID)
		}
		for _, s := range flag.Symptoms {
			if s == "" {
				return fmt.Errorf("red_flags[%d] (%s): empty symptom name", i, flag.ID)
			}
		}
		if flag.Explanation == "" {
			return fmt.Errorf("red_flags[%d] (%s): missing explanation", i, flag.ID)
		}
	}

	return nil
}

// normalize lowercases all symptom names once so Evaluate can match
// case-insensitively without re-folding on every call.
func (c *Catalog) normalize() {
	for i := range c.Symptoms {
		c.Symptoms[i].Symptom = strings.ToLower(c.Symptoms[i].Symptom)
	}
	for i := range c.RedFlags {
		for j := range c.RedFlags[i].Symptoms {
			c.RedFlags[i].Symptoms[j] = strings.ToLower(c.RedFlags[i].Symptoms[j])
		}
	}
}
