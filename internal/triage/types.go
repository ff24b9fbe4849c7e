package triage

import (
	"fmt"
	"strings"
)

// Tier is an escalation level. Ordering matters: higher values demand more
// urgent care, and the engine always reports the highest tier that fired.
type Tier int

const (
	TierSelfCare Tier = iota
	TierDoctorSoon
	TierEmergency
)

// tierNames maps wire names to tiers. These names appear in rule catalogs,
// triage tags, and API responses.
var tierNames = map[string]Tier{
	"self_care":       TierSelfCare,
	"see_doctor_soon": TierDoctorSoon,
	"emergency":       TierEmergency,
}

// ParseTier converts a wire name into a Tier.
func ParseTier(s string) (Tier, error) {
	t, ok := tierNames[s]
	if !ok {
		return 0, fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// String returns the wire name.
func (t Tier) String() string {
	switch t {
	case TierSelfCare:
		return "self_care"
	case TierDoctorSoon:
		return "see_doctor_soon"
	case TierEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Tag returns the machine-readable triage tag carried through chat
// responses, e.g. "triage:emergency".
func (t Tier) Tag() string {
	return "triage:" + t.String()
}

// Details holds the reported attributes of one symptom, as decoded from
// JSON: numbers are float64, lists are []any.
type Details map[string]any

// Facts maps symptom keys to their reported details. A symptom can be
// reported with empty details.
type Facts map[string]Details

// normalizeSymptom folds a symptom key to the catalog's canonical form.
func normalizeSymptom(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Verdict is the outcome of evaluating facts against the catalog.
type Verdict struct {
	Tier         Tier     `json:"tier"`
	Explanations []string `json:"explanations"`
	MatchedRules []string `json:"matched_rules,omitempty"`
}

// Tag returns the verdict's triage tag.
func (v Verdict) Tag() string {
	return v.Tier.Tag()
}
