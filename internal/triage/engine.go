package triage

// Engine evaluates symptom facts against a validated rule catalog. It holds
// no mutable state, so a single instance is safe for concurrent use.
type Engine struct {
	catalog *Catalog
}

// NewEngine wraps a catalog previously loaded via LoadCatalog or ParseCatalog.
func NewEngine(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Catalog returns the rule set the engine evaluates against.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Evaluate classifies the reported facts. It is a pure function of the
// catalog and the facts: no I/O, no clock, no randomness. Unknown symptom
// keys are ignored; empty or entirely-unknown facts yield the catalog's
// default self-care verdict.
func (e *Engine) Evaluate(facts Facts) Verdict {
	present := make(map[string]bool, len(facts))
	for symptom := range facts {
		present[normalizeSymptom(symptom)] = true
	}

	type match struct {
		ruleID      string
		tier        Tier
		explanation string
	}

	var fired []match

	// Red flags first: they outrank per-symptom matches at the same tier,
	// so their explanations lead the verdict.
	for _, flag := range e.catalog.RedFlags {
		all := true
		for _, symptom := range flag.Symptoms {
			if !present[symptom] {
				all = false
				break
			}
		}
		if all {
			fired = append(fired, match{ruleID: flag.ID, tier: flag.Tier, explanation: flag.Explanation})
		}
	}

	// Per-symptom rules in catalog declaration order. Each rule starts at
	// its base tier; the last matching override wins within the rule.
	for _, rule := range e.catalog.Symptoms {
		if !present[rule.Symptom] {
			continue
		}
		details := detailsFor(facts, rule.Symptom)

		tier, explanation := rule.Tier, rule.Explanation
		for _, ov := range rule.Overrides {
			if ov.matches(details) {
				tier, explanation = ov.Tier, ov.Explanation
			}
		}
		fired = append(fired, match{ruleID: rule.Symptom, tier: tier, explanation: explanation})
	}

	if len(fired) == 0 {
		return Verdict{
			Tier:         TierSelfCare,
			Explanations: []string{e.catalog.DefaultExplanation},
		}
	}

	verdict := Verdict{
		Tier:         TierSelfCare,
		Explanations: make([]string, 0, len(fired)),
		MatchedRules: make([]string, 0, len(fired)),
	}
	for _, m := range fired {
		if m.tier > verdict.Tier {
			verdict.Tier = m.tier
		}
		verdict.Explanations = append(verdict.Explanations, m.explanation)
		verdict.MatchedRules = append(verdict.MatchedRules, m.ruleID)
	}
	return verdict
}

// matches reports whether every condition in the override's When clause
// holds for the symptom's details.
func (o Override) matches(details Details) bool {
	for _, cond := range o.When {
		if !cond.Eval(details) {
			return false
		}
	}
	return true
}

// detailsFor finds the details for a (normalized) symptom key, tolerating
// any casing the caller used.
func detailsFor(facts Facts, symptom string) Details {
	if d, ok := facts[symptom]; ok {
		return d
	}
	for k, d := range facts {
		if normalizeSymptom(k) == symptom {
			return d
		}
	}
	return nil
}
