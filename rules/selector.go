package rules

import (
	"mockproxy/reqres"
)

// Select implements §4.2's rule-selection algorithm:
//  1. filter to matching rules
//  2. group by priority, take the highest-priority group containing at
//     least one strictly-incomplete rule (a "null"-completion rule, i.e. no
//     explicit checker but request_count > 0, is eligible but deprioritized)
//  3. within that group, the first strictly-incomplete rule in insertion
//     order wins; if none, the last matching "null"-state rule wins
//  4. if nothing matches, the caller applies the engine's fallback policy
//
// rules MUST already be sorted by RegisteredOrder ascending (insertion
// order) — the engine maintains that invariant when appending.
func Select(req *reqres.Fingerprint, active []*Rule) (*Rule, error) {
	type candidate struct {
		rule            *Rule
		strictlyEligible bool // has an explicit checker and is not complete, OR has no checker and has never matched
	}

	var matched []candidate
	for _, r := range active {
		ok, err := MatchesAll(req, r.Matchers)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if r.HasExplicitCompletion() {
			if r.IsComplete() {
				continue // retired, never a candidate again
			}
			matched = append(matched, candidate{rule: r, strictlyEligible: true})
		} else {
			// "null" completion state: strictly eligible until the rule has
			// matched once, then eligible but deprioritized.
			matched = append(matched, candidate{rule: r, strictlyEligible: r.RequestCount() == 0})
		}
	}

	if len(matched) == 0 {
		return nil, nil
	}

	// Group by priority: the highest priority holding a strictly-eligible
	// rule wins; if no rule is strictly eligible, the highest priority overall.
	hasStrict := false
	var bestPriority uint
	for _, c := range matched {
		if c.strictlyEligible && (!hasStrict || c.rule.Priority > bestPriority) {
			bestPriority = c.rule.Priority
			hasStrict = true
		}
	}
	if !hasStrict {
		bestPriority = matched[0].rule.Priority
		for _, c := range matched {
			if c.rule.Priority > bestPriority {
				bestPriority = c.rule.Priority
			}
		}
	}

	var group []candidate
	for _, c := range matched {
		if c.rule.Priority == bestPriority {
			group = append(group, c)
		}
	}

	// First strictly-incomplete rule in insertion order wins.
	for _, c := range group {
		if c.strictlyEligible {
			return c.rule, nil
		}
	}

	// None strictly incomplete: choose the last matching "null"-state rule.
	return group[len(group)-1].rule, nil
}
