package rules

import "fmt"

// CompletionKind is the tagged variant of a CompletionChecker (§3).
type CompletionKind string

const (
	Always  CompletionKind = "always"
	Once    CompletionKind = "once"
	Twice   CompletionKind = "twice"
	Thrice  CompletionKind = "thrice"
	NTimes  CompletionKind = "times"
)

// CompletionChecker tracks how many matches remain for a rule (§3, §4.2/B).
type CompletionChecker struct {
	Kind  CompletionKind
	Count uint64 // only meaningful for NTimes
}

// threshold returns the number of matches after which the rule retires.
func (c CompletionChecker) threshold() uint64 {
	switch c.Kind {
	case Once:
		return 1
	case Twice:
		return 2
	case Thrice:
		return 3
	case NTimes:
		return c.Count
	default:
		return 0
	}
}

// IsComplete reports whether a rule having been seen `seen` times should
// retire. Always returns false unconditionally (§3).
func (c CompletionChecker) IsComplete(seen uint64) bool {
	if c.Kind == Always {
		return false
	}
	return seen >= c.threshold()
}

// Explain renders a human description, optionally including the seen count.
func (c CompletionChecker) Explain(seen *uint64) string {
	base := ""
	switch c.Kind {
	case Always:
		base = "always available"
	case Once:
		base = "available once"
	case Twice:
		base = "available twice"
	case Thrice:
		base = "available three times"
	case NTimes:
		base = fmt.Sprintf("available %d times", c.Count)
	default:
		base = "available"
	}
	if seen != nil {
		return fmt.Sprintf("%s (seen %d times)", base, *seen)
	}
	return base
}
