package segmentation

import (
	"fmt"

	"github.com/ignite/audience-dispatch/internal/domain"
)

// Matches reports whether c satisfies tree. Groups are OR'ed, conditions
// inside a group are AND'ed. Empty trees, empty groups and unknown leaves
// match nothing.
func Matches(tree domain.RuleTree, c *domain.Contact) bool {
	if c == nil {
		return false
	}
	for _, g := range tree {
		if matchGroup(g, c) {
			return true
		}
	}
	return false
}

func matchGroup(g domain.RuleGroup, c *domain.Contact) bool {
	if len(g.Conditions) == 0 {
		return false
	}
	for _, cond := range g.Conditions {
		if !matchCondition(cond, c) {
			return false
		}
	}
	return true
}

// matchCondition is the only place that knows leaf semantics. New fields add
// a case here and in QueryBuilder.buildCondition.
func matchCondition(cond domain.Condition, c *domain.Contact) bool {
	switch cond := cond.(type) {
	case domain.UnsubscribedCondition:
		return c.IsUnsubscribed() == cond.Value
	case domain.TagCondition:
		return c.HasTag(cond.Tag)
	default:
		return false
	}
}

// Validate returns a human-readable problem for every leaf that can never
// match. Evaluation tolerates these; the API rejects them on input.
func Validate(tree domain.RuleTree) []string {
	var problems []string
	for gi, g := range tree {
		if len(g.Conditions) == 0 {
			problems = append(problems, fmt.Sprintf("group %d has no rules", gi))
		}
	}
	for _, f := range tree.UnknownFields() {
		if f == "" {
			problems = append(problems, "rule is missing a field")
			continue
		}
		problems = append(problems, fmt.Sprintf("unsupported or malformed rule on field %q", f))
	}
	return problems
}

// CheckRules returns a *RulesError when Validate finds any problem.
func CheckRules(tree domain.RuleTree) error {
	if problems := Validate(tree); len(problems) > 0 {
		return &RulesError{Problems: problems}
	}
	return nil
}
