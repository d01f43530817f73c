package segmentation

import (
	"fmt"
	"strings"

	"github.com/ignite/audience-dispatch/internal/domain"
)

// QueryBuilder builds SQL queries from audience rule trees. The generated
// predicates mirror Matches exactly: unknown leaves and empty groups compile
// to FALSE.
type QueryBuilder struct {
	args       []interface{}
	argCounter int
}

// NewQueryBuilder creates a new QueryBuilder.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{
		args:       make([]interface{}, 0),
		argCounter: 1,
	}
}

// nextArg returns the next argument placeholder
func (qb *QueryBuilder) nextArg(value interface{}) string {
	qb.args = append(qb.args, value)
	placeholder := fmt.Sprintf("$%d", qb.argCounter)
	qb.argCounter++
	return placeholder
}

func (qb *QueryBuilder) reset() {
	qb.args = make([]interface{}, 0)
	qb.argCounter = 1
}

// BuildCountQuery builds a COUNT query for previews.
func (qb *QueryBuilder) BuildCountQuery(q ContactQuery) (string, []interface{}) {
	qb.reset()
	query := "SELECT COUNT(*) FROM contacts c\nWHERE " + qb.buildWhere(q)
	return query, qb.args
}

// BuildIDQuery builds a query selecting the ids of every matching contact.
func (qb *QueryBuilder) BuildIDQuery(q ContactQuery) (string, []interface{}) {
	qb.reset()
	query := "SELECT c.id FROM contacts c\nWHERE " + qb.buildWhere(q) + "\nORDER BY c.created_at, c.id"
	return query, qb.args
}

func (qb *QueryBuilder) buildWhere(q ContactQuery) string {
	where := qb.buildTree(q.Rules)
	if q.StaticAudienceID != "" {
		where = fmt.Sprintf("(%s)\n  OR c.id IN (SELECT ac.contact_id FROM audience_contacts ac WHERE ac.audience_id = %s)",
			where, qb.nextArg(q.StaticAudienceID))
	}
	return where
}

func (qb *QueryBuilder) buildTree(tree domain.RuleTree) string {
	if len(tree) == 0 {
		return "FALSE"
	}
	parts := make([]string, 0, len(tree))
	for _, g := range tree {
		parts = append(parts, qb.buildGroup(g))
	}
	return strings.Join(parts, " OR ")
}

func (qb *QueryBuilder) buildGroup(g domain.RuleGroup) string {
	if len(g.Conditions) == 0 {
		return "FALSE"
	}
	parts := make([]string, 0, len(g.Conditions))
	for _, c := range g.Conditions {
		parts = append(parts, qb.buildCondition(c))
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// buildCondition builds SQL for a single leaf.
func (qb *QueryBuilder) buildCondition(cond domain.Condition) string {
	switch cond := cond.(type) {
	case domain.UnsubscribedCondition:
		if cond.Value {
			return "c.unsubscribed_at IS NOT NULL"
		}
		return "c.unsubscribed_at IS NULL"
	case domain.TagCondition:
		return fmt.Sprintf("%s = ANY(c.tags)", qb.nextArg(cond.Tag))
	default:
		return "FALSE"
	}
}
