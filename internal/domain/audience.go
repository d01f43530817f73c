package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Audience is a named, rule-defined set of contacts. Static members are kept
// in a separate join and unioned with the rule matches at resolution time.
type Audience struct {
	ID          string   `json:"id" db:"id"`
	Name        string   `json:"name" db:"name"`
	Description string   `json:"description" db:"description"`
	Rules       RuleTree `json:"rules" db:"rules"`

	// MemberCount is recomputed whenever the audience is resolved. It is a
	// display value and never used for dispatch.
	MemberCount int       `json:"member_count" db:"member_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Rule field names as they appear on the wire.
const (
	FieldUnsubscribed = "unsubscribed"
	FieldTag          = "tag"
)

// RuleTree is a disjunction of groups: a contact matches when any group matches.
type RuleTree []RuleGroup

// RuleGroup is a conjunction of leaf conditions.
type RuleGroup struct {
	Conditions []Condition
}

// Condition is a single leaf predicate. The set of implementations is closed:
// UnsubscribedCondition, TagCondition and UnknownCondition.
type Condition interface {
	Field() string
	isCondition()
}

// UnsubscribedCondition matches on the contact's subscription state.
type UnsubscribedCondition struct {
	Value bool
}

// TagCondition matches contacts carrying Tag.
type TagCondition struct {
	Tag string
}

// UnknownCondition holds a leaf whose field or value could not be understood.
// It never matches.
type UnknownCondition struct {
	Name  string
	Value json.RawMessage
}

func (UnsubscribedCondition) Field() string { return FieldUnsubscribed }
func (TagCondition) Field() string          { return FieldTag }
func (u UnknownCondition) Field() string    { return u.Name }

func (UnsubscribedCondition) isCondition() {}
func (TagCondition) isCondition()          {}
func (UnknownCondition) isCondition()      {}

// UnknownFields lists the fields of every leaf that will never match.
func (t RuleTree) UnknownFields() []string {
	var out []string
	for _, g := range t {
		for _, c := range g.Conditions {
			if u, ok := c.(UnknownCondition); ok {
				out = append(out, u.Name)
			}
		}
	}
	return out
}

type wireCondition struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

type wireGroup struct {
	Rules []wireCondition `json:"rules"`
}

// UnmarshalJSON decodes {"rules":[{"field":...,"value":...}]}.
func (g *RuleGroup) UnmarshalJSON(data []byte) error {
	var w wireGroup
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	g.Conditions = make([]Condition, 0, len(w.Rules))
	for _, r := range w.Rules {
		g.Conditions = append(g.Conditions, decodeCondition(r))
	}
	return nil
}

// MarshalJSON encodes the group back into its wire shape.
func (g RuleGroup) MarshalJSON() ([]byte, error) {
	w := wireGroup{Rules: make([]wireCondition, 0, len(g.Conditions))}
	for _, c := range g.Conditions {
		wc, err := encodeCondition(c)
		if err != nil {
			return nil, err
		}
		w.Rules = append(w.Rules, wc)
	}
	return json.Marshal(w)
}

func decodeCondition(r wireCondition) Condition {
	unknown := UnknownCondition{Name: r.Field, Value: r.Value}
	if len(r.Value) == 0 || bytes.Equal(bytes.TrimSpace(r.Value), []byte("null")) {
		return unknown
	}
	switch r.Field {
	case FieldUnsubscribed:
		var v bool
		if err := json.Unmarshal(r.Value, &v); err != nil {
			return unknown
		}
		return UnsubscribedCondition{Value: v}
	case FieldTag:
		var v string
		if err := json.Unmarshal(r.Value, &v); err != nil || v == "" {
			return unknown
		}
		return TagCondition{Tag: v}
	}
	return unknown
}

func encodeCondition(c Condition) (wireCondition, error) {
	var v any
	switch c := c.(type) {
	case UnsubscribedCondition:
		v = c.Value
	case TagCondition:
		v = c.Tag
	case UnknownCondition:
		return wireCondition{Field: c.Name, Value: c.Value}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return wireCondition{}, err
	}
	return wireCondition{Field: c.Field(), Value: raw}, nil
}
