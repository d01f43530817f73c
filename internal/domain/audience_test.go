package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleTreeDecoding(t *testing.T) {
	raw := `[
		{"rules":[{"field":"unsubscribed","value":false},{"field":"tag","value":"vip"}]},
		{"rules":[{"field":"country","value":"DE"},{"field":"tag","value":""},{"field":"unsubscribed","value":"no"},{"field":"tag"}]}
	]`
	var tree RuleTree
	require.NoError(t, json.Unmarshal([]byte(raw), &tree))
	require.Len(t, tree, 2)

	assert.Equal(t, []Condition{UnsubscribedCondition{Value: false}, TagCondition{Tag: "vip"}}, tree[0].Conditions)

	for _, c := range tree[1].Conditions {
		_, unknown := c.(UnknownCondition)
		assert.True(t, unknown, "%#v should decode as unknown", c)
	}
	assert.Equal(t, []string{"country", "tag", "unsubscribed", "tag"}, tree.UnknownFields())
}

func TestRuleTreeEncodingKeepsWireShape(t *testing.T) {
	tree := RuleTree{{Conditions: []Condition{
		TagCondition{Tag: "vip"},
		UnknownCondition{Name: "country", Value: json.RawMessage(`"DE"`)},
	}}}
	out, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"rules":[{"field":"tag","value":"vip"},{"field":"country","value":"DE"}]}]`, string(out))
}

func TestNullTreeDecodesEmpty(t *testing.T) {
	var tree RuleTree
	require.NoError(t, json.Unmarshal([]byte(`null`), &tree))
	assert.Empty(t, tree)
}
