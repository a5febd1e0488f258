package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/repr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilterPrecedence(t *testing.T) {
	// OR binds looser than AND.
	cond, err := ParseFilter("a = 1 or b = 2 and c = 3")
	require.NoError(t, err)

	root, ok := cond.(*Logical)
	require.True(t, ok, "root should be logical, got: %s", repr.String(cond))
	require.Equal(t, OpOr, root.Op)
	require.Len(t, root.Children, 2)

	right, ok := root.Children[1].(*Logical)
	require.True(t, ok, "right child should be the AND group, got: %s", repr.String(root))
	assert.Equal(t, OpAnd, right.Op)

	assert.True(t, cond.Match(map[string]any{"a": float64(1)}))
	assert.True(t, cond.Match(map[string]any{"b": float64(2), "c": float64(3)}))
	assert.False(t, cond.Match(map[string]any{"b": float64(2), "c": float64(9)}))
}

func TestParseFilterParens(t *testing.T) {
	cond, err := ParseFilter("(a = 1 or b = 2) and c = 3")
	require.NoError(t, err)

	root, ok := cond.(*Logical)
	require.True(t, ok)
	require.Equal(t, OpAnd, root.Op)

	assert.False(t, cond.Match(map[string]any{"a": float64(1)}))
	assert.True(t, cond.Match(map[string]any{"a": float64(1), "c": float64(3)}))
}

func TestParseFilterNot(t *testing.T) {
	cond, err := ParseFilter("not type = 'system'")
	require.NoError(t, err)

	assert.True(t, cond.Match(map[string]any{"type": "data"}))
	assert.False(t, cond.Match(map[string]any{"type": "system"}))
}

func TestParseFilterNotLike(t *testing.T) {
	cond, err := ParseFilter("topic not like 'debug/*'")
	require.NoError(t, err)

	assert.True(t, cond.Match(map[string]any{"topic": "sensor/temp"}))
	assert.False(t, cond.Match(map[string]any{"topic": "debug/trace"}))
	// Missing field is false even under NOT LIKE.
	assert.False(t, cond.Match(map[string]any{}))
}

func TestParseFilterLiterals(t *testing.T) {
	cond, err := ParseFilter("name = 'it''s' and qos <> 2 and delta >= -1.5 and ok = true")
	require.NoError(t, err)

	record := map[string]any{
		"name":  "it's",
		"qos":   float64(1),
		"delta": float64(0),
		"ok":    true,
	}
	assert.True(t, cond.Match(record))
}

func TestParseFilterNumericTyping(t *testing.T) {
	cond, err := ParseFilter("qos = 1")
	require.NoError(t, err)

	cmp, ok := cond.(*Comparison)
	require.True(t, ok)
	assert.Equal(t, float64(1), cmp.Value, "bare numerics parse as float64")
}

func TestParseFilterErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		hint     string
	}{
		{"misspelled and", "type = 'data' andd qos = 1", "unexpected", "and"},
		{"misspelled like", "status liek 'active%'", "expected an operator", "like"},
		{"misspelled where keyword in value", "ts > noww()", "expected a value", "now"},
		{"unquoted string value", "type = data", "strings must be quoted", ""},
		{"unterminated string", "type = 'data", "unterminated string", ""},
		{"missing operator", "type", "expected an operator", ""},
		{"empty parens", "()", "expected a field name", ""},
		{"bad regex", `name regex '(['`, "invalid pattern", ""},
		{"bad interval", "ts > now() - interval '5x'", "invalid interval", ""},
		{"between missing and", "level between 1 2", "expected AND in BETWEEN", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilter(tt.input)
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr), "error should be a *ParseError, got %T", err)
			assert.Contains(t, perr.Error(), tt.contains)
			if tt.hint != "" {
				assert.Equal(t, tt.hint, perr.Hint)
				assert.Contains(t, perr.Error(), "did you mean")
			}
		})
	}
}

func TestParseFilterNow(t *testing.T) {
	cond, err := ParseFilter("timestamp > now()")
	require.NoError(t, err)

	cmp, ok := cond.(*Comparison)
	require.True(t, ok)

	val, ok := cmp.Value.(float64)
	require.True(t, ok, "now() should expand to unix seconds")
	assert.InDelta(t, float64(time.Now().Unix()), val, 2)
}

func TestParseFilterNowInterval(t *testing.T) {
	cond, err := ParseFilter("timestamp > now() - interval '5m'")
	require.NoError(t, err)

	cmp := cond.(*Comparison)
	val := cmp.Value.(float64)
	assert.InDelta(t, float64(time.Now().Add(-5*time.Minute).Unix()), val, 2)

	cond, err = ParseFilter("timestamp < now() + interval '2h'")
	require.NoError(t, err)
	cmp = cond.(*Comparison)
	val = cmp.Value.(float64)
	assert.InDelta(t, float64(time.Now().Add(2*time.Hour).Unix()), val, 2)
}

func TestParseFilterTimestampLiteral(t *testing.T) {
	cond, err := ParseFilter("timestamp >= timestamp '14:30'")
	require.NoError(t, err)

	now := time.Now()
	want := time.Date(now.Year(), now.Month(), now.Day(), 14, 30, 0, 0, now.Location())

	cmp := cond.(*Comparison)
	assert.Equal(t, float64(want.Unix()), cmp.Value)

	cond, err = ParseFilter("timestamp >= timestamp '14:30:15'")
	require.NoError(t, err)
	want = time.Date(now.Year(), now.Month(), now.Day(), 14, 30, 15, 0, now.Location())
	assert.Equal(t, float64(want.Unix()), cond.(*Comparison).Value)
}

func TestParseFilterBetween(t *testing.T) {
	cond, err := ParseFilter("level between 3 and 7")
	require.NoError(t, err)

	root, ok := cond.(*Logical)
	require.True(t, ok, "between should desugar to an AND group")
	require.Equal(t, OpAnd, root.Op)
	require.Len(t, root.Children, 2)

	assert.True(t, cond.Match(map[string]any{"level": float64(3)}))
	assert.True(t, cond.Match(map[string]any{"level": float64(7)}))
	assert.False(t, cond.Match(map[string]any{"level": float64(8)}))
	assert.False(t, cond.Match(map[string]any{}))
}

func TestParseFilterBetweenTimes(t *testing.T) {
	cond, err := ParseFilter("timestamp between now() - interval '1h' and now()")
	require.NoError(t, err)

	rec := map[string]any{"timestamp": float64(time.Now().Add(-10 * time.Minute).Unix())}
	assert.True(t, cond.Match(rec))

	old := map[string]any{"timestamp": float64(time.Now().Add(-3 * time.Hour).Unix())}
	assert.False(t, cond.Match(old))
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, editDistance("like", "like"))
	assert.Equal(t, 1, editDistance("wher", "where"))
	assert.Equal(t, 2, editDistance("liek", "like"))
	assert.Equal(t, 4, editDistance("now", "like"))
}
