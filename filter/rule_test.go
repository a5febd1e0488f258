package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/conch/command"
)

func TestParseRule(t *testing.T) {
	rule, err := ParseRule("SELECT temp, unit FROM 'sensor/temperature' WHERE temp > 20")
	require.NoError(t, err)

	assert.Equal(t, []string{"temp", "unit"}, rule.Fields)
	assert.Equal(t, "sensor/temperature", rule.Topic)
	require.NotNil(t, rule.Where)
	assert.True(t, rule.Where.Match(map[string]any{"temp": float64(25)}))
}

func TestParseRuleSelectStar(t *testing.T) {
	rule, err := ParseRule("select * from 'events'")
	require.NoError(t, err)

	assert.Empty(t, rule.Fields)
	assert.Equal(t, "events", rule.Topic)
	assert.Nil(t, rule.Where)
}

func TestParseRuleBareTopic(t *testing.T) {
	rule, err := ParseRule("SELECT * FROM events WHERE level >= 3")
	require.NoError(t, err)
	assert.Equal(t, "events", rule.Topic)
}

func TestParseRuleKeywordsCaseInsensitive(t *testing.T) {
	rule, err := ParseRule("SeLeCt a FrOm 'x' wHeRe a = 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, rule.Fields)
}

func TestParseRuleErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		hint     string
	}{
		{"missing select", "FROM 'x'", "expected SELECT", ""},
		{"misspelled select", "SELCT * FROM 'x'", "expected SELECT", "select"},
		{"misspelled from", "SELECT * FORM 'x'", "expected FROM", "from"},
		{"misspelled where", "SELECT * FROM 'x' wheer a = 1", "unexpected", "where"},
		{"missing topic", "SELECT * FROM", "expected a topic", ""},
		{"bad where", "SELECT * FROM 'x' WHERE", "expected a field name", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRule(tt.input)
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Contains(t, perr.Error(), tt.contains)
			if tt.hint != "" {
				assert.Equal(t, tt.hint, perr.Hint)
			}
		})
	}
}

func TestRuleMatchesMessage(t *testing.T) {
	rule, err := ParseRule("SELECT * FROM 'sensor/temperature' WHERE temp > 20")
	require.NoError(t, err)

	hot := command.DataMessage(map[string]any{"temp": float64(31)}, "sensor-1")
	hot.Metadata = map[string]any{"topic": "sensor/temperature"}
	assert.True(t, rule.MatchesMessage(hot))

	cold := command.DataMessage(map[string]any{"temp": float64(12)}, "sensor-1")
	cold.Metadata = map[string]any{"topic": "sensor/temperature"}
	assert.False(t, rule.MatchesMessage(cold))

	offTopic := command.DataMessage(map[string]any{"temp": float64(31)}, "sensor-1")
	offTopic.Metadata = map[string]any{"topic": "sensor/humidity"}
	assert.False(t, rule.MatchesMessage(offTopic))
}

func TestRuleApply(t *testing.T) {
	rule, err := ParseRule("SELECT temp FROM 'sensor/temperature'")
	require.NoError(t, err)

	msg := command.DataMessage(map[string]any{"temp": 21.5, "unit": "C", "raw": "0x15"}, "sensor-1")
	trimmed := rule.Apply(msg)
	assert.Equal(t, map[string]any{"temp": 21.5}, trimmed.Payload)

	// SELECT * passes every field through.
	all, err := ParseRule("SELECT * FROM 'sensor/temperature'")
	require.NoError(t, err)
	assert.Equal(t, msg.Payload, all.Apply(msg).Payload)

	// Non-map payloads pass through untouched.
	text := command.DataMessage("plain text", "sensor-1")
	assert.Equal(t, "plain text", rule.Apply(text).Payload)
}

func TestRuleString(t *testing.T) {
	rule, err := ParseRule("SELECT temp FROM 'sensor/temperature' WHERE temp > 20")
	require.NoError(t, err)

	rendered := rule.String()
	assert.Contains(t, rendered, "SELECT temp FROM 'sensor/temperature'")
	assert.Contains(t, rendered, "WHERE")

	// Round-trips through the parser.
	again, err := ParseRule(rendered)
	require.NoError(t, err)
	assert.Equal(t, rule.Topic, again.Topic)
	assert.Equal(t, rule.Fields, again.Fields)
}
