package shell

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionDefaults(t *testing.T) {
	s := NewSession("")

	assert.Equal(t, DefaultPrompt, s.Prompt())
	assert.Equal(t, DefaultFormat, s.DefaultFormat())
	assert.Zero(t, s.Commands())
}

func TestSessionSetGet(t *testing.T) {
	s := NewSession("")

	s.Set("prompt", "db> ")
	assert.Equal(t, "db> ", s.Prompt())

	v, ok := s.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, v)

	assert.Equal(t, "fallback", s.GetString("missing", "fallback"))
}

func TestSessionRecordCommand(t *testing.T) {
	s := NewSession("")
	s.RecordCommand()
	s.RecordCommand()
	assert.Equal(t, int64(2), s.Commands())

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap["session_commands"])
	assert.Contains(t, snap, "session_duration")
	assert.Contains(t, snap, "last_command_at")
}

func TestSessionSaveAccumulatesTotals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	first := NewSession(path)
	first.RecordCommand()
	first.RecordCommand()
	first.RecordCommand()
	require.NoError(t, first.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second := NewSession(path)
	second.RecordCommand()
	require.NoError(t, second.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(data, &stored))

	assert.Equal(t, float64(4), stored["total_commands_ever"])
	assert.Contains(t, stored, "total_session_duration")
	assert.Contains(t, stored, "last_saved")
}

func TestSessionLoadMergesStoredValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"prompt":"mysql> ","custom":"yes"}`), 0600))

	s := NewSession(path)
	assert.Equal(t, "mysql> ", s.Prompt())
	v, ok := s.Get("custom")
	assert.True(t, ok)
	assert.Equal(t, "yes", v)
	// Defaults not present in the file survive.
	assert.Equal(t, DefaultFormat, s.DefaultFormat())
}

func TestSessionCorruptFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	s := NewSession(path)
	assert.Equal(t, DefaultPrompt, s.Prompt())
	assert.Equal(t, DefaultFormat, s.DefaultFormat())
}

func TestSessionNoPathSaveIsNoop(t *testing.T) {
	s := NewSession("")
	assert.NoError(t, s.Save())
}
