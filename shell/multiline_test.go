package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiLineSingleLine(t *testing.T) {
	var ml MultiLine

	cmd, raw, complete := ml.Feed("status")
	assert.True(t, complete)
	assert.Equal(t, "status", cmd)
	assert.Equal(t, "status", raw)
	assert.False(t, ml.Active())
}

func TestMultiLineContinuation(t *testing.T) {
	var ml MultiLine

	_, _, complete := ml.Feed(`a \`)
	assert.False(t, complete)
	assert.True(t, ml.Active())

	_, _, complete = ml.Feed(`b \`)
	assert.False(t, complete)

	cmd, raw, complete := ml.Feed("c")
	assert.True(t, complete)
	assert.Equal(t, "a b c", cmd)
	assert.Equal(t, "a\nb\nc", raw)
	assert.False(t, ml.Active())
}

func TestMultiLineEmptyLineClearsBuffer(t *testing.T) {
	var ml MultiLine

	_, _, complete := ml.Feed(`a \`)
	assert.False(t, complete)

	cmd, _, complete := ml.Feed("")
	assert.False(t, complete)
	assert.Empty(t, cmd)
	assert.False(t, ml.Active())

	// The buffer really is gone: the next line stands alone.
	cmd, _, complete = ml.Feed("fresh")
	assert.True(t, complete)
	assert.Equal(t, "fresh", cmd)
}

func TestMultiLineEmptyInputWhenInactive(t *testing.T) {
	var ml MultiLine

	cmd, raw, complete := ml.Feed("   ")
	assert.True(t, complete)
	assert.Empty(t, cmd)
	assert.Empty(t, raw)
}

func TestMultiLineReset(t *testing.T) {
	var ml MultiLine
	ml.Feed(`a \`)
	ml.Reset()
	assert.False(t, ml.Active())
}
