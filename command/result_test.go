package command

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResultConstructors(t *testing.T) {
	ok := OK([]int{1, 2, 3})
	assert.True(t, ok.Success)
	assert.Empty(t, ok.Error)

	msg := OKMsg("3 rows affected")
	assert.True(t, msg.Success)
	assert.Equal(t, "3 rows affected", msg.Message)

	fail := Fail("connection refused")
	assert.False(t, fail.Success)
	assert.Equal(t, "connection refused", fail.Error)
}

func TestFailureAlwaysHasError(t *testing.T) {
	assert.Equal(t, "unknown error", Fail("").Error)
	assert.Equal(t, "unknown error", FromError(nil).Error)
	assert.Equal(t, "boom", FromError(errors.New("boom")).Error)
	assert.True(t, Fail("").Failed())
}

func TestResultWithMeta(t *testing.T) {
	base := OK(nil)
	tagged := base.WithMeta("rows", 7)

	assert.Equal(t, 7, tagged.Metadata["rows"])
	assert.Nil(t, base.Metadata, "WithMeta must not mutate the receiver")

	second := tagged.WithMeta("cached", true)
	assert.Equal(t, 7, second.Metadata["rows"])
	assert.Equal(t, true, second.Metadata["cached"])
	assert.NotContains(t, tagged.Metadata, "cached")
}

func TestResultWithDuration(t *testing.T) {
	res := OK(nil).WithDuration(1500 * time.Millisecond)
	assert.Equal(t, 1500.0, res.Metadata["duration_ms"])
}
