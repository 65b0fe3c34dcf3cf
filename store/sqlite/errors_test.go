package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/attendance-engine/attendance"
)

func TestWrapErr_LockedIsRetryable(t *testing.T) {
	err := wrapErr("replace daily record", errors.New("database is locked"))

	assert.True(t, attendance.IsRetryable(err))
	assert.Contains(t, err.Error(), "replace daily record")
	assert.False(t, attendance.IsRetryable(wrapErr("x", errors.New("no such table: foo"))))
	assert.NoError(t, wrapErr("x", nil))
}

func TestTimeLayout_SortsChronologically(t *testing.T) {
	a := formatTime(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))
	b := formatTime(time.Date(2025, 3, 3, 9, 0, 0, 500, time.UTC))
	c := formatTime(time.Date(2025, 3, 3, 10, 0, 0, 0, time.FixedZone("X", 3600)))

	assert.Less(t, a, b)
	assert.Equal(t, a, c, "stored in UTC")

	parsed, err := parseTime(b)
	assert.NoError(t, err)
	assert.True(t, parsed.Equal(time.Date(2025, 3, 3, 9, 0, 0, 500, time.UTC)))
}
