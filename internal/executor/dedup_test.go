package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := NewDedup(5 * time.Second)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("a"))
	now = now.Add(4 * time.Second)
	assert.True(t, d.IsDuplicate("a"))
	assert.False(t, d.IsDuplicate("b"))

	now = now.Add(2 * time.Second)
	assert.False(t, d.IsDuplicate("a"), "window has passed")
}

func TestDedupCleanup(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := NewDedup(time.Second)
	d.now = func() time.Time { return now }

	d.IsDuplicate("a")
	d.IsDuplicate("b")
	assert.Equal(t, 2, d.Len())

	now = now.Add(time.Second)
	d.Cleanup()
	assert.Zero(t, d.Len())
}

func TestDedupDisabled(t *testing.T) {
	d := NewDedup(0)
	assert.False(t, d.IsDuplicate("a"))
	assert.False(t, d.IsDuplicate("a"))
}
