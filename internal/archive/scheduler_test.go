package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batches struct {
	counts  []int64
	err     error
	cutoffs []time.Time
}

func (b *batches) ArchiveTrades(_ context.Context, before time.Time) (int64, error) {
	b.cutoffs = append(b.cutoffs, before)
	if len(b.counts) == 0 {
		return 0, b.err
	}
	n := b.counts[0]
	b.counts = b.counts[1:]
	return n, nil
}

func newScheduler(a *batches, days int) *Scheduler {
	s := NewScheduler(a, days, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2025, 3, 31, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestRunDrainsBatches(t *testing.T) {
	a := &batches{counts: []int64{500, 120}}
	n, err := newScheduler(a, 30).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(620), n)
	require.Len(t, a.cutoffs, 3)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), a.cutoffs[0])
}

func TestRunReportsPartialProgressOnError(t *testing.T) {
	a := &batches{counts: []int64{10}, err: errors.New("bucket gone")}
	n, err := newScheduler(a, 30).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(10), n)
}

func TestRunRequiresRetention(t *testing.T) {
	_, err := newScheduler(&batches{}, 0).Run(context.Background())
	assert.Error(t, err)
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2025, 1, 15, 2, 59, 30, 0, time.UTC)

	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC), next)

	next, err = nextCronTime("0 3 1 * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC), next)

	next, err = nextCronTime("*/15 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC), next)
}

func TestParseCronRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"0 3 * *", "61 * * * *", "x * * * *", "*/0 * * * *"} {
		_, err := parseCron(expr)
		assert.Error(t, err, expr)
	}
}
