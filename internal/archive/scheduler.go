// Package archive schedules moving old trades to cold storage.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// maxPasses bounds one run so a store that never drains cannot spin.
const maxPasses = 1000

// Scheduler runs a domain.Archiver against a rolling retention cutoff.
type Scheduler struct {
	archiver      domain.Archiver
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewScheduler creates a Scheduler keeping retentionDays of trades in the
// primary store.
func NewScheduler(archiver domain.Archiver, retentionDays int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		archiver:      archiver,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archive")),
	}
}

// Run archives everything older than the cutoff, one batch per pass, and
// returns the number of trades moved.
func (s *Scheduler) Run(ctx context.Context) (int64, error) {
	if s.retentionDays <= 0 {
		return 0, fmt.Errorf("archive: retention_days must be positive, got %d", s.retentionDays)
	}
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	s.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", s.retentionDays),
	)

	var total int64
	for pass := 0; pass < maxPasses; pass++ {
		n, err := s.archiver.ArchiveTrades(ctx, cutoff)
		total += n
		if err != nil {
			return total, fmt.Errorf("archiving trades before %v: %w", cutoff, err)
		}
		if n == 0 {
			break
		}
	}

	s.logger.InfoContext(ctx, "archive run complete", slog.Int64("trades_archived", total))
	return total, nil
}

// RunCron runs the archiver on a 5-field cron schedule ("minute hour
// day-of-month month day-of-week", UTC) until ctx is cancelled. A failed
// run is logged and retried at the next trigger.
func (s *Scheduler) RunCron(ctx context.Context, cronExpr string) error {
	if _, err := parseCron(cronExpr); err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}
	s.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, s.now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField represents a parsed cron field that can match against a value.
type cronField struct {
	wildcard bool
	values   []int
}

// matches returns true if the given value matches this cron field.
func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField parses one field: "*", "5", "1,15" or "*/10".
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}
	if step, ok := strings.CutPrefix(field, "*/"); ok {
		n, err := strconv.Atoi(step)
		if err != nil || n <= 0 {
			return cronField{}, fmt.Errorf("invalid cron step %q", field)
		}
		var values []int
		for v := lo; v <= hi; v += n {
			values = append(values, v)
		}
		return cronField{values: values}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		if v < lo || v > hi {
			return cronField{}, fmt.Errorf("cron value %d outside %d-%d", v, lo, hi)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// matchesTime returns true if the given time matches all five cron fields.
func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// parseCron parses a 5-field cron expression into a parsedCron struct.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	minute, err := parseCronField(fields[0], 0, 59)
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	hour, err := parseCronField(fields[1], 0, 23)
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	dayOfMonth, err := parseCronField(fields[2], 1, 31)
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	month, err := parseCronField(fields[3], 1, 12)
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	dayOfWeek, err := parseCronField(fields[4], 0, 6)
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}

	return parsedCron{
		minute:     minute,
		hour:       hour,
		dayOfMonth: dayOfMonth,
		month:      month,
		dayOfWeek:  dayOfWeek,
	}, nil
}

// nextCronTime calculates the next time after 'after' that matches the given
// cron expression. It searches minute-by-minute up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	// Start from the next minute boundary.
	candidate := after.Truncate(time.Minute).Add(time.Minute)

	// Search up to one year ahead to avoid infinite loops.
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
