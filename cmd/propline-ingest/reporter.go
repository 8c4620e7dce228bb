package main

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/fortuna/propline/internal/backfill"
)

// consoleReporter prints progress lines. Multi-league runs call it concurrently.
type consoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleReporter(out io.Writer) *consoleReporter {
	return &consoleReporter{out: out}
}

func (c *consoleReporter) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *consoleReporter) OnJobStart(spec backfill.JobSpec) {
	c.printf("Starting %s job (dry_run=%v)", spec.Type, spec.DryRun)
}

func (c *consoleReporter) OnDateStart(league string, date time.Time, index int, total int) {
	label := "season"
	if !date.IsZero() {
		label = date.Format("2006-01-02")
	}
	c.printf("[%s %d/%d] %s", league, index+1, total, label)
}

func (c *consoleReporter) OnDateFailed(league string, date time.Time, err error) {
	c.printf("  ⚠️  %s %s skipped: %v", league, date.Format("2006-01-02"), err)
}

func (c *consoleReporter) OnProgress(message string, current int, total int) {
	c.printf("Progress: %s (%d/%d)", message, current, total)
}

func (c *consoleReporter) OnJobComplete(summary *backfill.RunSummary) {
	c.printf("✓ Run %s complete in %v", summary.RunID, summary.Duration.Round(time.Millisecond))
}

func (c *consoleReporter) OnJobError(err error) {
	c.printf("❌ Job error: %v", err)
}

func printSummary(out io.Writer, s *backfill.RunSummary) {
	fmt.Fprintf(out, "\nRun %s (%s, dry_run=%v) state=%s\n", s.RunID, s.Mode, s.DryRun, s.State)

	leagues := make([]string, 0, len(s.Leagues))
	for l := range s.Leagues {
		leagues = append(leagues, l)
	}
	sort.Strings(leagues)

	fmt.Fprintf(out, "%-6s %6s %6s %8s %8s %8s %8s %6s\n", "league", "dates", "failed", "events", "props", "inserted", "updated", "logs")
	for _, l := range leagues {
		st := s.Leagues[l]
		fmt.Fprintf(out, "%-6s %6d %6d %8d %8d %8d %8d %6d\n",
			l, st.DatesProcessed, st.DatesFailed, st.EventsSeen, st.PropsExtracted, st.Inserted, st.Updated, st.GameLogsUpserted)
		for _, d := range st.FailedDates {
			fmt.Fprintf(out, "       failed: %s\n", d)
		}
	}

	t := s.Totals
	fmt.Fprintf(out, "%-6s %6d %6d %8d %8d %8d %8d %6d\n",
		"total", t.DatesProcessed, t.DatesFailed, t.EventsSeen, t.PropsExtracted, t.Inserted, t.Updated, t.GameLogsUpserted)
	if t.Invalid > 0 || t.Skipped > 0 || t.Duplicates > 0 {
		fmt.Fprintf(out, "invalid=%d skipped=%d duplicates=%d errors=%d\n", t.Invalid, t.Skipped, t.Duplicates, t.Errors)
	}

	for _, u := range s.Coverage.UnmappedStats {
		fmt.Fprintf(out, "unmapped stat %s/%s → %s (%d)\n", u.League, u.StatID, u.Slug, u.Count)
	}
	for _, gap := range s.Gaps {
		if len(gap.Missing) > 0 {
			fmt.Fprintf(out, "%s coverage %.0f%%, missing: %v\n", gap.League, gap.CoveragePercent, gap.Missing)
		}
	}
	for _, r := range s.Coverage.Recommendations {
		fmt.Fprintf(out, "• %s\n", r)
	}
}
