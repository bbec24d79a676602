package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/willibrandon/copgy/internal/metrics"
)

// Summary renders per-copy statistics and totals collected over a run.
// It returns an empty string when nothing was copied.
func Summary(c *metrics.Collector) string {
	copies := c.Copies()
	if len(copies) == 0 {
		return ""
	}

	var b strings.Builder
	for _, s := range copies {
		fmt.Fprintf(&b, "   step %d %-20s %12s rows %10s  %s/s peak\n",
			s.Step, s.Table, humanize.Comma(s.Rows), humanize.Bytes(uint64(s.Bytes)),
			humanize.Bytes(uint64(s.PeakRate)))
	}

	bytes, rows, d := c.Totals()
	fmt.Fprintf(&b, "%s copied %s rows (%s) in %d copies, %d commands executed, %s copying\n",
		MarkSuccess, humanize.Comma(rows), humanize.Bytes(uint64(bytes)), len(copies), c.Commands(),
		d.Round(time.Millisecond))
	return b.String()
}
