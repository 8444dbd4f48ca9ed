package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora"
	"github.com/olekukonko/tablewriter"
	"github.com/viant/exq/model/priority"
)

// PrintTop renders a snapshot as a summary line followed by a per-priority
// table, in the spirit of unix top. Colors are only emitted when colored is
// true.
func PrintTop(w io.Writer, s Snapshot, colored bool) {
	au := aurora.NewAurora(colored)
	uptime := time.Since(s.StartedAt).Truncate(time.Second)
	fmt.Fprintf(w, "Jobs enqueued: %s, finished: %s, failed: %s, up %s\n",
		au.BrightCyan(humanize.Comma(int64(s.Enqueued))),
		au.BrightGreen(humanize.Comma(int64(s.Finished))),
		au.BrightRed(humanize.Comma(int64(s.Failed))),
		uptime)
	fmt.Fprintf(w, "Workers running: %d (idle %d), spawning: %d, spawned: %d, retired: %d, spawn failures: %d\n",
		s.Running, s.Idle, s.InFlightSpawns(), s.Spawned, s.Retired, s.SpawnFailures)
	fmt.Fprintf(w, "Avg queued: %s, max queued: %s, total exec: %s\n",
		s.AvgQueuedTime(), s.MaxQueuedTime, s.ExecutionTime)

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Priority", "Pending", "Executed"})
	for _, p := range priority.All {
		tw.Append([]string{
			p.String(),
			fmt.Sprintf("%d", s.Pending[p]),
			humanize.Comma(int64(s.Executions[p])),
		})
	}
	tw.Render()
}
