package report

import (
	"time"

	"github.com/ethpandaops/rollstat/internal/aggregator"
	"github.com/ethpandaops/rollstat/internal/export"
	"github.com/ethpandaops/rollstat/internal/perf"
)

// RowMeta is stamped onto every row of one report.
type RowMeta struct {
	Instance       string
	ReportStart    time.Time
	UpdatedAt      time.Time
	TicksPerSecond int64
}

// Rows flattens a snapshot into one row per (name, interval).
func Rows(snap perf.Snapshot, meta RowMeta) []export.StatRow {
	n := 0
	for _, c := range snap.Counters {
		n += len(c.Intervals)
	}

	for _, d := range snap.Durations {
		n += len(d.Throughput)
	}

	rows := make([]export.StatRow, 0, n)

	for _, c := range snap.Counters {
		for _, st := range c.Intervals {
			row := meta.row(st)
			row.Kind = export.KindCounter
			row.Name = c.Name
			row.Total = c.Total

			rows = append(rows, row)
		}
	}

	for _, d := range snap.Durations {
		for _, st := range d.Throughput {
			row := meta.row(st)
			row.Kind = export.KindDuration
			row.Name = d.Name
			row.Total = d.Count
			row.P50Micros = d.P50Micros
			row.P90Micros = d.P90Micros
			row.P99Micros = d.P99Micros

			rows = append(rows, row)
		}
	}

	return rows
}

func (m RowMeta) row(st aggregator.IntervalStat) export.StatRow {
	var ms int64
	if m.TicksPerSecond > 0 {
		ms = st.Interval.DurationTicks * 1000 / m.TicksPerSecond
	}

	return export.StatRow{
		UpdatedAt:   m.UpdatedAt,
		ReportStart: m.ReportStart,
		Instance:    m.Instance,
		Interval:    st.Interval.Name,
		Unit:        st.Interval.Unit,
		IntervalMs:  ms,
		Min:         st.Min,
		Max:         st.Max,
		Avg:         st.Avg,
		Samples:     st.Samples,
		Skipped:     st.Skipped,
		Dropped:     st.Dropped,
	}
}
