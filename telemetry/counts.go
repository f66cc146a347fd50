package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/contagion/sim"
)

// CountsSink writes one DayStats row per emitted day as CSV. A single
// CountsSink may be shared by every run of a batch.
type CountsSink struct {
	mu            sync.Mutex
	w             io.Writer
	headerWritten bool
	logger        *slog.Logger
}

// NewCountsSink creates a sink writing to w. A non-nil logger also logs
// every row.
func NewCountsSink(w io.Writer, logger *slog.Logger) *CountsSink {
	return &CountsSink{w: w, logger: logger}
}

// Emit implements sim.Sink.
func (c *CountsSink) Emit(d sim.Day) error {
	return c.Write(NewDayStats(d))
}

// Write appends one row, writing the header before the first.
func (c *CountsSink) Write(stats DayStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records := []DayStats{stats}

	if !c.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, c.w); err != nil {
			return fmt.Errorf("writing counts: %w", err)
		}
		c.headerWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, c.w); err != nil {
			return fmt.Errorf("writing counts: %w", err)
		}
	}

	if c.logger != nil {
		stats.LogStats(c.logger)
	}
	return nil
}
