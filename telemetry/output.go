package telemetry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/contagion/config"
	"github.com/pthm-cable/contagion/sim"
)

// OutputManager handles the files of one batch in an output directory:
// run_<n>.txt per run, a shared counts.csv, perf.csv and config.yaml.
type OutputManager struct {
	dir    string
	output config.OutputConfig

	countsFile *os.File
	counts     *CountsSink

	perfMu            sync.Mutex
	perfFile          *os.File
	perfHeaderWritten bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string, output config.OutputConfig, logger *slog.Logger) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir, output: output}

	if output.CountsCSV {
		f, err := os.Create(filepath.Join(dir, "counts.csv"))
		if err != nil {
			return nil, fmt.Errorf("creating counts.csv: %w", err)
		}
		om.countsFile = f
		if !output.LogCounts {
			logger = nil
		}
		om.counts = NewCountsSink(f, logger)
	}

	f, err := os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	configPath := filepath.Join(om.dir, "config.yaml")
	return cfg.WriteYAML(configPath)
}

// RunSink returns the sink of run n: its text file (if enabled), the shared
// counts CSV and any extra sinks. Closing it closes only the run's own file.
func (om *OutputManager) RunSink(run int, extra ...sim.Sink) (sim.Sink, error) {
	rs := &runSink{}
	if om != nil {
		if om.output.Text {
			ts, err := CreateTextSink(om.RunPath(run))
			if err != nil {
				return nil, err
			}
			rs.sinks = append(rs.sinks, ts)
			rs.closers = append(rs.closers, ts)
		}
		if om.counts != nil {
			rs.sinks = append(rs.sinks, om.counts)
		}
	}
	rs.sinks = append(rs.sinks, extra...)
	return rs, nil
}

// RunPath returns the text snapshot path of run n.
func (om *OutputManager) RunPath(run int) string {
	return filepath.Join(om.dir, fmt.Sprintf("run_%d.txt", run))
}

// DBPath returns the SQLite database path.
func (om *OutputManager) DBPath() string {
	return filepath.Join(om.dir, "contagion.db")
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(run int, stats PerfStats) error {
	if om == nil {
		return nil
	}
	om.perfMu.Lock()
	defer om.perfMu.Unlock()

	records := []PerfStatsCSV{stats.ToCSV(run)}

	if !om.perfHeaderWritten {
		if err := gocsv.Marshal(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
		om.perfHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
	}

	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error

	if om.countsFile != nil {
		if err := om.countsFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if om.perfFile != nil {
		if err := om.perfFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// runSink fans a day out to every sink of one run and closes the files
// owned by that run.
type runSink struct {
	sinks   sim.MultiSink
	closers []io.Closer
}

func (r *runSink) Emit(d sim.Day) error {
	return r.sinks.Emit(d)
}

func (r *runSink) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
