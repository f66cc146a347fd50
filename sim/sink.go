package sim

import (
	"errors"

	"github.com/pthm-cable/contagion/components"
)

// Day is one emitted snapshot: every individual of a run, in id order.
type Day struct {
	Run         int
	Day         int
	Individuals []Individual
	Report      DayReport // transitions that led to this day; zero for day 0 except Counts
}

// Sink receives one Day per simulated day, including day 0.
// A returned error aborts the emitting run.
type Sink interface {
	Emit(day Day) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(day Day) error

// Emit calls f(day).
func (f SinkFunc) Emit(day Day) error { return f(day) }

// MultiSink emits to every sink in order and joins their errors.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(day Day) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(day); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// discardSink drops every day.
type discardSink struct{}

func (discardSink) Emit(Day) error { return nil }

// Discard is a Sink that drops every day.
var Discard Sink = discardSink{}

// Statuses extracts the statuses of d in id order.
func (d Day) Statuses() []components.Status {
	out := make([]components.Status, len(d.Individuals))
	for i, ind := range d.Individuals {
		out[i] = ind.Status
	}
	return out
}
