package pipeline

import (
	"errors"
	"fmt"
	"time"

	"ixperf/internal/index"
	"ixperf/internal/stats"
	"ixperf/internal/workload"
)

// executor applies one task's commands to the index and accounts for them
type executor struct {
	idx      index.Index
	task     Task
	phase    string
	quota    uint64
	interval time.Duration
	reporter Reporter

	total  *stats.Aggregator
	window *stats.Aggregator
}

func newExecutor(idx index.Index, phase string, spec taskSpec, opts Options, reporter Reporter) *executor {
	e := &executor{
		idx:      idx,
		task:     spec.task,
		phase:    phase,
		quota:    spec.quotas.Total(),
		interval: opts.ReportInterval,
		reporter: reporter,
		total:    stats.NewAggregator(opts.Stats),
	}
	e.window = e.total
	if e.interval > 0 {
		e.window = stats.NewAggregator(opts.Stats)
	}
	return e
}

// run consumes cmds until the channel closes
func (e *executor) run(cmds <-chan workload.Command) error {
	var received uint64
	for cmd := range cmds {
		received++
		if err := apply(e.idx, cmd, e.window.Counter(cmd.Kind)); err != nil {
			return fmt.Errorf("%s: %w", e.task, err)
		}
		if e.window != e.total && e.window.IsElapsed(e.interval) {
			if err := e.flush(); err != nil {
				return err
			}
		}
	}

	if err := e.flush(); err != nil {
		return err
	}
	if received < e.quota {
		return fmt.Errorf("%s: %w: received %d of %d commands", e.task, ErrChannelClosedPrematurely, received, e.quota)
	}
	return nil
}

// flush hands the current window to the reporter and folds it into the
// task total
func (e *executor) flush() error {
	if e.reporter != nil && e.window.Total() > 0 {
		e.reporter.TaskStats(e.phase, e.task, e.window.Snapshot())
	}
	if e.window == e.total {
		return nil
	}
	if err := e.total.Merge(e.window); err != nil {
		return err
	}
	e.window.Reset()
	return nil
}

// apply runs cmd against idx. Load and set count an outcome when the key
// already existed, delete and get when it was missing, scans count the
// items they produced.
func apply(idx index.Index, cmd workload.Command, c *stats.Counter) error {
	switch cmd.Kind {
	case stats.KindLoad, stats.KindSet:
		c.SampleStart(false)
		_, existed, err := idx.Set(cmd.Key, cmd.Value)
		if err != nil {
			return backendError(cmd, err)
		}
		c.SampleEnd(outcome(existed))

	case stats.KindDelete:
		c.SampleStart(false)
		_, err := idx.Delete(cmd.Key)
		miss := errors.Is(err, index.ErrKeyNotFound)
		if err != nil && !miss {
			return backendError(cmd, err)
		}
		c.SampleEnd(outcome(miss))

	case stats.KindGet:
		c.SampleStart(false)
		_, err := idx.Get(cmd.Key)
		miss := errors.Is(err, index.ErrKeyNotFound)
		if err != nil && !miss {
			return backendError(cmd, err)
		}
		c.SampleEnd(outcome(miss))

	case stats.KindIterate:
		c.SampleStart(true)
		n, err := index.Count(idx.Iterate)
		if err != nil {
			return backendError(cmd, err)
		}
		c.SampleEnd(n)

	case stats.KindRange:
		c.SampleStart(true)
		n, err := index.Count(func(yield func(k, v []byte) bool) error {
			return idx.Range(cmd.Low, cmd.High, yield)
		})
		if err != nil {
			return backendError(cmd, err)
		}
		c.SampleEnd(n)

	case stats.KindReverse:
		c.SampleStart(true)
		n, err := index.Count(func(yield func(k, v []byte) bool) error {
			return idx.Reverse(cmd.Low, cmd.High, yield)
		})
		if err != nil {
			return backendError(cmd, err)
		}
		c.SampleEnd(n)

	default:
		return fmt.Errorf("unknown command kind %d", cmd.Kind)
	}
	return nil
}

func outcome(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func backendError(cmd workload.Command, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackend, cmd.Kind, err)
}
