package pipeline

import (
	"context"
	"strings"

	"ixperf/internal/logging"
	"ixperf/internal/stats"
)

// Reporter receives statistics while a run progresses. Methods are called
// from executor goroutines and must be safe for concurrent use.
type Reporter interface {
	// TaskStats receives one task's counters for a report interval, or for
	// the whole phase when periodic reporting is off. Windows never overlap.
	TaskStats(phase string, task Task, window stats.Snapshot)
	// PhaseDone receives the merged result of a finished phase.
	PhaseDone(result *PhaseResult)
}

type multiReporter []Reporter

// MultiReporter fans every call out to rs in order
func MultiReporter(rs ...Reporter) Reporter {
	var out multiReporter
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiReporter) TaskStats(phase string, task Task, window stats.Snapshot) {
	for _, r := range m {
		r.TaskStats(phase, task, window)
	}
}

func (m multiReporter) PhaseDone(result *PhaseResult) {
	for _, r := range m {
		r.PhaseDone(result)
	}
}

// LogReporter writes periodic task stats to the log
type LogReporter struct {
	Logger *logging.Logger
}

func (l LogReporter) TaskStats(phase string, task Task, window stats.Snapshot) {
	ctx := logging.WithPhase(context.Background(), phase)
	line := strings.ReplaceAll(strings.TrimSpace(window.Structured()), "\n", " ")
	l.Logger.TaskStats(ctx, task.Role, task.ID, line)
}

func (l LogReporter) PhaseDone(result *PhaseResult) {
	l.Logger.Debug("Phase merged", "phase", result.Name, "tasks", result.Tasks)
}
