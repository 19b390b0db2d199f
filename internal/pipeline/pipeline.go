// Package pipeline drives an index through an initial load and an
// incremental phase. Every phase runs generator/executor pairs connected by
// bounded channels; each executor owns its statistics until the phase
// merges them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ixperf/internal/index"
	"ixperf/internal/logging"
	"ixperf/internal/stats"
	"ixperf/internal/workload"
)

const tracerName = "ixperf/pipeline"

var (
	ErrChannelClosedPrematurely = errors.New("command channel closed before quota was met")
	ErrBackend                  = errors.New("index operation failed")
	ErrValidation               = errors.New("index size does not match counted outcomes")
)

type Pipeline struct {
	idx      index.Index
	opts     Options
	logger   *logging.Logger
	reporter Reporter

	state atomic.Int32

	mu     sync.RWMutex
	phase  string
	phases []*PhaseResult
	report *Report
	err    error
}

func New(idx index.Index, opts Options, logger *logging.Logger, reporter Reporter) *Pipeline {
	if opts.ChannelSize <= 0 {
		opts.ChannelSize = 1
	}
	return &Pipeline{
		idx:      idx,
		opts:     opts,
		logger:   logger,
		reporter: reporter,
	}
}

func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(ctx context.Context, s State) {
	prev := State(p.state.Swap(int32(s)))
	if prev != s {
		p.logger.WithContext(ctx).Debug("Pipeline state changed", "from", prev, "to", s)
	}
}

// fail records err as the cause of the run's failure
func (p *Pipeline) fail(ctx context.Context, err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.setState(ctx, StateFailed)
}

// InitialLoad populates the index with the load quota split across the
// configured loaders
func (p *Pipeline) InitialLoad(ctx context.Context) (*PhaseResult, error) {
	return p.runPhase(ctx, PhaseInitialLoad, p.opts.loadTasks())
}

// Incremental runs the read/write mix, either as a single mixed pair or
// split between dedicated readers and writers
func (p *Pipeline) Incremental(ctx context.Context) (*PhaseResult, error) {
	specs, err := p.opts.incrementalTasks()
	if err != nil {
		p.fail(ctx, err)
		return nil, err
	}
	return p.runPhase(ctx, PhaseIncremental, specs)
}

// Run executes the initial load and then the incremental phase, skipping
// phases whose quota is zero
func (p *Pipeline) Run(ctx context.Context) (report *Report, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ixperf.run", trace.WithAttributes(
		attribute.String("index", p.opts.IndexName),
		attribute.String("run_id", logging.RunID(ctx)),
		attribute.Int64("seed", int64(p.opts.Seed)),
	))
	defer func() {
		endSpan(span, err)
	}()

	report = &Report{
		RunID:     logging.RunID(ctx),
		Seed:      p.opts.Seed,
		Index:     p.opts.IndexName,
		KeyType:   p.opts.Keys.Name(),
		ValueType: p.opts.Values.Name(),
	}

	if p.opts.Load.Total() > 0 {
		result, err := p.InitialLoad(ctx)
		if err != nil {
			return nil, err
		}
		report.Phases = append(report.Phases, result)
	}

	if p.opts.Incremental.Total() > 0 {
		result, err := p.Incremental(ctx)
		if err != nil {
			return nil, err
		}
		report.Phases = append(report.Phases, result)
	}

	if p.opts.Validate {
		if err := p.validate(ctx, report); err != nil {
			p.fail(ctx, err)
			return nil, err
		}
	}

	p.setState(ctx, StateDone)
	p.mu.Lock()
	p.report = report
	p.mu.Unlock()
	return report, nil
}

// validate compares the index size with the size implied by write
// outcomes. Mismatches fail the run only when a single task wrote at a time.
func (p *Pipeline) validate(ctx context.Context, report *Report) error {
	merged := stats.NewAggregator(p.opts.Stats)
	for _, phase := range report.Phases {
		if err := merged.Merge(phase.Stats); err != nil {
			return err
		}
	}

	n, err := p.idx.Len()
	if err != nil {
		return fmt.Errorf("%w: len: %w", ErrBackend, err)
	}
	report.Entries = n
	report.Expected = merged.ExpectedEntries()

	if int64(n) == report.Expected {
		p.logger.WithContext(ctx).Info("Index size validated", "entries", n)
		return nil
	}
	if p.opts.singleWriter() {
		return fmt.Errorf("%w: index has %d entries, expected %d", ErrValidation, n, report.Expected)
	}
	p.logger.WithContext(ctx).Warn("Index size differs from counted outcomes",
		"entries", n,
		"expected", report.Expected,
	)
	return nil
}

// runPhase spawns one generator and one executor per task spec, waits for all of
// them and merges their aggregators
func (p *Pipeline) runPhase(ctx context.Context, name string, specs []taskSpec) (_ *PhaseResult, err error) {
	ctx = logging.WithPhase(ctx, name)
	logger := p.logger.WithContext(ctx)

	var ops uint64
	for _, spec := range specs {
		ops += spec.quotas.Total()
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "ixperf.phase", trace.WithAttributes(
		attribute.String("phase", name),
		attribute.Int("tasks", len(specs)),
		attribute.Int64("ops", int64(ops)),
	))
	defer func() {
		endSpan(span, err)
	}()

	p.mu.Lock()
	p.phase = name
	p.mu.Unlock()

	logger.PhaseStart(ctx, name, len(specs), ops)
	start := time.Now()

	// A failing executor stops reading, so its generator is released through
	// the phase context.
	phaseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		genWG  sync.WaitGroup
		execWG sync.WaitGroup
		errMu  sync.Mutex
		errs   []error
	)
	executors := make([]*executor, len(specs))

	p.setState(ctx, StateGenerating)
	for i, spec := range specs {
		cmds := make(chan workload.Command, p.opts.ChannelSize)
		mixer := workload.NewMixer(spec.quotas, workload.NewGenerator(spec.seed, p.opts.Keys, p.opts.Values, p.opts.KeySpace))
		executors[i] = newExecutor(p.idx, name, spec, p.opts, p.reporter)

		genWG.Add(1)
		go func() {
			defer genWG.Done()
			generate(phaseCtx, mixer, cmds)
		}()

		execWG.Add(1)
		go func(e *executor) {
			defer execWG.Done()
			_, taskSpan := tracer.Start(phaseCtx, "ixperf.task", trace.WithAttributes(
				attribute.String("role", e.task.Role),
				attribute.Int("id", e.task.ID),
				attribute.Int64("quota", int64(e.quota)),
			))
			err := e.run(cmds)
			taskSpan.SetAttributes(attribute.Int64("ops", int64(e.total.Total())))
			endSpan(taskSpan, err)
			if err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
				cancel()
			}
		}(executors[i])
	}

	genWG.Wait()
	p.setState(ctx, StateDraining)
	execWG.Wait()
	elapsed := time.Since(start)

	if len(errs) > 0 {
		err = phaseError(ctx, errs)
		logger.PhaseEnd(ctx, name, ops, elapsed, err)
		p.fail(ctx, err)
		return nil, err
	}

	merged := stats.NewAggregator(p.opts.Stats)
	for _, e := range executors {
		if err = merged.Merge(e.total); err != nil {
			p.fail(ctx, err)
			return nil, err
		}
	}
	p.setState(ctx, StateMerged)

	result := &PhaseResult{
		Name:    name,
		Stats:   merged,
		Elapsed: elapsed,
		Tasks:   len(specs),
	}
	logger.PhaseEnd(ctx, name, merged.Total(), elapsed, nil)

	p.mu.Lock()
	p.phases = append(p.phases, result)
	p.mu.Unlock()

	if p.reporter != nil {
		p.reporter.PhaseDone(result)
	}
	return result, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// generate sends every command of mixer and closes cmds. Cancellation is
// only observed while waiting to send.
func generate(ctx context.Context, mixer *workload.Mixer, cmds chan<- workload.Command) {
	defer close(cmds)
	for cmd := range mixer.Commands() {
		select {
		case cmds <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

// phaseError picks the root cause of a failed phase. Premature closures
// are only reported when nothing else failed, since a failing task cancels
// the others.
func phaseError(ctx context.Context, errs []error) error {
	var causes []error
	for _, err := range errs {
		if !errors.Is(err, ErrChannelClosedPrematurely) {
			causes = append(causes, err)
		}
	}
	if len(causes) == 0 {
		causes = errs
		if ctx.Err() != nil {
			causes = append(causes, ctx.Err())
		}
	}
	return errors.Join(causes...)
}

// Status is a point-in-time view of the pipeline for monitoring
type Status struct {
	State  State           `json:"state"`
	Phase  string          `json:"phase,omitempty"`
	Index  string          `json:"index"`
	Seed   uint64          `json:"seed"`
	Phases []PhaseSnapshot `json:"phases,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Status{
		State: p.State(),
		Phase: p.phase,
		Index: p.opts.IndexName,
		Seed:  p.opts.Seed,
	}
	for _, r := range p.phases {
		s.Phases = append(s.Phases, r.Snapshot())
	}
	if p.err != nil {
		s.Error = p.err.Error()
	}
	return s
}

// Report returns the report of a completed run
func (p *Pipeline) Report() (*Report, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.report, p.report != nil
}
