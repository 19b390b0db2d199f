package pipeline

import (
	"fmt"
	"time"

	"ixperf/internal/config"
	"ixperf/internal/stats"
	"ixperf/internal/workload"
)

// Options fixes everything a run needs besides the index itself
type Options struct {
	Seed        uint64
	Load        workload.Quotas
	Incremental workload.Quotas

	Loaders int
	Readers int
	Writers int

	ChannelSize    int
	Stats          stats.Options
	ReportInterval time.Duration

	Keys     workload.Codec
	Values   workload.Codec
	KeySpace uint64

	// Labels for the report
	IndexName string
	Validate  bool
}

// OptionsFromConfig builds run options from a validated configuration. The
// seed must already be resolved.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	keys, err := workload.NewCodec(cfg.Ixperf.KeyType, cfg.Generator.KeySize)
	if err != nil {
		return Options{}, fmt.Errorf("%w: key type: %v", config.ErrInvalidConfig, err)
	}
	values, err := workload.NewCodec(cfg.Ixperf.ValueType, cfg.Generator.ValueSize)
	if err != nil {
		return Options{}, fmt.Errorf("%w: value type: %v", config.ErrInvalidConfig, err)
	}

	incremental := workload.IncrementalQuotas(cfg.Generator)
	return Options{
		Seed:        cfg.Generator.Seed,
		Load:        workload.LoadQuotas(cfg.Generator),
		Incremental: incremental,
		Loaders:     cfg.Concurrency.Loaders,
		Readers:     cfg.Concurrency.Readers,
		Writers:     cfg.Concurrency.Writers,
		ChannelSize: cfg.Generator.ChannelSize,
		Stats: stats.Options{
			Layout:      stats.Layout{Buckets: cfg.Stats.Buckets, Width: cfg.Stats.BucketWidth},
			SampleEvery: cfg.Stats.SampleEvery,
		},
		ReportInterval: cfg.Stats.ReportInterval,
		Keys:           keys,
		Values:         values,
		KeySpace:       workload.KeySpace(cfg.Generator.Loads, cfg.Concurrency.Loaders, incremental.Total()),
		IndexName:      cfg.Index.Type,
		Validate:       cfg.Ixperf.Validate,
	}, nil
}

// singleWriter reports whether at most one task mutates the index at a time
func (o Options) singleWriter() bool {
	if o.Load.Total() > 0 && max(o.Loaders, 1) > 1 {
		return false
	}
	return o.Readers+o.Writers == 0 || o.Writers <= 1
}

// Task identifies one generator/executor pair
type Task struct {
	Role string `json:"role"`
	ID   int    `json:"id"`
}

const (
	RoleLoader = "loader"
	RoleMixed  = "mixed"
	RoleWriter = "writer"
	RoleReader = "reader"
)

func (t Task) String() string {
	return fmt.Sprintf("%s-%d", t.Role, t.ID)
}

type taskSpec struct {
	task   Task
	quotas workload.Quotas
	seed   uint64
}

// loadTasks splits the initial load across the loaders
func (o Options) loadTasks() []taskSpec {
	n := max(o.Loaders, 1)
	var specs []taskSpec
	for i, q := range o.Load.Split(n) {
		specs = append(specs, taskSpec{
			task:   Task{Role: RoleLoader, ID: i},
			quotas: q,
			seed:   workload.TaskSeed(o.Seed, i),
		})
	}
	return specs
}

// incrementalTasks is one mixed pair when no readers or writers are
// configured, otherwise the writes split across writers and the reads across
// readers. Writers take the low task ids.
func (o Options) incrementalTasks() ([]taskSpec, error) {
	if o.Readers+o.Writers == 0 {
		return []taskSpec{{
			task:   Task{Role: RoleMixed, ID: 0},
			quotas: o.Incremental,
			seed:   o.Seed,
		}}, nil
	}

	if o.Incremental.Writes() > 0 && o.Writers == 0 {
		return nil, fmt.Errorf("%w: write operations requested but no writers configured", config.ErrInvalidConfig)
	}
	if o.Incremental.Reads() > 0 && o.Readers == 0 {
		return nil, fmt.Errorf("%w: read operations requested but no readers configured", config.ErrInvalidConfig)
	}

	var specs []taskSpec
	for i, q := range o.Incremental.WritesOnly().Split(o.Writers) {
		specs = append(specs, taskSpec{
			task:   Task{Role: RoleWriter, ID: i},
			quotas: q,
			seed:   workload.TaskSeed(o.Seed, i),
		})
	}
	for i, q := range o.Incremental.ReadsOnly().Split(o.Readers) {
		id := o.Writers + i
		specs = append(specs, taskSpec{
			task:   Task{Role: RoleReader, ID: i},
			quotas: q,
			seed:   workload.TaskSeed(o.Seed, id),
		})
	}
	return specs, nil
}
