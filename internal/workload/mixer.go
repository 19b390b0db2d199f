package workload

import (
	"iter"

	"ixperf/internal/stats"
)

// taskSeedStride separates the streams of concurrently spawned tasks
const taskSeedStride = 100

// TaskSeed derives the seed of task id from the run seed
func TaskSeed(base uint64, id int) uint64 {
	return base + uint64(id)*taskSeedStride
}

// Mixer interleaves the kinds of a quota set. Each call to Next picks a kind
// with probability proportional to its remaining quota, so the stream ends
// exactly when every quota is exhausted.
type Mixer struct {
	gen       *Generator
	remaining Quotas
	emitted   uint64
}

func NewMixer(quotas Quotas, gen *Generator) *Mixer {
	return &Mixer{gen: gen, remaining: quotas}
}

// Next returns the next command, or false once every quota is spent
func (m *Mixer) Next() (Command, bool) {
	total := m.remaining.Total()
	if total == 0 {
		return Command{}, false
	}

	r := m.gen.uint64n(total)
	kind := stats.KindLoad
	for _, k := range stats.Kinds {
		n := m.remaining.Of(k)
		if r < n {
			kind = k
			break
		}
		r -= n
	}
	*m.remaining.slot(kind)--
	m.emitted++

	return m.synthesize(kind), true
}

func (m *Mixer) synthesize(kind stats.Kind) Command {
	switch kind {
	case stats.KindLoad:
		key := m.gen.Key()
		return NewLoad(key, m.gen.Value())
	case stats.KindSet:
		key := m.gen.Key()
		return NewSet(key, m.gen.Value())
	case stats.KindDelete:
		return NewDelete(m.gen.Key())
	case stats.KindGet:
		return NewGet(m.gen.Key())
	case stats.KindIterate:
		return NewIterate()
	case stats.KindRange:
		low := m.gen.Bound()
		return NewRange(low, m.gen.Bound())
	default:
		low := m.gen.Bound()
		return NewReverse(low, m.gen.Bound())
	}
}

// Commands yields the remaining commands in order
func (m *Mixer) Commands() iter.Seq[Command] {
	return func(yield func(Command) bool) {
		for {
			cmd, ok := m.Next()
			if !ok || !yield(cmd) {
				return
			}
		}
	}
}

// Remaining returns the unspent quotas
func (m *Mixer) Remaining() Quotas { return m.remaining }

// Emitted returns the number of commands produced so far
func (m *Mixer) Emitted() uint64 { return m.emitted }
