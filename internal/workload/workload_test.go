package workload

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"

	"ixperf/internal/config"
	"ixperf/internal/index"
	"ixperf/internal/stats"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCodec(t *testing.T, name string, size int) Codec {
	t.Helper()
	c, err := NewCodec(name, size)
	require.NoError(t, err)
	return c
}

func newTestMixer(t *testing.T, q Quotas, seed uint64) *Mixer {
	t.Helper()
	keys := mustCodec(t, "u64", 0)
	return NewMixer(q, NewGenerator(seed, keys, keys, 1000))
}

func TestNewCodec(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		keyLen  int
		wantErr bool
	}{
		{"u64", 0, 8, false},
		{"i64", 0, 8, false},
		{"i32", 0, 4, false},
		{"array", 0, 20, false},
		{"bytes", 12, 12, false},
		{"f32", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCodec(tt.name, tt.size)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, c.Name())
			assert.Len(t, c.Key(42), tt.keyLen)
		})
	}
}

func TestCodecFormats(t *testing.T) {
	assert.Equal(t, []byte("00000000000000000042"), mustCodec(t, "array", 0).Key(42))
	assert.Equal(t, []byte("0007"), mustCodec(t, "bytes", 4).Key(7))
	// Numbers wider than the key size are not truncated.
	assert.Equal(t, []byte("12345"), mustCodec(t, "bytes", 3).Key(12345))

	g := NewGenerator(1, mustCodec(t, "u64", 0), mustCodec(t, "bytes", 5), 10)
	assert.Equal(t, bytes.Repeat([]byte{0xAB}, 5), g.Value())

	arr := mustCodec(t, "array", 0)
	assert.Equal(t, bytes.Repeat([]byte{0xAB}, 20), arr.Value(nil))
}

func TestSignedCodecOrdering(t *testing.T) {
	i64 := mustCodec(t, "i64", 0)
	neg := i64.Key(uint64(math.MaxUint64)) // -1
	assert.Negative(t, bytes.Compare(neg, i64.Key(0)), "negative keys sort first")

	i32 := mustCodec(t, "i32", 0)
	assert.Negative(t, bytes.Compare(i32.Key(uint64(math.MaxUint32)), i32.Key(1)))
}

func TestKeySpace(t *testing.T) {
	assert.Equal(t, uint64(1000), KeySpace(1000, 0, 5))
	assert.Equal(t, uint64(3000), KeySpace(1000, 3, 5))
	assert.Equal(t, uint64(5), KeySpace(0, 3, 5))
	assert.Equal(t, uint64(1), KeySpace(0, 0, 0))
}

func TestTaskSeed(t *testing.T) {
	assert.Equal(t, uint64(42), TaskSeed(42, 0))
	assert.Equal(t, uint64(342), TaskSeed(42, 3))
}

func TestQuotas(t *testing.T) {
	q := IncrementalQuotas(config.GeneratorConfig{
		Loads: 9, Sets: 10, Deletes: 3, Gets: 7, Iterates: 1, Ranges: 2, Reverses: 4,
	})
	assert.Zero(t, q.Load)
	assert.Equal(t, uint64(13), q.Writes())
	assert.Equal(t, uint64(14), q.Reads())
	assert.Equal(t, uint64(27), q.Total())

	assert.Equal(t, Quotas{Get: 7, Iterate: 1, Range: 2, Reverse: 4}, q.ReadsOnly())
	assert.Equal(t, Quotas{Set: 10, Delete: 3}, q.WritesOnly())
	assert.Equal(t, Quotas{Load: 9}, LoadQuotas(config.GeneratorConfig{Loads: 9, Sets: 1}))
}

func TestQuotasSplit(t *testing.T) {
	q := Quotas{Set: 10, Delete: 3, Get: 1}
	shares := q.Split(3)
	require.Len(t, shares, 3)

	assert.Equal(t, Quotas{Set: 4, Delete: 1, Get: 1}, shares[0])
	assert.Equal(t, Quotas{Set: 3, Delete: 1}, shares[1])
	assert.Equal(t, Quotas{Set: 3, Delete: 1}, shares[2])

	assert.Nil(t, q.Split(0))
}

func TestMixerExhaustsQuotas(t *testing.T) {
	q := Quotas{Load: 5, Set: 7, Delete: 3, Get: 4, Iterate: 1, Range: 2, Reverse: 6}
	m := newTestMixer(t, q, 42)

	counts := map[stats.Kind]uint64{}
	for cmd := range m.Commands() {
		counts[cmd.Kind]++
	}

	for _, kind := range stats.Kinds {
		assert.Equal(t, q.Of(kind), counts[kind], "kind %s", kind)
	}
	assert.Equal(t, q.Total(), m.Emitted())
	assert.Zero(t, m.Remaining().Total())

	_, ok := m.Next()
	assert.False(t, ok, "an exhausted mixer yields nothing")
}

func TestMixerPayloads(t *testing.T) {
	m := newTestMixer(t, Quotas{Set: 20, Delete: 20, Iterate: 2, Range: 20}, 7)

	for cmd := range m.Commands() {
		switch cmd.Kind {
		case stats.KindSet:
			assert.Len(t, cmd.Key, 8)
			assert.Len(t, cmd.Value, 8)
		case stats.KindDelete:
			assert.Len(t, cmd.Key, 8)
			assert.Nil(t, cmd.Value)
		case stats.KindIterate:
			assert.Equal(t, index.Unbounded, cmd.Low.Kind)
			assert.Equal(t, index.Unbounded, cmd.High.Kind)
		case stats.KindRange:
			for _, b := range []index.Bound{cmd.Low, cmd.High} {
				if b.Kind == index.Unbounded {
					assert.Nil(t, b.Key)
				} else {
					assert.Len(t, b.Key, 8)
				}
			}
		default:
			t.Fatalf("unexpected command %s", cmd)
		}
	}
}

func TestMixerStopsWhenConsumerStops(t *testing.T) {
	m := newTestMixer(t, Quotas{Get: 10}, 1)

	n := 0
	for range m.Commands() {
		n++
		if n == 4 {
			break
		}
	}
	assert.Equal(t, uint64(4), m.Emitted())
	assert.Equal(t, uint64(6), m.Remaining().Get)
}

func TestUnknownKindPanics(t *testing.T) {
	assert.Panics(t, func() { Quotas{}.Of(stats.Kind(99)) })
}

func TestCodecError(t *testing.T) {
	_, err := NewCodec("bytes", -1)
	assert.True(t, errors.Is(err, ErrUnsupportedType))
}

func TestWorkloadProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	quotaGen := gen.Struct(reflect.TypeOf(&Quotas{}), map[string]gopter.Gen{
		"Load":    gen.UInt64Range(0, 50),
		"Set":     gen.UInt64Range(0, 50),
		"Delete":  gen.UInt64Range(0, 50),
		"Get":     gen.UInt64Range(0, 50),
		"Iterate": gen.UInt64Range(0, 5),
		"Range":   gen.UInt64Range(0, 50),
		"Reverse": gen.UInt64Range(0, 50),
	})

	// Same seed and quotas yield the same command sequence
	properties.Property("mixer is deterministic", prop.ForAll(
		func(q Quotas, seed uint64) bool {
			a := newTestMixer(t, q, seed)
			b := newTestMixer(t, q, seed)
			for {
				ca, okA := a.Next()
				cb, okB := b.Next()
				if okA != okB {
					return false
				}
				if !okA {
					return true
				}
				if ca.String() != cb.String() || !bytes.Equal(ca.Value, cb.Value) {
					return false
				}
			}
		},
		quotaGen,
		gen.UInt64(),
	))

	// Every quota is emitted exactly
	properties.Property("mixer emits every quota", prop.ForAll(
		func(q Quotas, seed uint64) bool {
			m := newTestMixer(t, q, seed)
			var got Quotas
			for cmd := range m.Commands() {
				*got.slot(cmd.Kind)++
			}
			return got == q && m.Emitted() == q.Total()
		},
		quotaGen,
		gen.UInt64(),
	))

	// Shares always sum back to the original quotas
	properties.Property("split preserves totals", prop.ForAll(
		func(q Quotas, n int) bool {
			var sum Quotas
			shares := q.Split(n)
			for i, s := range shares {
				for _, kind := range stats.Kinds {
					*sum.slot(kind) += s.Of(kind)
					if i > 0 && s.Of(kind) > shares[i-1].Of(kind) {
						return false
					}
				}
			}
			return sum == q && len(shares) == n
		},
		quotaGen,
		gen.IntRange(1, 9),
	))

	// Key codecs map numeric order onto byte order
	properties.Property("keys preserve order", prop.ForAll(
		func(a, b uint64) bool {
			for _, name := range []string{"u64", "i64", "array", "bytes"} {
				c, _ := NewCodec(name, 20)
				want := 0
				if a < b {
					want = -1
				} else if a > b {
					want = 1
				}
				if bytes.Compare(c.Key(a), c.Key(b)) != want {
					return false
				}
			}
			return true
		},
		gen.UInt64Range(0, math.MaxInt64),
		gen.UInt64Range(0, math.MaxInt64),
	))

	properties.TestingRun(t)
}

const (
	sampleSeeds = 20000
	tolerance   = 0.02
)

func TestMixerPicksKindsByRemainingQuota(t *testing.T) {
	var firstSet, secondSet, afterSet int
	for seed := uint64(0); seed < sampleSeeds; seed++ {
		m := newTestMixer(t, Quotas{Set: 3, Delete: 1}, seed)
		first, ok := m.Next()
		require.True(t, ok)
		if first.Kind != stats.KindSet {
			continue
		}
		firstSet++

		// Two sets and one delete remain
		second, ok := m.Next()
		require.True(t, ok)
		afterSet++
		if second.Kind == stats.KindSet {
			secondSet++
		}
	}

	assert.InDelta(t, 0.75, float64(firstSet)/sampleSeeds, tolerance, "first command is a set")
	assert.InDelta(t, 2.0/3.0, float64(secondSet)/float64(afterSet), tolerance, "set after a set")
}

func TestGeneratorBoundKindsAreUniform(t *testing.T) {
	keys := mustCodec(t, "u64", 0)
	counts := map[index.BoundKind]int{}
	for seed := uint64(0); seed < sampleSeeds; seed++ {
		counts[NewGenerator(seed, keys, keys, 1000).Bound().Kind]++
	}

	for _, kind := range []index.BoundKind{index.Included, index.Excluded, index.Unbounded} {
		assert.InDelta(t, 1.0/3.0, float64(counts[kind])/sampleSeeds, tolerance, "bound kind %s", kind)
	}
}

func TestRangeCommandsIncludeInvertedBounds(t *testing.T) {
	m := newTestMixer(t, Quotas{Range: sampleSeeds}, 11)

	var bounded, inverted int
	for cmd := range m.Commands() {
		if cmd.Low.Kind == index.Unbounded || cmd.High.Kind == index.Unbounded {
			continue
		}
		bounded++
		if bytes.Compare(cmd.Low.Key, cmd.High.Key) > 0 {
			inverted++
		}
	}

	// Both ends bounded in 4/9 of draws, inverted in just under half of those
	assert.InDelta(t, 4.0/9.0, float64(bounded)/sampleSeeds, tolerance)
	assert.Greater(t, inverted, bounded/3, "low above high must be generated")
	assert.Less(t, inverted, bounded/2+bounded/20)
}
