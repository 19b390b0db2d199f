package workload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"

	"ixperf/internal/index"
)

// ErrUnsupportedType is returned for key or value type names with no codec
var ErrUnsupportedType = errors.New("unsupported key/value type")

const (
	arrayWidth = 20
	filler     = 0xAB
)

// Codec turns drawn numbers into index keys and synthesises values. Every
// key codec preserves numeric order as byte order for the numbers it can
// draw.
type Codec struct {
	name  string
	key   func(n uint64) []byte
	value func(r *rand.Rand) []byte
}

// NewCodec returns the codec for name. size is the width of "bytes" keys
// and values and is ignored by the fixed-width types.
func NewCodec(name string, size int) (Codec, error) {
	switch name {
	case "u64":
		return Codec{name: name, key: encodeU64, value: func(r *rand.Rand) []byte {
			return encodeU64(r.Uint64())
		}}, nil
	case "i64":
		return Codec{name: name, key: encodeI64, value: func(r *rand.Rand) []byte {
			return encodeI64(uint64(r.Int64()))
		}}, nil
	case "i32":
		return Codec{name: name, key: encodeI32, value: func(r *rand.Rand) []byte {
			return encodeI32(uint64(r.Int32()))
		}}, nil
	case "array":
		return Codec{name: name, key: decimal(arrayWidth), value: fill(arrayWidth)}, nil
	case "bytes":
		if size < 0 {
			return Codec{}, fmt.Errorf("%w: negative size %d for bytes", ErrUnsupportedType, size)
		}
		return Codec{name: name, key: decimal(size), value: fill(size)}, nil
	default:
		return Codec{}, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
	}
}

func (c Codec) Name() string { return c.name }

// Key encodes n as a key
func (c Codec) Key(n uint64) []byte { return c.key(n) }

// Value draws a value from r. Filler types do not consume randomness.
func (c Codec) Value(r *rand.Rand) []byte { return c.value(r) }

func encodeU64(n uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), n)
}

// encodeI64 flips the sign bit so negative numbers sort before positive ones
func encodeI64(n uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), n^(1<<63))
}

func encodeI32(n uint64) []byte {
	return binary.BigEndian.AppendUint32(make([]byte, 0, 4), uint32(int32(n))^(1<<31))
}

// decimal renders n zero-padded to at least width digits
func decimal(width int) func(n uint64) []byte {
	return func(n uint64) []byte {
		digits := strconv.AppendUint(make([]byte, 0, width), n, 10)
		if pad := width - len(digits); pad > 0 {
			return append(bytes.Repeat([]byte{'0'}, pad), digits...)
		}
		return digits
	}
}

func fill(size int) func(*rand.Rand) []byte {
	return func(*rand.Rand) []byte {
		return bytes.Repeat([]byte{filler}, size)
	}
}

// KeySpace is the number of distinct keys a run draws from: the initial
// load size scaled by the loader count, or the incremental total when
// nothing is loaded.
func KeySpace(loads uint64, loaders int, incremental uint64) uint64 {
	if loads > 0 {
		return loads * uint64(max(loaders, 1))
	}
	return max(incremental, 1)
}

// Generator draws keys, values and bounds from one seeded stream
type Generator struct {
	rng      *rand.Rand
	keys     Codec
	values   Codec
	keySpace uint64
}

// NewGenerator seeds a PCG stream. Equal arguments always produce the same
// sequence of draws.
func NewGenerator(seed uint64, keys, values Codec, keySpace uint64) *Generator {
	return &Generator{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		keys:     keys,
		values:   values,
		keySpace: max(keySpace, 1),
	}
}

func (g *Generator) Key() []byte {
	return g.keys.Key(g.rng.Uint64() % g.keySpace)
}

func (g *Generator) Value() []byte {
	return g.values.Value(g.rng)
}

// Bound draws a key, then picks Included, Excluded or Unbounded with equal
// probability
func (g *Generator) Bound() index.Bound {
	key := g.Key()
	switch g.rng.Uint64() % 3 {
	case 0:
		return index.Include(key)
	case 1:
		return index.Exclude(key)
	default:
		return index.Unbound()
	}
}

func (g *Generator) KeySpace() uint64 { return g.keySpace }

// uint64n draws in [0, n)
func (g *Generator) uint64n(n uint64) uint64 {
	return g.rng.Uint64N(n)
}
