// Package workload synthesises the deterministic command streams that drive
// an index under test.
package workload

import (
	"fmt"

	"ixperf/internal/index"
	"ixperf/internal/stats"
)

// Command is one operation to apply to the index. Commands own their
// payloads; nothing else holds a reference to Key, Value or the bound keys.
type Command struct {
	Kind  stats.Kind
	Key   []byte
	Value []byte
	Low   index.Bound
	High  index.Bound
}

func NewLoad(key, value []byte) Command {
	return Command{Kind: stats.KindLoad, Key: key, Value: value}
}

func NewSet(key, value []byte) Command {
	return Command{Kind: stats.KindSet, Key: key, Value: value}
}

func NewDelete(key []byte) Command {
	return Command{Kind: stats.KindDelete, Key: key}
}

func NewGet(key []byte) Command {
	return Command{Kind: stats.KindGet, Key: key}
}

func NewIterate() Command {
	return Command{Kind: stats.KindIterate, Low: index.Unbound(), High: index.Unbound()}
}

func NewRange(low, high index.Bound) Command {
	return Command{Kind: stats.KindRange, Low: low, High: high}
}

func NewReverse(low, high index.Bound) Command {
	return Command{Kind: stats.KindReverse, Low: low, High: high}
}

func (c Command) String() string {
	switch c.Kind {
	case stats.KindLoad, stats.KindSet:
		return fmt.Sprintf("%s(%x, %d bytes)", c.Kind, c.Key, len(c.Value))
	case stats.KindDelete, stats.KindGet:
		return fmt.Sprintf("%s(%x)", c.Kind, c.Key)
	case stats.KindRange, stats.KindReverse:
		return fmt.Sprintf("%s(%s, %s)", c.Kind, c.Low, c.High)
	default:
		return c.Kind.String()
	}
}
