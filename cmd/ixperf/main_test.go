package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ixperf/internal/config"
	"ixperf/internal/performance"
	"ixperf/internal/pipeline"
)

const smallProfile = `
ixperf:
  key_type: u64
  value_type: u64
  validate: true
generator:
  seed: 99
  channel_size: 8
  loads: 300
  sets: 100
  deletes: 40
  gets: 60
  ranges: 3
  reverses: 3
concurrency:
  loaders: 1
stats:
  sample_every: 1
  buckets: 1000
  bucket_width: 1us
logging:
  level: error
`

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunWritesReport(t *testing.T) {
	profile := writeProfile(t, smallProfile)
	reportPath := filepath.Join(t.TempDir(), "report.json")

	out, err := execute(t, "run", "--profile", profile, "--json", "--out", reportPath, "--env", "quiet")
	require.NoError(t, err)

	printed, err := pipeline.ParseReport([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, uint64(99), printed.Seed)
	assert.Equal(t, "btree", printed.Index)
	require.Len(t, printed.Phases, 2)
	assert.Equal(t, uint64(300), printed.Phases[0].Stats.Total())
	assert.Equal(t, uint64(206), printed.Phases[1].Stats.Total())
	assert.Equal(t, int64(printed.Entries), printed.Expected)

	persisted, err := pipeline.ReadReportFile(reportPath)
	require.NoError(t, err)
	assert.Equal(t, printed, persisted)
}

func TestRunIsReproducible(t *testing.T) {
	profile := writeProfile(t, smallProfile)

	var entries []int
	for _, idx := range []string{"btree", "snapshot", "badger"} {
		out, err := execute(t, "run", "--profile", profile, "--json", "--seed", "5", "--index", idx, "--env", "quiet")
		require.NoError(t, err, idx)
		snap, err := pipeline.ParseReport([]byte(out))
		require.NoError(t, err)
		assert.Equal(t, uint64(5), snap.Seed)
		assert.Equal(t, idx, snap.Index)
		entries = append(entries, snap.Entries)
	}
	assert.Equal(t, entries[0], entries[1])
	assert.Equal(t, entries[0], entries[2])
}

func TestRunWithConsoleTracing(t *testing.T) {
	profile := writeProfile(t, smallProfile)
	out, err := execute(t, "run", "--profile", profile, "--trace", "console", "--env", "quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "index=btree key=u64 value=u64 seed=99")

	_, err = execute(t, "run", "--profile", profile, "--trace", "jaeger", "--env", "quiet")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunRejectsUnknownIndex(t *testing.T) {
	profile := writeProfile(t, smallProfile)
	_, err := execute(t, "run", "--profile", profile, "--index", "skiplist", "--env", "quiet")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestReportCommand(t *testing.T) {
	profile := writeProfile(t, smallProfile)
	reportPath := filepath.Join(t.TempDir(), "report.json")
	_, err := execute(t, "run", "--profile", profile, "--out", reportPath, "--env", "quiet")
	require.NoError(t, err)

	text, err := execute(t, "report", reportPath)
	require.NoError(t, err)
	assert.Contains(t, text, "initial-load")
	assert.Contains(t, text, "load = { ops=300")

	structured, err := execute(t, "report", reportPath, "--format", "structured")
	require.NoError(t, err)
	assert.Contains(t, structured, "initial-load load.ops=300")

	asJSON, err := execute(t, "report", reportPath, "--json")
	require.NoError(t, err)
	_, err = pipeline.ParseReport([]byte(asJSON))
	assert.NoError(t, err)

	_, err = execute(t, "report", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = execute(t, "report")
	assert.Error(t, err)
}

func TestCompareCommand(t *testing.T) {
	profile := writeProfile(t, smallProfile)
	dir := t.TempDir()
	baseline := filepath.Join(dir, "baseline.json")
	_, err := execute(t, "run", "--profile", profile, "--out", baseline, "--env", "quiet")
	require.NoError(t, err)

	// A report never regresses against itself
	out, err := execute(t, "compare", baseline, baseline)
	require.NoError(t, err)
	assert.Contains(t, out, "severity=none")
	assert.Contains(t, out, "throughput")

	snap, err := pipeline.ReadReportFile(baseline)
	require.NoError(t, err)
	for i := range snap.Phases {
		snap.Phases[i].Throughput /= 2
	}
	slower := filepath.Join(dir, "slower.json")
	require.NoError(t, pipeline.WriteReportFile(slower, snap))

	out, err = execute(t, "compare", baseline, slower, "--json")
	assert.ErrorIs(t, err, performance.ErrRegression)
	assert.Contains(t, out, `"severity": "critical"`)

	_, err = execute(t, "compare", baseline, slower, "--throughput-threshold", "60")
	assert.NoError(t, err)

	_, err = execute(t, "compare", baseline)
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "--profile", writeProfile(t, smallProfile))
	require.NoError(t, err)
	assert.Contains(t, out, "profile ok: index=btree key=u64 value=u64")
	assert.Contains(t, out, "initial load: load=300")

	out, err = execute(t, "validate", "--profile", writeProfile(t, smallProfile), "--print")
	require.NoError(t, err)
	assert.Contains(t, out, "seed: 99")

	bad := strings.Replace(smallProfile, "  loaders: 1\n", "  loaders: 1\n  readers: 2\n", 1)
	_, err = execute(t, "validate", "--profile", writeProfile(t, bad))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestBundledProfilesValidate(t *testing.T) {
	profiles, err := filepath.Glob("../../profiles/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, profiles)

	for _, p := range profiles {
		t.Run(filepath.Base(p), func(t *testing.T) {
			_, err := execute(t, "validate", "--profile", p)
			assert.NoError(t, err)
		})
	}
}
