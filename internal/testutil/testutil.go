package testutil

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ixperf/internal/config"
	"ixperf/internal/index"
	"ixperf/internal/logging"
	"ixperf/internal/stats"
)

// TestIndex creates an empty btree index that is closed when the test ends
func TestIndex(t *testing.T) *index.BTree {
	t.Helper()

	idx := index.NewBTree(index.DefaultDegree)
	t.Cleanup(func() {
		idx.Close()
	})
	return idx
}

// TestBadgerIndex creates an in-memory badger index
func TestBadgerIndex(t *testing.T) *index.Badger {
	t.Helper()

	idx, err := index.NewBadger(index.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create test badger index: %v", err)
	}
	t.Cleanup(func() {
		idx.Close()
	})
	return idx
}

// TestConfig creates a small, fast configuration for tests
func TestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Generator.Seed = 42
	cfg.Generator.ChannelSize = 16
	cfg.Generator.Loads = 200
	cfg.Generator.Sets = 100
	cfg.Generator.Deletes = 50
	cfg.Generator.Gets = 50
	cfg.Generator.Ranges = 5
	cfg.Generator.Reverses = 5
	cfg.Stats = TestStatsConfig()
	cfg.Logging = logging.TestLoggingConfig()
	cfg.Server.HTTPPort = 0 // Let the OS choose a free port for testing
	cfg.Server.GRPCPort = 0
	return cfg
}

// TestStatsConfig keeps histograms small so tests do not allocate the
// default million buckets
func TestStatsConfig() config.StatsConfig {
	return config.StatsConfig{
		SampleEvery: 1,
		Buckets:     1000,
		BucketWidth: time.Microsecond,
	}
}

// TestStatsOptions is TestStatsConfig in aggregator form
func TestStatsOptions() stats.Options {
	cfg := TestStatsConfig()
	return stats.Options{
		Layout:      stats.Layout{Buckets: cfg.Buckets, Width: cfg.BucketWidth},
		SampleEvery: cfg.SampleEvery,
	}
}

// TestLogger creates a test logger with minimal configuration
func TestLogger() *logging.Logger {
	testLogConfig := logging.TestLoggingConfig()
	return logging.NewLoggerWithWriter(&testLogConfig, io.Discard)
}

// PopulateIndex inserts count entries and returns them as a map
func PopulateIndex(t *testing.T, idx index.Index, count int) map[string]string {
	t.Helper()

	data := make(map[string]string)
	for i := 0; i < count; i++ {
		key := fmt.Sprintf("test-key-%04d", i)
		value := fmt.Sprintf("test-value-%d", i)

		if _, _, err := idx.Set([]byte(key), []byte(value)); err != nil {
			t.Fatalf("Failed to set test data: %v", err)
		}

		data[key] = value
	}

	return data
}

// IndexContents drains idx into a map
func IndexContents(t *testing.T, idx index.Index) map[string]string {
	t.Helper()

	contents := make(map[string]string)
	err := idx.Iterate(func(k, v []byte) bool {
		contents[string(k)] = string(v)
		return true
	})
	if err != nil {
		t.Fatalf("Failed to iterate index: %v", err)
	}
	return contents
}

// AssertIndexLen verifies the number of live entries
func AssertIndexLen(t *testing.T, idx index.Index, expected int) {
	t.Helper()

	n, err := idx.Len()
	if err != nil {
		t.Fatalf("Failed to get index length: %v", err)
	}
	if n != expected {
		t.Errorf("Expected index to hold %d entries, got %d", expected, n)
	}
}

// AssertKeyValue verifies that a key has the expected value
func AssertKeyValue(t *testing.T, idx index.Index, key, expectedValue string) {
	t.Helper()

	value, err := idx.Get([]byte(key))
	if err != nil {
		t.Fatalf("Failed to get key %s: %v", key, err)
	}

	if string(value) != expectedValue {
		t.Errorf("Expected key %s to have value %s, got %s", key, expectedValue, string(value))
	}
}

// AssertKeyNotExists verifies that a key is absent
func AssertKeyNotExists(t *testing.T, idx index.Index, key string) {
	t.Helper()

	_, err := idx.Get([]byte(key))
	if !errors.Is(err, index.ErrKeyNotFound) {
		t.Errorf("Expected key %s to not exist, got error %v", key, err)
	}
}

// AssertHTTPStatus verifies that the HTTP response has the expected status code
func AssertHTTPStatus(t *testing.T, recorder *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()

	if recorder.Code != expectedStatus {
		t.Errorf("Expected HTTP status %d, got %d", expectedStatus, recorder.Code)
	}
}

// AssertContains verifies that a string contains a substring
func AssertContains(t *testing.T, str, substr string) {
	t.Helper()

	if !strings.Contains(str, substr) {
		t.Errorf("Expected string to contain %s, but it doesn't: %s", substr, str)
	}
}

// WithTimeout runs a test function with a timeout
func WithTimeout(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()

	done := make(chan struct{})

	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("Test timed out after %v", timeout)
	}
}

// WaitForCondition waits for a condition to become true with timeout
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, checkInterval time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(checkInterval)
	}

	t.Fatalf("Condition not met within timeout %v", timeout)
}
