package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"ixperf/internal/stats"
)

const (
	PhaseInitialLoad = "initial-load"
	PhaseIncremental = "incremental"
)

// PhaseResult is the merged outcome of one phase
type PhaseResult struct {
	Name    string
	Stats   *stats.Aggregator
	Elapsed time.Duration
	Tasks   int
}

// Throughput returns operations per second over the phase's wall time
func (r *PhaseResult) Throughput() (float64, bool) {
	return stats.Throughput(r.Stats.Total(), r.Elapsed)
}

func (r *PhaseResult) Snapshot() PhaseSnapshot {
	s := PhaseSnapshot{
		Name:    r.Name,
		Tasks:   r.Tasks,
		Elapsed: r.Elapsed,
		Stats:   r.Stats.Snapshot(),
	}
	s.Stats.Elapsed = r.Elapsed
	s.Throughput, _ = r.Throughput()
	return s
}

// Report is the outcome of a full run
type Report struct {
	RunID     string
	Seed      uint64
	Index     string
	KeyType   string
	ValueType string
	Phases    []*PhaseResult

	// Entries is the final index size; Expected is the size implied by the
	// counted write outcomes. Both are zero when validation is off.
	Entries  int
	Expected int64
}

// Phase returns the named phase, if it ran
func (r *Report) Phase(name string) (*PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

func (r *Report) Snapshot() ReportSnapshot {
	s := ReportSnapshot{
		RunID:     r.RunID,
		Seed:      r.Seed,
		Index:     r.Index,
		KeyType:   r.KeyType,
		ValueType: r.ValueType,
		Entries:   r.Entries,
		Expected:  r.Expected,
	}
	for _, p := range r.Phases {
		s.Phases = append(s.Phases, p.Snapshot())
	}
	return s
}

// PhaseSnapshot is the persisted form of a PhaseResult
type PhaseSnapshot struct {
	Name       string         `json:"name"`
	Tasks      int            `json:"tasks"`
	Elapsed    time.Duration  `json:"elapsed"`
	Throughput float64        `json:"throughput"`
	Stats      stats.Snapshot `json:"stats"`
}

// ReportSnapshot is the persisted form of a Report. The report command
// renders it again without rerunning anything.
type ReportSnapshot struct {
	RunID     string          `json:"run_id,omitempty"`
	Seed      uint64          `json:"seed"`
	Index     string          `json:"index"`
	KeyType   string          `json:"key_type"`
	ValueType string          `json:"value_type"`
	Phases    []PhaseSnapshot `json:"phases"`
	Entries   int             `json:"entries"`
	Expected  int64           `json:"expected_entries"`
}

// Text renders the report for humans
func (s ReportSnapshot) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "index=%s key=%s value=%s seed=%d\n", s.Index, s.KeyType, s.ValueType, s.Seed)
	for _, p := range s.Phases {
		fmt.Fprintf(&b, "\n%s: %d ops by %d tasks in %v", p.Name, p.Stats.Total(), p.Tasks, p.Elapsed)
		if p.Throughput > 0 {
			fmt.Fprintf(&b, " (%.0f ops/sec)", p.Throughput)
		}
		b.WriteByte('\n')
		b.WriteString(p.Stats.Text())
	}
	if s.Entries > 0 || s.Expected > 0 {
		fmt.Fprintf(&b, "\nindex entries=%d expected=%d\n", s.Entries, s.Expected)
	}
	return b.String()
}

// Structured renders the report as key=value lines prefixed by phase
func (s ReportSnapshot) Structured() string {
	var b strings.Builder
	fmt.Fprintf(&b, "index=%s key_type=%s value_type=%s seed=%d entries=%d expected_entries=%d\n",
		s.Index, s.KeyType, s.ValueType, s.Seed, s.Entries, s.Expected)
	for _, p := range s.Phases {
		fmt.Fprintf(&b, "%s.tasks=%d %s.elapsed=%d %s.throughput=%.2f\n",
			p.Name, p.Tasks, p.Name, p.Elapsed.Nanoseconds(), p.Name, p.Throughput)
		for _, line := range strings.Split(strings.TrimSpace(p.Stats.Structured()), "\n") {
			if line != "" {
				fmt.Fprintf(&b, "%s %s\n", p.Name, line)
			}
		}
	}
	return b.String()
}

func (s ReportSnapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Render formats the report in one of the configured output modes
func (s ReportSnapshot) Render(mode string) (string, error) {
	switch mode {
	case "", "text":
		return s.Text(), nil
	case "structured":
		return s.Structured(), nil
	case "json":
		data, err := s.JSON()
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	default:
		return "", fmt.Errorf("unknown output mode %q", mode)
	}
}

// ParseReport decodes a report produced by JSON
func ParseReport(data []byte) (ReportSnapshot, error) {
	var s ReportSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return ReportSnapshot{}, fmt.Errorf("failed to decode report: %w", err)
	}
	return s, nil
}

// WriteReportFile persists the report as JSON
func WriteReportFile(path string, s ReportSnapshot) error {
	data, err := s.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReportFile loads a report persisted by WriteReportFile
func ReadReportFile(path string) (ReportSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ReportSnapshot{}, fmt.Errorf("failed to read report: %w", err)
	}
	return ParseReport(data)
}
