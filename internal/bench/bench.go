// Package bench provides benchmarking primitives for the simscore bench command.
package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing of a single Score call.
type RunResult struct {
	Index    int
	Cold     bool // true for the first run (cold-start)
	Duration time.Duration
	Pairs    int64 // batch * len_1 * len_2
	Rate     float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		mn = min(mn, d)
		mx = max(mx, d)
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// PairsPerSecond returns pairs / elapsed seconds, or 0 for a non-positive
// duration.
func PairsPerSecond(pairs int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(pairs) / elapsed.Seconds()
}

// MeanRate averages Rate over the warm runs; with a single run it uses
// that run.
func MeanRate(runs []RunResult) float64 {
	var (
		total float64
		n     int
	)
	for _, r := range runs {
		if r.Cold && len(runs) > 1 {
			continue
		}
		total += r.Rate
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// CheckRateThreshold returns an error if meanRate < threshold.
// A threshold of 0 disables the gate.
func CheckRateThreshold(meanRate, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRate < threshold {
		return fmt.Errorf("mean rate %.0f pairs/s is below threshold %.0f", meanRate, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %14s\n", "Run", "Cold", "MS", "Pairs", "Pairs/s")
	fmt.Fprintln(sb, strings.Repeat("-", 54))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.3f  %12d  %14.0f\n",
			r.Index+1,
			cold,
			durationMS(r.Duration),
			r.Pairs,
			r.Rate,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 54))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (min)\n", "", "", durationMS(stats.Min))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (mean)\n", "", "", durationMS(stats.Mean))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (max)\n", "", "", durationMS(stats.Max))

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	Pairs      int64   `json:"pairs"`
	Rate       float64 `json:"pairs_per_second"`
}

type jsonStats struct {
	MinMS  float64 `json:"min_ms"`
	MeanMS float64 `json:"mean_ms"`
	MaxMS  float64 `json:"max_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:  durationMS(stats.Min),
			MeanMS: durationMS(stats.Mean),
			MaxMS:  durationMS(stats.Max),
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: durationMS(r.Duration),
			Pairs:      r.Pairs,
			Rate:       r.Rate,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
