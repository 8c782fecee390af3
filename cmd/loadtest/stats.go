package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Sample is the outcome of one search request.
type Sample struct {
	Latency  time.Duration
	Status   int
	Err      error
	CacheHit bool
	Empty    bool
	Degraded bool
	Aborted  bool
}

// Stats is safe for concurrent Record calls.
type Stats struct {
	mu       sync.Mutex
	total    int64
	success  int64
	errors   int64
	empty    int64
	degraded int64
	hits     []time.Duration
	misses   []time.Duration
	status   map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		hits:   make([]time.Duration, 0, 1024),
		misses: make([]time.Duration, 0, 1024),
		status: make(map[int]int64),
	}
}

func (s *Stats) Record(sample Sample) {
	if sample.Aborted {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if sample.Status != 0 {
		s.status[sample.Status]++
	}
	if sample.Err != nil || sample.Status < 200 || sample.Status >= 300 {
		s.errors++
		return
	}
	s.success++
	if sample.Empty {
		s.empty++
	}
	if sample.Degraded {
		s.degraded++
	}
	if sample.CacheHit {
		s.hits = append(s.hits, sample.Latency)
	} else {
		s.misses = append(s.misses, sample.Latency)
	}
}

// Report prints the summary and reports whether any request completed.
func (s *Stats) Report(w io.Writer, elapsed time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", s.total)
	fmt.Fprintf(w, "Successful:      %d\n", s.success)
	fmt.Fprintf(w, "Errors:          %d\n", s.errors)
	if s.total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", ratio(s.errors, s.total))
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(s.total)/elapsed.Seconds())
	}
	if s.success > 0 {
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", ratio(int64(len(s.hits)), s.success))
		fmt.Fprintf(w, "Zero Results:    %.2f%%\n", ratio(s.empty, s.success))
		fmt.Fprintf(w, "Degraded:        %.2f%%\n", ratio(s.degraded, s.success))
	}

	all := slices.Concat(s.hits, s.misses)
	printLatency(w, "Latency", all)
	printLatency(w, "Latency (cache hit)", s.hits)
	printLatency(w, "Latency (cache miss)", s.misses)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := lo.Keys(s.status)
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.status[code])
	}
	return s.total > 0
}

func printLatency(w io.Writer, title string, samples []time.Duration) {
	if len(samples) == 0 {
		return
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	avg := lo.Sum(sorted) / time.Duration(len(sorted))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "=== %s ===\n", title)
	fmt.Fprintf(w, "Min:    %s\n", sorted[0])
	fmt.Fprintf(w, "Avg:    %s\n", avg)
	for _, p := range []float64{50, 90, 95, 99} {
		fmt.Fprintf(w, "P%-7g%s\n", p, percentile(sorted, p))
	}
	fmt.Fprintf(w, "Max:    %s\n", sorted[len(sorted)-1])
	fmt.Fprintf(w, "StdDev: %s\n", stddev(sorted, avg))
}

func ratio(n, total int64) float64 {
	return float64(n) / float64(total) * 100
}

func stddev(samples []time.Duration, avg time.Duration) time.Duration {
	var sum float64
	for _, l := range samples {
		d := float64(l - avg)
		sum += d * d
	}
	return time.Duration(math.Sqrt(sum / float64(len(samples))))
}

// percentile uses the nearest-rank method on a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}
