package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

var defaultQueries = []string{
	"морген cadillac",
	"eminem lose yourself",
	"кино группа крови",
	"blinding lights",
	"shape of you",
	"скачать моргенштерн",
	"daft punk get lucky",
	"rammstein sonne",
	"земфира хочешь",
	"billie eilish bad guy",
	"linkin park numb",
	"miyagi minor",
	"the weeknd save your tears",
	"король и шут лесник",
	"arctic monkeys 505",
}

type Config struct {
	BaseURL     string
	Sources     []string
	Limit       int
	Concurrency int
	Duration    time.Duration
	Queries     []string
}

// searchResponse is the part of the search API body the report needs.
type searchResponse struct {
	Results     []json.RawMessage `json:"results"`
	Calls       int               `json:"calls"`
	FailedCalls int               `json:"failed_calls"`
	CacheHit    bool              `json:"cache_hit"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search API")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	source := flag.String("source", "all", "all, soundcloud, youtube, or a comma list rotated per request")
	limit := flag.Int("limit", 10, "results per search")
	queryFile := flag.String("queries", "", "file with one query per line (default: built-in music queries)")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		loaded, err := loadQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
			os.Exit(1)
		}
		queries = loaded
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Sources:     strings.Split(*source, ","),
		Limit:       *limit,
		Concurrency: max(*concurrency, 1),
		Duration:    *duration,
		Queries:     queries,
	}

	fmt.Println("=== Music Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Sources:     %s\n", strings.Join(cfg.Sources, ", "))
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := run(cfg)
	if !stats.Report(os.Stdout, cfg.Duration) {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the search API running?")
		os.Exit(1)
	}
}

func loadQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			out = append(out, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s has no queries", path)
	}
	return out, nil
}

// searchURL picks the query and source for the n-th request of a worker.
func searchURL(cfg Config, n int) string {
	params := url.Values{
		"q":      {cfg.Queries[n%len(cfg.Queries)]},
		"source": {strings.TrimSpace(cfg.Sources[n%len(cfg.Sources)])},
		"limit":  {fmt.Sprint(cfg.Limit)},
	}
	return cfg.BaseURL + "/api/v1/search?" + params.Encode()
}

func run(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	fmt.Print("Running")
	var g errgroup.Group
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for n := w; ctx.Err() == nil; n += cfg.Concurrency {
				stats.Record(doSearch(ctx, client, searchURL(cfg, n)))
			}
			return nil
		})
	}
	_ = g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func doSearch(ctx context.Context, client *http.Client, rawURL string) Sample {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Sample{Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		// Requests cut off by the end of the run are not failures.
		if ctx.Err() != nil {
			return Sample{Aborted: true}
		}
		return Sample{Latency: time.Since(start), Err: err}
	}
	defer resp.Body.Close()

	s := Sample{Status: resp.StatusCode}
	if resp.StatusCode == http.StatusOK {
		var body searchResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			s.Err = fmt.Errorf("decoding response: %w", err)
		} else {
			s.CacheHit = body.CacheHit
			s.Empty = len(body.Results) == 0
			s.Degraded = body.Calls > 0 && body.FailedCalls == body.Calls
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	s.Latency = time.Since(start)
	return s
}
