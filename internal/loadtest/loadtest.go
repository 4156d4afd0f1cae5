// Package loadtest drives synthetic traffic through a running proxy to check
// how its rate limiting and retry behavior holds up under load.
package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

type LoadProfile string

const (
	ProfileLight  LoadProfile = "light"  // 2 req/s, 1 minute
	ProfileMedium LoadProfile = "medium" // 5 req/s, 5 minutes
	ProfileBurst  LoadProfile = "burst"  // 20 req/s with no ramp, 1 minute
	ProfileWindow LoadProfile = "window" // 2 req/s for a full 5 minute upstream window
)

// ProfileConfig defines the parameters for a load test.
type ProfileConfig struct {
	RequestsPerSecond int
	Duration          time.Duration
	RampUpTime        time.Duration
	RampDownTime      time.Duration
	// ReadWriteRatio of 1 sends reads only. Writes create real events
	// upstream.
	ReadWriteRatio float64
}

var LoadProfiles = map[LoadProfile]ProfileConfig{
	ProfileLight: {
		RequestsPerSecond: 2,
		Duration:          time.Minute,
		RampUpTime:        10 * time.Second,
		RampDownTime:      10 * time.Second,
		ReadWriteRatio:    1,
	},
	ProfileMedium: {
		RequestsPerSecond: 5,
		Duration:          5 * time.Minute,
		RampUpTime:        30 * time.Second,
		RampDownTime:      30 * time.Second,
		ReadWriteRatio:    1,
	},
	ProfileBurst: {
		RequestsPerSecond: 20,
		Duration:          time.Minute,
		ReadWriteRatio:    1,
	},
	ProfileWindow: {
		RequestsPerSecond: 2,
		Duration:          5 * time.Minute,
		ReadWriteRatio:    1,
	},
}

// LoadTester sends a paced stream of requests at one proxy.
type LoadTester struct {
	baseURL    string
	httpClient *http.Client
	out        io.Writer
	rng        *rand.Rand
	rngMu      sync.Mutex
	stats      *Statistics
}

func NewLoadTester(baseURL string, out io.Writer) *LoadTester {
	if out == nil {
		out = io.Discard
	}
	return &LoadTester{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		out:        out,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithHTTPClient replaces the default client. The proxy may hold a request
// for a whole throttle wait, so the timeout should cover that.
func (lt *LoadTester) WithHTTPClient(c *http.Client) *LoadTester {
	lt.httpClient = c
	return lt
}

// Statistics tracks load test metrics.
type Statistics struct {
	mu sync.Mutex

	totalRequests     int64
	successRequests   int64
	throttledRequests int64
	failedRequests    int64

	responseTimes []int64 // ms
	errors        map[int]int64
	endpointStats map[string]*EndpointStats

	startTime time.Time
	endTime   time.Time
}

type EndpointStats struct {
	count     int64
	total     int64
	times     []int64
	errors    int64
	throttled int64
	minTime   int64
	maxTime   int64
}

func (s *Statistics) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalRequests
}

func (s *Statistics) Succeeded() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successRequests
}

// Throttled counts 429 responses, whether from the inbound limiter or an
// exhausted upstream budget.
func (s *Statistics) Throttled() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.throttledRequests
}

func (s *Statistics) Failed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedRequests
}

func (lt *LoadTester) Run(ctx context.Context, profile LoadProfile) (*Statistics, error) {
	config, exists := LoadProfiles[profile]
	if !exists {
		return nil, fmt.Errorf("unknown profile: %s", profile)
	}
	return lt.RunCustom(ctx, config)
}

func (lt *LoadTester) RunCustom(ctx context.Context, config ProfileConfig) (*Statistics, error) {
	if config.RequestsPerSecond < 1 {
		return nil, fmt.Errorf("requests per second must be at least 1, got %d", config.RequestsPerSecond)
	}
	if config.ReadWriteRatio < 0 || config.ReadWriteRatio > 1 {
		return nil, fmt.Errorf("read/write ratio must be between 0 and 1, got %.2f", config.ReadWriteRatio)
	}

	lt.stats = &Statistics{
		errors:        make(map[int]int64),
		endpointStats: make(map[string]*EndpointStats),
		startTime:     time.Now(),
	}

	fmt.Fprintf(lt.out, "Starting load test...\n")
	fmt.Fprintf(lt.out, "  Target: %s\n", lt.baseURL)
	fmt.Fprintf(lt.out, "  RPS: %d\n", config.RequestsPerSecond)
	fmt.Fprintf(lt.out, "  Duration: %s\n", config.Duration)
	fmt.Fprintf(lt.out, "  Ramp-up: %s, Ramp-down: %s\n", config.RampUpTime, config.RampDownTime)
	fmt.Fprintf(lt.out, "  Read/Write ratio: %.0f%%/%.0f%%\n\n", config.ReadWriteRatio*100, (1-config.ReadWriteRatio)*100)

	// Throttled requests park inside the proxy, so keep plenty of workers.
	workers := max(config.RequestsPerSecond*4, 10)
	workChan := make(chan workItem, workers*2)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lt.worker(ctx, workChan)
		}()
	}

	go func() {
		defer close(workChan)
		lt.generateWork(ctx, config, workChan)
	}()

	wg.Wait()
	lt.stats.endTime = time.Now()
	return lt.stats, nil
}

type workItem struct {
	method   string
	path     string
	body     any
	endpoint string
}

func (lt *LoadTester) generateWork(ctx context.Context, config ProfileConfig, workChan chan<- workItem) {
	startTime := time.Now()
	totalDuration := config.RampUpTime + config.Duration + config.RampDownTime

	currentRPS := config.RequestsPerSecond
	if config.RampUpTime > 0 {
		currentRPS = 1
	}
	ticker := time.NewTicker(time.Second / time.Duration(currentRPS))
	defer ticker.Stop()
	lastRPS := currentRPS

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(startTime)
			if elapsed > totalDuration {
				return
			}

			currentRPS = calculateCurrentRPS(elapsed, config)
			if currentRPS != lastRPS {
				ticker.Reset(time.Second / time.Duration(currentRPS))
				lastRPS = currentRPS
			}

			var item workItem
			if lt.randFloat() < config.ReadWriteRatio {
				item = lt.generateReadRequest()
			} else {
				item = lt.generateWriteRequest()
			}
			select {
			case workChan <- item:
			case <-ctx.Done():
				return
			}
		}
	}
}

func calculateCurrentRPS(elapsed time.Duration, config ProfileConfig) int {
	target := config.RequestsPerSecond

	if elapsed < config.RampUpTime {
		progress := float64(elapsed) / float64(config.RampUpTime)
		return max(int(float64(target)*progress), 1)
	}

	steadyEnd := config.RampUpTime + config.Duration
	if elapsed < steadyEnd {
		return target
	}

	down := elapsed - steadyEnd
	if down < config.RampDownTime {
		progress := float64(down) / float64(config.RampDownTime)
		return max(int(float64(target)*(1.0-progress)), 1)
	}
	return 1
}

func (lt *LoadTester) randFloat() float64 {
	lt.rngMu.Lock()
	defer lt.rngMu.Unlock()
	return lt.rng.Float64()
}

func (lt *LoadTester) randIntn(n int) int {
	lt.rngMu.Lock()
	defer lt.rngMu.Unlock()
	return lt.rng.Intn(n)
}

var readOperations = []workItem{
	{method: http.MethodGet, path: "/events?limit=10", endpoint: "list_events"},
	{method: http.MethodGet, path: "/events?limit=50&offset=50", endpoint: "list_events_page"},
	{method: http.MethodGet, path: "/templates", endpoint: "list_templates"},
	{method: http.MethodGet, path: "/ratelimit", endpoint: "ratelimit"},
	{method: http.MethodGet, path: "/health", endpoint: "health"},
}

func (lt *LoadTester) generateReadRequest() workItem {
	return readOperations[lt.randIntn(len(readOperations))]
}

func (lt *LoadTester) generateWriteRequest() workItem {
	start := time.Now().Add(time.Duration(7+lt.randIntn(60)) * 24 * time.Hour).UTC().Truncate(time.Hour)
	return workItem{
		method: http.MethodPost,
		path:   "/templates/create",
		body: map[string]any{
			"template_type": "webinar",
			"name":          fmt.Sprintf("Load test webinar %d", lt.randIntn(1_000_000)),
			"start_at":      start.Format(time.RFC3339),
			"timezone":      "UTC",
			"meeting_url":   "https://meet.example.com/loadtest",
		},
		endpoint: "create_from_template",
	}
}

func (lt *LoadTester) worker(ctx context.Context, workChan <-chan workItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-workChan:
			if !ok {
				return
			}
			lt.executeRequest(ctx, work)
		}
	}
}

func (lt *LoadTester) executeRequest(ctx context.Context, work workItem) {
	start := time.Now()

	var reqBody io.Reader
	if work.body != nil {
		data, err := json.Marshal(work.body)
		if err != nil {
			lt.recordError(work.endpoint)
			return
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, work.method, lt.baseURL+work.path, reqBody)
	if err != nil {
		lt.recordError(work.endpoint)
		return
	}
	req.Header.Set("Accept", "application/json")
	if work.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := lt.httpClient.Do(req)
	if err != nil {
		lt.recordError(work.endpoint)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	lt.recordResponse(resp.StatusCode, time.Since(start).Milliseconds(), work.endpoint)
}

func (lt *LoadTester) recordResponse(statusCode int, durationMs int64, endpoint string) {
	s := lt.stats
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	s.responseTimes = append(s.responseTimes, durationMs)

	ep := s.endpointStats[endpoint]
	if ep == nil {
		ep = &EndpointStats{minTime: durationMs, maxTime: durationMs}
		s.endpointStats[endpoint] = ep
	}
	ep.count++
	ep.total += durationMs
	ep.times = append(ep.times, durationMs)
	ep.minTime = min(ep.minTime, durationMs)
	ep.maxTime = max(ep.maxTime, durationMs)

	switch {
	case statusCode >= 200 && statusCode < 300:
		s.successRequests++
	case statusCode == http.StatusTooManyRequests:
		s.throttledRequests++
		s.errors[statusCode]++
		ep.throttled++
	default:
		s.failedRequests++
		s.errors[statusCode]++
		ep.errors++
	}
}

// recordError counts a request that never got a response. Status 0 marks
// transport failures in the error breakdown.
func (lt *LoadTester) recordError(endpoint string) {
	s := lt.stats
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	s.failedRequests++
	s.errors[0]++

	ep := s.endpointStats[endpoint]
	if ep == nil {
		ep = &EndpointStats{}
		s.endpointStats[endpoint] = ep
	}
	ep.errors++
}

// Report renders a summary of the run.
func (s *Statistics) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	duration := s.endTime.Sub(s.startTime)
	total := s.totalRequests
	pct := func(n int64) float64 {
		if total == 0 {
			return 0
		}
		return float64(n) / float64(total) * 100
	}

	var report strings.Builder
	report.WriteString("\nLOAD TEST RESULTS\n\n")
	fmt.Fprintf(&report, "Duration:        %s\n", duration.Round(time.Second))
	fmt.Fprintf(&report, "Total Requests:  %d\n", total)
	fmt.Fprintf(&report, "Successful:      %d (%.1f%%)\n", s.successRequests, pct(s.successRequests))
	fmt.Fprintf(&report, "Throttled (429): %d (%.1f%%)\n", s.throttledRequests, pct(s.throttledRequests))
	fmt.Fprintf(&report, "Failed:          %d (%.1f%%)\n", s.failedRequests, pct(s.failedRequests))
	if duration > 0 {
		fmt.Fprintf(&report, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	report.WriteString("\n")

	if len(s.responseTimes) > 0 {
		fmt.Fprintf(&report, "Response Times (ms):\n")
		fmt.Fprintf(&report, "  Average:  %d\n", average(s.responseTimes))
		fmt.Fprintf(&report, "  p50:      %d\n", calculatePercentile(s.responseTimes, 0.50))
		fmt.Fprintf(&report, "  p95:      %d\n", calculatePercentile(s.responseTimes, 0.95))
		fmt.Fprintf(&report, "  p99:      %d\n\n", calculatePercentile(s.responseTimes, 0.99))
	}

	if len(s.errors) > 0 {
		codes := make([]int, 0, len(s.errors))
		for code := range s.errors {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		report.WriteString("Errors by Status Code:\n")
		for _, code := range codes {
			label := fmt.Sprint(code)
			if code == 0 {
				label = "transport"
			}
			fmt.Fprintf(&report, "  %s: %d\n", label, s.errors[code])
		}
		report.WriteString("\n")
	}

	if len(s.endpointStats) > 0 {
		names := make([]string, 0, len(s.endpointStats))
		for name := range s.endpointStats {
			names = append(names, name)
		}
		slices.Sort(names)

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Endpoint", "Count", "Avg(ms)", "p95(ms)", "Min", "Max", "429", "Errors"})
		for _, name := range names {
			ep := s.endpointStats[name]
			var avg int64
			if ep.count > 0 {
				avg = ep.total / ep.count
			}
			t.AppendRow(table.Row{name, ep.count, avg, calculatePercentile(ep.times, 0.95),
				ep.minTime, ep.maxTime, ep.throttled, ep.errors})
		}
		report.WriteString(t.Render())
		report.WriteString("\n")
	}
	return report.String()
}

func average(times []int64) int64 {
	if len(times) == 0 {
		return 0
	}
	var sum int64
	for _, t := range times {
		sum += t
	}
	return sum / int64(len(times))
}

func calculatePercentile(times []int64, percentile float64) int64 {
	if len(times) == 0 {
		return 0
	}
	sorted := slices.Clone(times)
	slices.Sort(sorted)

	index := int(float64(len(sorted)) * percentile)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
