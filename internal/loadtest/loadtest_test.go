package loadtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateCurrentRPS(t *testing.T) {
	cfg := ProfileConfig{
		RequestsPerSecond: 10,
		Duration:          10 * time.Second,
		RampUpTime:        10 * time.Second,
		RampDownTime:      10 * time.Second,
	}

	assert.Equal(t, 1, calculateCurrentRPS(0, cfg))
	assert.Equal(t, 5, calculateCurrentRPS(5*time.Second, cfg))
	assert.Equal(t, 10, calculateCurrentRPS(15*time.Second, cfg))
	assert.Equal(t, 5, calculateCurrentRPS(25*time.Second, cfg))
	assert.Equal(t, 1, calculateCurrentRPS(40*time.Second, cfg))
}

func TestCalculatePercentile(t *testing.T) {
	times := []int64{50, 10, 40, 20, 30}
	assert.Equal(t, int64(30), calculatePercentile(times, 0.50))
	assert.Equal(t, int64(50), calculatePercentile(times, 0.99))
	assert.Equal(t, int64(0), calculatePercentile(nil, 0.95))
	assert.Equal(t, []int64{50, 10, 40, 20, 30}, times, "input must not be reordered")
}

func TestRunCustom_CountsThrottledSeparately(t *testing.T) {
	var n atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case n.Add(1)%2 == 0:
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		case r.Method == http.MethodPost:
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "webinar", body["template_type"])
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	stats, err := NewLoadTester(srv.URL, nil).RunCustom(context.Background(), ProfileConfig{
		RequestsPerSecond: 50,
		Duration:          300 * time.Millisecond,
		ReadWriteRatio:    0.5,
	})
	require.NoError(t, err)

	require.Positive(t, stats.Total())
	assert.Equal(t, stats.Total(), stats.Succeeded()+stats.Throttled()+stats.Failed())
	assert.Positive(t, stats.Throttled())
	assert.Zero(t, stats.Failed())

	report := stats.Report()
	assert.Contains(t, report, "Throttled (429)")
	assert.Contains(t, report, "429: ")
}

func TestRunCustom_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewLoadTester(srv.URL, nil).RunCustom(ctx, ProfileConfig{
		RequestsPerSecond: 5,
		Duration:          time.Hour,
		ReadWriteRatio:    1,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_Validation(t *testing.T) {
	lt := NewLoadTester("http://localhost:0", nil)

	_, err := lt.Run(context.Background(), "nope")
	assert.ErrorContains(t, err, "unknown profile")

	_, err = lt.RunCustom(context.Background(), ProfileConfig{RequestsPerSecond: 0})
	assert.Error(t, err)

	_, err = lt.RunCustom(context.Background(), ProfileConfig{RequestsPerSecond: 1, ReadWriteRatio: 1.5})
	assert.Error(t, err)
}

func TestRecordError_TransportFailures(t *testing.T) {
	stats, err := NewLoadTester("http://127.0.0.1:1", nil).RunCustom(context.Background(), ProfileConfig{
		RequestsPerSecond: 20,
		Duration:          200 * time.Millisecond,
		ReadWriteRatio:    1,
	})
	require.NoError(t, err)
	require.Positive(t, stats.Total())
	assert.Equal(t, stats.Total(), stats.Failed())
	assert.Contains(t, stats.Report(), "transport: ")
}
