package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/eventproxy/internal/domain/templates"
)

func eventsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "4", r.URL.Query().Get("offset"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunEventsQuery_Table(t *testing.T) {
	srv := eventsServer(t, http.StatusOK, `{"events":[
		{"id":"evt-1","name":"Go Night","start_at":"2026-03-01T18:00:00Z","timezone":"UTC","meeting_url":"https://meet.example.com/go"},
		{"id":"evt-2","name":"Picnic","start_at":"2026-03-02T12:00:00Z","timezone":"UTC","geo_address_json":{"place_id":"p1","description":"High Park"}}
	],"total":9,"limit":2,"offset":4}`)

	var out bytes.Buffer
	err := runEventsQuery(context.Background(), &out, &eventsOptions{limit: 2, offset: 4, serverURL: srv.URL + "/", format: "table", timeout: time.Second})
	require.NoError(t, err)
	for _, want := range []string{"evt-1", "Go Night", "https://meet.example.com/go", "High Park", "5-6 OF 9"} {
		assert.Contains(t, out.String(), want)
	}
}

func TestRunEventsQuery_JSON(t *testing.T) {
	srv := eventsServer(t, http.StatusOK, `{"events":[{"id":"evt-1","name":"Go Night"}],"total":1,"limit":2,"offset":4}`)

	var out bytes.Buffer
	err := runEventsQuery(context.Background(), &out, &eventsOptions{limit: 2, offset: 4, serverURL: srv.URL, format: "json", timeout: time.Second})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"id": "evt-1"`)
}

func TestRunEventsQuery_Errors(t *testing.T) {
	srv := eventsServer(t, http.StatusTooManyRequests, `{"title":"Too many requests"}`)

	err := runEventsQuery(context.Background(), new(bytes.Buffer), &eventsOptions{limit: 2, offset: 4, serverURL: srv.URL, format: "table", timeout: time.Second})
	assert.ErrorContains(t, err, "server returned error 429")

	err = runEventsQuery(context.Background(), new(bytes.Buffer), &eventsOptions{format: "yaml"})
	assert.ErrorContains(t, err, "unknown format")
}

func TestRunEventsQuery_Empty(t *testing.T) {
	srv := eventsServer(t, http.StatusOK, `{"events":[],"total":0,"limit":2,"offset":4}`)

	var out bytes.Buffer
	require.NoError(t, runEventsQuery(context.Background(), &out, &eventsOptions{limit: 2, offset: 4, serverURL: srv.URL, format: "table", timeout: time.Second}))
	assert.Equal(t, "No events found.\n", out.String())
}

func TestPrintTemplates(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printTemplates(&out, templates.Default(), "table"))
	for _, want := range []string{"meetup", "social_gathering", "Webinar", "yes"} {
		assert.Contains(t, out.String(), want)
	}

	out.Reset()
	require.NoError(t, printTemplates(&out, templates.Default(), "json"))
	assert.Contains(t, out.String(), `"default_duration_hours": 8`)

	assert.Error(t, printTemplates(&out, templates.Default(), "xml"))
}

func TestTemplatesCommand_File(t *testing.T) {
	t.Setenv("TEMPLATES_FILE", "")
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`templates:
  - type: hackathon
    name: Hackathon
    description: Build something in a day
    default_duration_hours: 24
`), 0o600))

	cmd := newTemplatesCommand(&globalFlags{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--file", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "hackathon")
	assert.Contains(t, out.String(), "meetup")
}

func TestLoadtestCommand_Custom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cmd := newLoadtestCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--url", srv.URL, "--rps", "20", "--duration", "200ms", "--no-ramp"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Running custom load test configuration")
	assert.Contains(t, out.String(), "LOAD TEST RESULTS")
}
