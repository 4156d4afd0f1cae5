package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Togather-Foundation/eventproxy/internal/luma"
)

type eventsOptions struct {
	limit     int
	offset    int
	serverURL string
	format    string
	timeout   time.Duration
}

func newEventsCommand() *cobra.Command {
	opts := &eventsOptions{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List events through a running proxy",
		Long: `List events by calling GET /events on a running proxy.

Examples:
  # First page as a table
  eventproxy events

  # Second page of 20, as JSON
  eventproxy events --limit 20 --offset 20 --format json

  # Query another proxy
  eventproxy events --server http://proxy.internal:8000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsQuery(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "number of events to retrieve (1-100)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "number of events to skip")
	cmd.Flags().StringVar(&opts.serverURL, "server", "http://localhost:8000", "proxy URL")
	cmd.Flags().StringVar(&opts.format, "format", "table", "output format (table, json)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	return cmd
}

func runEventsQuery(ctx context.Context, out io.Writer, opts *eventsOptions) error {
	if opts.format != "table" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (must be table or json)", opts.format)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.limit))
	q.Set("offset", strconv.Itoa(opts.offset))
	endpoint := strings.TrimRight(opts.serverURL, "/") + "/events?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page luma.EventList
	if err := json.Unmarshal(body, &page); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}

	if len(page.Events) == 0 {
		fmt.Fprintln(out, "No events found.")
		return nil
	}
	fmt.Fprint(out, renderEventTable(page))
	return nil
}

func renderEventTable(page luma.EventList) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Name", "Start", "Timezone", "Where"})
	for _, e := range page.Events {
		t.AppendRow(table.Row{e.ID, e.Name, e.StartAt, e.Timezone, where(e)})
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d-%d of %d",
		page.Offset+1, page.Offset+len(page.Events), page.Total)})
	return t.Render() + "\n"
}

func where(e luma.Event) string {
	switch {
	case e.MeetingURL != "":
		return e.MeetingURL
	case e.GeoAddress != nil && e.GeoAddress.Description != "":
		return e.GeoAddress.Description
	case e.GeoAddress != nil:
		return e.GeoAddress.PlaceID
	}
	return "-"
}
