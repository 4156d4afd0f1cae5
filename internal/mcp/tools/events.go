package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Togather-Foundation/eventproxy/internal/luma"
)

// EventTools exposes event operations as MCP tools.
type EventTools struct {
	client *luma.Client
}

func NewEventTools(client *luma.Client) *EventTools {
	return &EventTools{client: client}
}

func (t *EventTools) ListEventsTool() mcp.Tool {
	return mcp.NewTool("list_events",
		mcp.WithDescription("List events on the calendar. Returns a JSON page of events with total, limit and offset."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of events to return (default 50, max 100)")),
		mcp.WithNumber("offset", mcp.Description("Number of events to skip")),
	)
}

func (t *EventTools) ListEventsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t == nil || t.client == nil {
		return mcp.NewToolResultError("event client not configured"), nil
	}
	var args struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	if err := bindArgs(request, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	list, err := t.client.ListEvents(ctx, luma.ListOptions{Limit: args.Limit, Offset: args.Offset})
	if err != nil {
		return toolError("list events", err), nil
	}
	return toolResultJSON(list)
}

func (t *EventTools) GetEventTool() mcp.Tool {
	return mcp.NewTool("get_event",
		mcp.WithDescription("Fetch a single event by ID."),
		mcp.WithString("event_id", mcp.Required(), mcp.Description("Event ID")),
	)
}

func (t *EventTools) GetEventHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t == nil || t.client == nil {
		return mcp.NewToolResultError("event client not configured"), nil
	}
	var args struct {
		EventID string `json:"event_id"`
	}
	if err := bindArgs(request, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	event, err := t.client.GetEvent(ctx, strings.TrimSpace(args.EventID))
	if err != nil {
		return toolError("get event", err), nil
	}
	return toolResultJSON(event)
}

func (t *EventTools) CreateEventTool() mcp.Tool {
	return mcp.NewTool("create_event",
		mcp.WithDescription("Create an event. Times are ISO 8601; an in-person event takes a Google Places ID, a virtual one a meeting URL."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Event name (1-200 characters)")),
		mcp.WithString("start_at", mcp.Required(), mcp.Description("Start time, e.g. 2026-03-01T18:00:00Z")),
		mcp.WithString("timezone", mcp.Required(), mcp.Description("IANA timezone, e.g. America/Toronto")),
		mcp.WithString("end_at", mcp.Description("End time; must not be before start_at")),
		mcp.WithString("meeting_url", mcp.Description("Meeting link for virtual events")),
		mcp.WithString("place_id", mcp.Description("Google Places ID for in-person events")),
		mcp.WithString("place_description", mcp.Description("Human readable venue description")),
		mcp.WithBoolean("require_rsvp_approval", mcp.Description("Whether registrations need host approval")),
	)
}

func (t *EventTools) CreateEventHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t == nil || t.client == nil {
		return mcp.NewToolResultError("event client not configured"), nil
	}
	var args struct {
		Name                string `json:"name"`
		StartAt             string `json:"start_at"`
		Timezone            string `json:"timezone"`
		EndAt               string `json:"end_at"`
		MeetingURL          string `json:"meeting_url"`
		PlaceID             string `json:"place_id"`
		PlaceDescription    string `json:"place_description"`
		RequireRSVPApproval bool   `json:"require_rsvp_approval"`
	}
	if err := bindArgs(request, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	event, err := t.client.CreateEvent(ctx, luma.EventCreateRequest{
		Name:                args.Name,
		StartAt:             strings.TrimSpace(args.StartAt),
		Timezone:            args.Timezone,
		EndAt:               strings.TrimSpace(args.EndAt),
		RequireRSVPApproval: args.RequireRSVPApproval,
		MeetingURL:          strings.TrimSpace(args.MeetingURL),
		GeoAddress:          geoFromPlace(args.PlaceID, args.PlaceDescription),
	})
	if err != nil {
		return toolError("create event", err), nil
	}
	return toolResultJSON(event)
}

func (t *EventTools) UpdateEventTool() mcp.Tool {
	return mcp.NewTool("update_event",
		mcp.WithDescription("Update fields of an existing event. Only the fields given are changed."),
		mcp.WithString("event_id", mcp.Required(), mcp.Description("Event ID")),
		mcp.WithString("name", mcp.Description("New event name")),
		mcp.WithString("start_at", mcp.Description("New start time")),
		mcp.WithString("timezone", mcp.Description("New IANA timezone")),
		mcp.WithString("end_at", mcp.Description("New end time")),
		mcp.WithString("meeting_url", mcp.Description("New meeting link")),
		mcp.WithString("place_id", mcp.Description("New Google Places ID")),
		mcp.WithString("place_description", mcp.Description("New venue description")),
		mcp.WithBoolean("require_rsvp_approval", mcp.Description("Whether registrations need host approval")),
	)
}

func (t *EventTools) UpdateEventHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t == nil || t.client == nil {
		return mcp.NewToolResultError("event client not configured"), nil
	}
	var args struct {
		EventID             string  `json:"event_id"`
		Name                *string `json:"name"`
		StartAt             *string `json:"start_at"`
		Timezone            *string `json:"timezone"`
		EndAt               *string `json:"end_at"`
		MeetingURL          *string `json:"meeting_url"`
		PlaceID             string  `json:"place_id"`
		PlaceDescription    string  `json:"place_description"`
		RequireRSVPApproval *bool   `json:"require_rsvp_approval"`
	}
	if err := bindArgs(request, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	event, err := t.client.UpdateEvent(ctx, strings.TrimSpace(args.EventID), luma.EventUpdateRequest{
		Name:                args.Name,
		StartAt:             args.StartAt,
		Timezone:            args.Timezone,
		EndAt:               args.EndAt,
		RequireRSVPApproval: args.RequireRSVPApproval,
		MeetingURL:          args.MeetingURL,
		GeoAddress:          geoFromPlace(args.PlaceID, args.PlaceDescription),
	})
	if err != nil {
		return toolError("update event", err), nil
	}
	return toolResultJSON(event)
}

func (t *EventTools) DeleteEventTool() mcp.Tool {
	return mcp.NewTool("delete_event",
		mcp.WithDescription("Delete an event by ID. This cannot be undone."),
		mcp.WithString("event_id", mcp.Required(), mcp.Description("Event ID")),
	)
}

func (t *EventTools) DeleteEventHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t == nil || t.client == nil {
		return mcp.NewToolResultError("event client not configured"), nil
	}
	var args struct {
		EventID string `json:"event_id"`
	}
	if err := bindArgs(request, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	id := strings.TrimSpace(args.EventID)
	if err := t.client.DeleteEvent(ctx, id); err != nil {
		return toolError("delete event", err), nil
	}
	return toolResultJSON(map[string]any{"deleted": true, "event_id": id})
}
