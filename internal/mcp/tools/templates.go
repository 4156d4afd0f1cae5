package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Togather-Foundation/eventproxy/internal/domain/templates"
	"github.com/Togather-Foundation/eventproxy/internal/luma"
)

// TemplateTools exposes the template catalog and template-based creation.
type TemplateTools struct {
	catalog *templates.Catalog
	client  *luma.Client
}

func NewTemplateTools(catalog *templates.Catalog, client *luma.Client) *TemplateTools {
	return &TemplateTools{catalog: catalog, client: client}
}

func (t *TemplateTools) ListTemplatesTool() mcp.Tool {
	return mcp.NewTool("list_templates",
		mcp.WithDescription("List the event templates with their default duration, approval and virtual settings."),
	)
}

func (t *TemplateTools) ListTemplatesHandler(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t == nil || t.catalog == nil {
		return mcp.NewToolResultError("template catalog not configured"), nil
	}
	return toolResultJSON(t.catalog.List())
}

func (t *TemplateTools) CreateFromTemplateTool() mcp.Tool {
	typeOpts := []mcp.PropertyOption{mcp.Required(), mcp.Description("Template to apply")}
	if t != nil && t.catalog != nil {
		typeOpts = append(typeOpts, mcp.Enum(t.catalog.Types()...))
	}
	return mcp.NewTool("create_event_from_template",
		mcp.WithDescription("Create an event from a template. The end time is derived from the template duration."),
		mcp.WithString("template_type", typeOpts...),
		mcp.WithString("name", mcp.Required(), mcp.Description("Event name (1-200 characters)")),
		mcp.WithString("start_at", mcp.Required(), mcp.Description("Start time, e.g. 2026-03-01T18:00:00Z")),
		mcp.WithString("timezone", mcp.Required(), mcp.Description("IANA timezone")),
		mcp.WithString("meeting_url", mcp.Description("Meeting link, used by virtual templates")),
		mcp.WithString("place_id", mcp.Description("Google Places ID, used by in-person templates")),
		mcp.WithString("place_description", mcp.Description("Human readable venue description")),
	)
}

func (t *TemplateTools) CreateFromTemplateHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t == nil || t.catalog == nil || t.client == nil {
		return mcp.NewToolResultError("template tools not configured"), nil
	}
	var args struct {
		TemplateType     string `json:"template_type"`
		Name             string `json:"name"`
		StartAt          string `json:"start_at"`
		Timezone         string `json:"timezone"`
		MeetingURL       string `json:"meeting_url"`
		PlaceID          string `json:"place_id"`
		PlaceDescription string `json:"place_description"`
	}
	if err := bindArgs(request, &args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	tmpl, err := t.catalog.Get(templates.Type(strings.TrimSpace(args.TemplateType)))
	if errors.Is(err, templates.ErrTemplateNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown template %q; available: %s",
			args.TemplateType, strings.Join(t.catalog.Types(), ", "))), nil
	}
	if err != nil {
		return mcp.NewToolResultErrorFromErr("template lookup failed", err), nil
	}

	create, err := templates.Build(tmpl, templates.CreateFromTemplateRequest{
		TemplateType: tmpl.Type,
		Name:         args.Name,
		StartAt:      strings.TrimSpace(args.StartAt),
		Timezone:     args.Timezone,
		MeetingURL:   strings.TrimSpace(args.MeetingURL),
		GeoAddress:   geoFromPlace(args.PlaceID, args.PlaceDescription),
	})
	if err != nil {
		return toolError("create event from template", err), nil
	}

	event, err := t.client.CreateEvent(ctx, create)
	if err != nil {
		return toolError("create event from template", err), nil
	}
	return toolResultJSON(event)
}
