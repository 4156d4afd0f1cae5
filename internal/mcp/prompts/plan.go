// Package prompts holds MCP prompt templates for event planning.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Togather-Foundation/eventproxy/internal/domain/templates"
)

const planEventPrompt = "plan_event"

type PromptTemplates struct {
	catalog *templates.Catalog
}

func NewPromptTemplates(catalog *templates.Catalog) *PromptTemplates {
	if catalog == nil {
		catalog = templates.Default()
	}
	return &PromptTemplates{catalog: catalog}
}

func (p *PromptTemplates) PlanEventPrompt() mcp.Prompt {
	return mcp.NewPrompt(
		planEventPrompt,
		mcp.WithPromptDescription("Turn a free-form event idea into a create_event_from_template call"),
		mcp.WithArgument("description", mcp.ArgumentDescription("What the event is about"), mcp.RequiredArgument()),
		mcp.WithArgument("date", mcp.ArgumentDescription("Proposed date and time, any format")),
		mcp.WithArgument("timezone", mcp.ArgumentDescription("IANA timezone (e.g. America/Toronto)")),
	)
}

func (p *PromptTemplates) PlanEventHandler(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := request.Params.Arguments
	description := strings.TrimSpace(args["description"])
	date := strings.TrimSpace(args["date"])
	if date == "" {
		date = "not given; ask the user"
	}
	timezone := strings.TrimSpace(args["timezone"])
	if timezone == "" {
		timezone = "UTC"
	}

	var b strings.Builder
	for _, t := range p.catalog.List() {
		fmt.Fprintf(&b, "- %s: %s (%dh", t.Type, t.Description, t.DefaultDurationHours)
		if t.IsVirtual {
			b.WriteString(", virtual")
		}
		if t.RequireRSVPApproval {
			b.WriteString(", approval required")
		}
		b.WriteString(")\n")
	}

	text := fmt.Sprintf("Plan an event from the description below. Pick the best matching template, "+
		"convert the date to ISO 8601 in timezone %s, and call create_event_from_template. "+
		"Virtual templates need a meeting_url; in-person templates need a place_id.\n\n"+
		"Templates:\n%s\nDescription: %s\nDate: %s", timezone, b.String(), description, date)

	return &mcp.GetPromptResult{
		Description: "Plan an event using a template",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(text),
			},
		},
	}, nil
}
