package prompts

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/eventproxy/internal/domain/templates"
)

func TestPlanEventPrompt(t *testing.T) {
	prompt := NewPromptTemplates(nil).PlanEventPrompt()
	assert.Equal(t, planEventPrompt, prompt.Name)
	require.Len(t, prompt.Arguments, 3)
	assert.Equal(t, "description", prompt.Arguments[0].Name)
	assert.True(t, prompt.Arguments[0].Required)
}

func TestPlanEventHandler(t *testing.T) {
	tests := []struct {
		name         string
		args         map[string]string
		wantContains []string
	}{
		{
			name: "all arguments",
			args: map[string]string{
				"description": "Monthly Go meetup with two talks",
				"date":        "first Thursday of March at 6pm",
				"timezone":    "America/Toronto",
			},
			wantContains: []string{
				"timezone America/Toronto",
				"Description: Monthly Go meetup with two talks",
				"Date: first Thursday of March at 6pm",
			},
		},
		{
			name:         "defaults",
			args:         nil,
			wantContains: []string{"timezone UTC", "Date: not given; ask the user"},
		},
		{
			name:         "lists templates",
			args:         map[string]string{"description": "x"},
			wantContains: []string{"- meetup:", "- webinar:", "(1h, virtual)", "(8h, approval required)"},
		},
	}

	p := NewPromptTemplates(templates.Default())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := mcp.GetPromptRequest{
				Params: mcp.GetPromptParams{Name: planEventPrompt, Arguments: tt.args},
			}
			result, err := p.PlanEventHandler(context.Background(), request)
			require.NoError(t, err)
			require.Len(t, result.Messages, 1)
			assert.Equal(t, mcp.RoleUser, result.Messages[0].Role)

			text, ok := result.Messages[0].Content.(mcp.TextContent)
			require.True(t, ok)
			for _, want := range tt.wantContains {
				assert.Contains(t, text.Text, want)
			}
		})
	}
}
