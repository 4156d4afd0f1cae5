// Package tools implements the MCP tools exposed by the event proxy.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Togather-Foundation/eventproxy/internal/luma"
	"github.com/Togather-Foundation/eventproxy/internal/upstream"
)

// bindArgs decodes the tool call arguments into dst.
func bindArgs(request mcp.CallToolRequest, dst any) error {
	args := request.GetArguments()
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// toolResultJSON renders payload as indented JSON text.
func toolResultJSON(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to build response", err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError turns a client failure into a tool error result. Tool errors are
// reported to the model rather than failing the protocol call.
func toolError(action string, err error) *mcp.CallToolResult {
	var verr *luma.ValidationError
	if errors.As(err, &verr) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: validation failed: %s", action, formatFields(verr.Fields)))
	}
	if errors.Is(err, luma.ErrMissingID) {
		return mcp.NewToolResultError(action + ": event_id is required")
	}

	var uerr *upstream.Error
	if errors.As(err, &uerr) {
		switch {
		case luma.IsNotFound(err):
			return mcp.NewToolResultError(action + ": event not found")
		case uerr.Kind == upstream.KindRateLimited && uerr.RetryAfter > 0:
			return mcp.NewToolResultError(fmt.Sprintf("%s: rate limited, retry after %ds", action, uerr.RetryAfter))
		case uerr.Kind == upstream.KindRateLimited:
			return mcp.NewToolResultError(action + ": rate limited, try again later")
		}
		msg := uerr.Message
		if msg == "" {
			msg = string(uerr.Kind)
		}
		return mcp.NewToolResultError(fmt.Sprintf("%s: upstream returned %d after %d attempt(s): %s", action, uerr.Status, uerr.Attempts, msg))
	}
	return mcp.NewToolResultErrorFromErr(action, err)
}

func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	return strings.Join(parts, "; ")
}

// geoFromPlace builds an address from the flat tool arguments.
func geoFromPlace(placeID, description string) *luma.GeoAddress {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil
	}
	return &luma.GeoAddress{PlaceID: placeID, Description: strings.TrimSpace(description)}
}
