package templates

import (
	"time"

	"github.com/Togather-Foundation/eventproxy/internal/luma"
)

// CreateFromTemplateRequest names a template and fills in the per-event
// details.
type CreateFromTemplateRequest struct {
	TemplateType Type             `json:"template_type"`
	Name         string           `json:"name"`
	StartAt      string           `json:"start_at"`
	Timezone     string           `json:"timezone"`
	MeetingURL   string           `json:"meeting_url,omitempty"`
	GeoAddress   *luma.GeoAddress `json:"geo_address_json,omitempty"`
}

// Build turns a template and request into a create request. The end time is
// start plus the template duration; UTC ends are written with a Z suffix.
// Virtual templates only carry the meeting URL and in-person templates only
// carry the address.
func Build(tmpl Template, req CreateFromTemplateRequest) (luma.EventCreateRequest, error) {
	start, err := luma.ParseTimestamp(req.StartAt)
	if err != nil {
		return luma.EventCreateRequest{}, &luma.ValidationError{
			Fields: map[string]string{"start_at": "invalid start_at format: must be an ISO 8601 date-time"},
		}
	}
	end := start.Add(time.Duration(tmpl.DefaultDurationHours) * time.Hour)

	out := luma.EventCreateRequest{
		Name:                req.Name,
		StartAt:             req.StartAt,
		Timezone:            req.Timezone,
		EndAt:               formatEnd(end, req.StartAt),
		RequireRSVPApproval: tmpl.RequireRSVPApproval,
	}
	if tmpl.IsVirtual {
		out.MeetingURL = req.MeetingURL
	} else if req.GeoAddress != nil {
		geo := *req.GeoAddress
		out.GeoAddress = &geo
	}
	return out, out.Validate()
}

// formatEnd keeps the shape of the start value: naive starts get naive
// ends, offset starts keep their offset, UTC is written as Z.
func formatEnd(end time.Time, start string) string {
	if !hasZone(start) {
		return end.Format("2006-01-02T15:04:05")
	}
	return end.Format(time.RFC3339)
}

func hasZone(value string) bool {
	if len(value) == 0 {
		return false
	}
	if value[len(value)-1] == 'Z' || value[len(value)-1] == 'z' {
		return true
	}
	_, err := time.Parse(time.RFC3339Nano, value)
	return err == nil
}
