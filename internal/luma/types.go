package luma

import (
	"encoding/json"

	"github.com/Togather-Foundation/eventproxy/internal/sanitize"
)

type EventStatus string

const (
	StatusDraft     EventStatus = "draft"
	StatusPublished EventStatus = "published"
	StatusCancelled EventStatus = "cancelled"
)

// GeoAddress is the platform's location payload, keyed by a Google Places ID.
type GeoAddress struct {
	Type        string `json:"type" yaml:"type" validate:"omitempty,max=50"`
	PlaceID     string `json:"place_id" yaml:"place_id" validate:"required,max=512"`
	Description string `json:"description,omitempty" yaml:"description" validate:"max=1000"`
}

func (g *GeoAddress) normalize() *GeoAddress {
	if g == nil {
		return nil
	}
	out := *g
	if out.Type == "" {
		out.Type = "google"
	}
	out.PlaceID = sanitize.Text(out.PlaceID)
	out.Description = sanitize.Text(out.Description)
	return &out
}

// EventCreateRequest is the body of a create call.
type EventCreateRequest struct {
	Name                string      `json:"name" validate:"required,min=1,max=200"`
	StartAt             string      `json:"start_at" validate:"required,iso8601"`
	Timezone            string      `json:"timezone" validate:"required,max=64"`
	EndAt               string      `json:"end_at,omitempty" validate:"omitempty,iso8601"`
	RequireRSVPApproval bool        `json:"require_rsvp_approval"`
	MeetingURL          string      `json:"meeting_url,omitempty" validate:"omitempty,max=2000,http_url"`
	GeoAddress          *GeoAddress `json:"geo_address_json,omitempty"`
}

// Sanitized returns a copy with HTML stripped from free-text fields.
func (r EventCreateRequest) Sanitized() EventCreateRequest {
	r.Name = sanitize.Text(r.Name)
	r.Timezone = sanitize.Text(r.Timezone)
	r.GeoAddress = r.GeoAddress.normalize()
	return r
}

// EventUpdateRequest carries only the fields being changed.
type EventUpdateRequest struct {
	Name                *string     `json:"name,omitempty" validate:"omitnil,min=1,max=200"`
	StartAt             *string     `json:"start_at,omitempty" validate:"omitnil,iso8601"`
	Timezone            *string     `json:"timezone,omitempty" validate:"omitnil,min=1,max=64"`
	EndAt               *string     `json:"end_at,omitempty" validate:"omitnil,iso8601"`
	RequireRSVPApproval *bool       `json:"require_rsvp_approval,omitempty"`
	MeetingURL          *string     `json:"meeting_url,omitempty" validate:"omitnil,max=2000,http_url"`
	GeoAddress          *GeoAddress `json:"geo_address_json,omitempty"`
}

// Sanitized returns a copy with HTML stripped from free-text fields.
func (r EventUpdateRequest) Sanitized() EventUpdateRequest {
	r.Name = sanitize.TextPtr(r.Name)
	r.Timezone = sanitize.TextPtr(r.Timezone)
	r.GeoAddress = r.GeoAddress.normalize()
	return r
}

// Empty reports whether the update changes nothing.
func (r EventUpdateRequest) Empty() bool {
	return r.Name == nil && r.StartAt == nil && r.Timezone == nil && r.EndAt == nil &&
		r.RequireRSVPApproval == nil && r.MeetingURL == nil && r.GeoAddress == nil
}

// Event is an event as returned by the platform.
type Event struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	StartAt             string      `json:"start_at"`
	Timezone            string      `json:"timezone"`
	EndAt               string      `json:"end_at,omitempty"`
	RequireRSVPApproval bool        `json:"require_rsvp_approval"`
	MeetingURL          string      `json:"meeting_url,omitempty"`
	GeoAddress          *GeoAddress `json:"geo_address_json,omitempty"`
	Status              EventStatus `json:"status,omitempty"`
	URL                 string      `json:"url,omitempty"`
	CreatedAt           string      `json:"created_at,omitempty"`
	UpdatedAt           string      `json:"updated_at,omitempty"`
}

// UnmarshalJSON accepts the platform's api_id as the event ID.
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	aux := struct {
		*alias
		APIID string `json:"api_id"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = aux.APIID
	}
	return nil
}

// User is the account the API key belongs to.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// UnmarshalJSON accepts both {"user": {...}} and a bare user, and the
// platform's api_id as the user ID.
func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	var env struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(data, &env); err == nil && len(env.User) > 0 && env.User[0] == '{' {
		data = env.User
	}
	aux := struct {
		*alias
		APIID string `json:"api_id"`
	}{alias: (*alias)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = aux.APIID
	}
	return nil
}

// ListOptions pages through the event list. Zero Limit means DefaultListLimit.
type ListOptions struct {
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// TicketTypesRequest defines ticket types for an existing event. Fields
// beyond the event ID are passed through unchanged.
type TicketTypesRequest struct {
	EventID string         `json:"event_id" validate:"required"`
	Fields  map[string]any `json:"-"`
}

func (r TicketTypesRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["event_id"] = r.EventID
	return json.Marshal(out)
}
