// Package luma is a typed client for the event platform's public API. Every
// call goes through an upstream.Executor, so rate limiting and retries apply.
package luma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Togather-Foundation/eventproxy/internal/upstream"
)

const (
	pathCreateEvent = "event/create"
	pathGetEvent    = "event/get/"
	pathUpdateEvent = "event/update/"
	pathDeleteEvent = "event/delete/"
	pathListEvents  = "user/events"
	pathGetSelf     = "user/get-self"
	pathTicketTypes = "event/ticket-types/create"
)

// ErrMissingID is returned when an operation needs an event ID and got none.
var ErrMissingID = errors.New("event id is required")

// Client wraps an upstream.Executor with the platform's operations.
type Client struct {
	exec upstream.Executor
}

func NewClient(exec upstream.Executor) *Client {
	return &Client{exec: exec}
}

// CallOption adjusts a single write.
type CallOption func(*upstream.Operation)

// WithIdempotencyKey forwards a caller-supplied key instead of minting one.
func WithIdempotencyKey(key string) CallOption {
	return func(op *upstream.Operation) {
		if key = strings.TrimSpace(key); key != "" {
			op.IdempotencyKey = key
		}
	}
}

func (c *Client) run(ctx context.Context, op upstream.Operation, opts []CallOption) (*upstream.Result, error) {
	for _, opt := range opts {
		opt(&op)
	}
	return c.exec.Execute(ctx, op)
}

// CreateEvent validates, sanitizes and creates an event.
func (c *Client) CreateEvent(ctx context.Context, req EventCreateRequest, opts ...CallOption) (*Event, error) {
	req = req.Sanitized()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, err := c.run(ctx, upstream.Post(pathCreateEvent, req), opts)
	if err != nil {
		return nil, err
	}
	return decodeEvent(res)
}

func (c *Client) GetEvent(ctx context.Context, id string) (*Event, error) {
	p, err := eventPath(pathGetEvent, id)
	if err != nil {
		return nil, err
	}
	res, err := c.exec.Execute(ctx, upstream.Get(p, nil))
	if err != nil {
		return nil, err
	}
	return decodeEvent(res)
}

// UpdateEvent sends only the fields set on req.
func (c *Client) UpdateEvent(ctx context.Context, id string, req EventUpdateRequest, opts ...CallOption) (*Event, error) {
	p, err := eventPath(pathUpdateEvent, id)
	if err != nil {
		return nil, err
	}
	req = req.Sanitized()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, err := c.run(ctx, upstream.Put(p, req), opts)
	if err != nil {
		return nil, err
	}
	return decodeEvent(res)
}

func (c *Client) DeleteEvent(ctx context.Context, id string, opts ...CallOption) error {
	p, err := eventPath(pathDeleteEvent, id)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, upstream.Delete(p), opts)
	return err
}

// EventList is one page of the caller's events.
type EventList struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// ListEvents returns a page of the key owner's events. The upstream endpoint
// has no paging parameters, so the window is applied here.
func (c *Client) ListEvents(ctx context.Context, opts ListOptions) (*EventList, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultListLimit
	}

	res, err := c.exec.Execute(ctx, upstream.Get(pathListEvents, nil))
	if err != nil {
		return nil, err
	}
	all, err := decodeEventList(res.Payload)
	if err != nil {
		return nil, err
	}

	page := &EventList{Events: []Event{}, Total: len(all), Limit: opts.Limit, Offset: opts.Offset}
	if opts.Offset < len(all) {
		end := min(opts.Offset+opts.Limit, len(all))
		page.Events = all[opts.Offset:end]
	}
	return page, nil
}

// GetSelf returns the account behind the API key. The health check uses it
// as a cheap authenticated health check.
func (c *Client) GetSelf(ctx context.Context) (*User, error) {
	res, err := c.exec.Execute(ctx, upstream.Get(pathGetSelf, nil))
	if err != nil {
		return nil, err
	}
	var u User
	if err := res.Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateTicketTypes forwards a ticket-type definition and returns the
// platform's response unchanged.
func (c *Client) CreateTicketTypes(ctx context.Context, req TicketTypesRequest, opts ...CallOption) (json.RawMessage, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	res, err := c.run(ctx, upstream.Post(pathTicketTypes, req), opts)
	if err != nil {
		return nil, err
	}
	return res.Payload, nil
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return upstream.KindOf(err) == upstream.KindClientError && upstream.StatusOf(err) == http.StatusNotFound
}

func eventPath(prefix, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrMissingID
	}
	return prefix + url.PathEscape(id), nil
}

// decodeEvent accepts {"event": {...}} as well as a bare event.
func decodeEvent(res *upstream.Result) (*Event, error) {
	if res == nil || len(res.Payload) == 0 {
		return &Event{}, nil
	}
	var env struct {
		Event *Event `json:"event"`
	}
	if err := json.Unmarshal(res.Payload, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if env.Event != nil {
		return env.Event, nil
	}
	var ev Event
	if err := res.Decode(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// decodeEventList accepts {"events": [...]}, {"entries": [{"event": ...}]}
// and a bare array.
func decodeEventList(payload json.RawMessage) ([]Event, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		return []Event{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var events []Event
		if err := json.Unmarshal(payload, &events); err != nil {
			return nil, fmt.Errorf("decode event list: %w", err)
		}
		return events, nil
	}

	var env struct {
		Events  []Event `json:"events"`
		Entries []struct {
			Event Event `json:"event"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode event list: %w", err)
	}
	if env.Events != nil {
		return env.Events, nil
	}
	events := make([]Event, 0, len(env.Entries))
	for _, e := range env.Entries {
		events = append(events, e.Event)
	}
	return events, nil
}
