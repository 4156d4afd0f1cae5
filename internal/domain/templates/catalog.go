// Package templates provides reusable event presets and builds platform
// create requests from them.
//
// The catalog ships five built-in templates. An optional YAML file can
// override any of them by type or add new types:
//
//	templates:
//	  - type: hackathon
//	    name: Weekend Hackathon
//	    description: Build something in 48 hours
//	    default_duration_hours: 48
//	    require_rsvp_approval: true
package templates

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrTemplateNotFound is returned for an unknown template type.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInvalidTemplate is returned when a catalog file entry is malformed.
	ErrInvalidTemplate = errors.New("invalid template")
)

// Type identifies a template.
type Type string

const (
	Meetup          Type = "meetup"
	Workshop        Type = "workshop"
	Conference      Type = "conference"
	SocialGathering Type = "social_gathering"
	Webinar         Type = "webinar"
)

// Template is a preset for new events.
type Template struct {
	Type                 Type   `json:"type" yaml:"type"`
	Name                 string `json:"name" yaml:"name"`
	Description          string `json:"description" yaml:"description"`
	DefaultDurationHours int    `json:"default_duration_hours" yaml:"default_duration_hours"`
	RequireRSVPApproval  bool   `json:"require_rsvp_approval" yaml:"require_rsvp_approval"`
	IsVirtual            bool   `json:"is_virtual" yaml:"is_virtual"`
}

func (t Template) validate() error {
	switch {
	case strings.TrimSpace(string(t.Type)) == "":
		return fmt.Errorf("%w: type is required", ErrInvalidTemplate)
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("%w: %s: name is required", ErrInvalidTemplate, t.Type)
	case t.DefaultDurationHours <= 0:
		return fmt.Errorf("%w: %s: default_duration_hours must be positive", ErrInvalidTemplate, t.Type)
	}
	return nil
}

// Builtin returns the templates shipped with the proxy, in display order.
func Builtin() []Template {
	return []Template{
		{
			Type:                 Meetup,
			Name:                 "Community Meetup",
			Description:          "A casual gathering for community members to connect and share ideas",
			DefaultDurationHours: 2,
		},
		{
			Type:                 Workshop,
			Name:                 "Hands-on Workshop",
			Description:          "An interactive learning session with practical exercises",
			DefaultDurationHours: 3,
			RequireRSVPApproval:  true,
			IsVirtual:            true,
		},
		{
			Type:                 Conference,
			Name:                 "Professional Conference",
			Description:          "A large-scale professional gathering with multiple speakers and sessions",
			DefaultDurationHours: 8,
			RequireRSVPApproval:  true,
		},
		{
			Type:                 SocialGathering,
			Name:                 "Social Gathering",
			Description:          "A relaxed social event for networking and fun",
			DefaultDurationHours: 4,
		},
		{
			Type:                 Webinar,
			Name:                 "Online Webinar",
			Description:          "A virtual presentation or lecture open to online participants",
			DefaultDurationHours: 1,
			IsVirtual:            true,
		},
	}
}

// Catalog is an immutable set of templates, safe for concurrent reads.
type Catalog struct {
	order []Type
	byTyp map[Type]Template
}

// NewCatalog builds a catalog from templates. Later entries replace earlier
// ones with the same type without changing their position.
func NewCatalog(templates ...Template) (*Catalog, error) {
	c := &Catalog{byTyp: make(map[Type]Template, len(templates))}
	for _, t := range templates {
		t.Type = Type(strings.ToLower(strings.TrimSpace(string(t.Type))))
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, exists := c.byTyp[t.Type]; !exists {
			c.order = append(c.order, t.Type)
		}
		c.byTyp[t.Type] = t
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := NewCatalog(Builtin()...)
	if err != nil {
		panic(err)
	}
	return c
}

type catalogFile struct {
	Templates []Template `yaml:"templates"`
}

// Load returns the built-in catalog merged with the templates in path. An
// empty path returns the built-ins.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}
	return Parse(data)
}

// Parse merges a YAML catalog document over the built-ins.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse templates file: %w", err)
	}
	return NewCatalog(append(Builtin(), file.Templates...)...)
}

// List returns every template in catalog order.
func (c *Catalog) List() []Template {
	out := make([]Template, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, c.byTyp[t])
	}
	return out
}

// Get looks up a template by type, case-insensitively.
func (c *Catalog) Get(t Type) (Template, error) {
	tmpl, ok := c.byTyp[Type(strings.ToLower(strings.TrimSpace(string(t))))]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, t)
	}
	return tmpl, nil
}

// Types returns the known template types, sorted.
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}
