// Package catalog holds the static mapping from booking-option ids to
// their payment and scheduling references. The webhook handlers resolve
// incoming product references against it.
package catalog

import (
	"sendconsult/internal/domain"
	"sendconsult/internal/faults"
)

type OptionType string

const (
	TypeSingle  OptionType = "single"
	TypePackage OptionType = "package"
)

// Option describes one purchasable booking option.
type Option struct {
	ID            string
	Title         string
	Price         int64 // minor currency units
	Duration      int   // minutes, 0 for packages
	EventTypeURI  string
	StripePriceID string
	Audience      domain.Audience
	Type          OptionType
	Sessions      int // committed session count for packages
	Recurring     bool
}

// SessionCount is the entitlement granted by one purchase of this option.
func (o Option) SessionCount() int {
	if o.Type == TypePackage && o.Sessions > 0 {
		return o.Sessions
	}
	if o.Type == TypeSingle {
		return 1
	}
	return 0
}

type Catalog struct {
	byID  map[string]Option
	order []string
}

func New(options []Option) *Catalog {
	c := &Catalog{byID: make(map[string]Option, len(options))}
	for _, opt := range options {
		if _, dup := c.byID[opt.ID]; dup {
			continue
		}
		c.byID[opt.ID] = opt
		c.order = append(c.order, opt.ID)
	}
	return c
}

// Lookup resolves a booking-option id to its catalog entry.
func (c *Catalog) Lookup(id string) (Option, error) {
	opt, ok := c.byID[id]
	if !ok {
		return Option{}, &faults.ConfigError{What: "unknown booking option " + id}
	}
	return opt, nil
}

// Options returns all entries in declaration order.
func (c *Catalog) Options() []Option {
	out := make([]Option, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Default is the consultancy's live catalog.
func Default() *Catalog {
	return New([]Option{
		{
			ID:            "starter-consultation",
			Title:         "Starter Consultation",
			Price:         5000,
			Duration:      45,
			EventTypeURI:  "https://api.calendly.com/event_types/376eda83-fc4c-4edc-80bc-f188a98f6b07",
			StripePriceID: "price_1SLnn7IrJSp147Zwq83YvKmV",
			Audience:      domain.AudienceFamily,
			Type:          TypeSingle,
		},
		{
			ID:            "deep-dive-assessment",
			Title:         "Extended Consultation",
			Price:         9500,
			Duration:      90,
			EventTypeURI:  "https://api.calendly.com/event_types/578487b4-2123-4c64-bd27-82b9c53ffa97",
			StripePriceID: "price_1SLnntIrJSp147ZwwZihcxPM",
			Audience:      domain.AudienceFamily,
			Type:          TypeSingle,
		},
		{
			ID:            "advocacy-package",
			Title:         "Monthly Advocacy Package",
			Price:         20000,
			EventTypeURI:  "https://api.calendly.com/event_types/376eda83-fc4c-4edc-80bc-f188a98f6b07",
			StripePriceID: "price_1SLnq5IrJSp147ZwXTq1PxUG",
			Audience:      domain.AudienceFamily,
			Type:          TypePackage,
			Sessions:      4,
			Recurring:     true,
		},
	})
}
