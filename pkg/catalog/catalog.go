// Package catalog defines the endpoint catalog consumed by the ingestion
// engine. Descriptors are supplied by an external discovery process or fall
// back to a built-in default set, and are read-only after loading.
package catalog

import (
	"strings"
)

// CapabilityPagination is the capability tag marking cursor-paginated endpoints.
const CapabilityPagination = "Supports pagination"

// KnownCollectionFields lists the response body fields recognized as item
// collections, in probe order.
var KnownCollectionFields = []string{"markets", "events", "series"}

// Descriptor describes one API endpoint. Immutable once loaded.
type Descriptor struct {
	// Path is the endpoint path template, possibly containing {param} placeholders.
	Path string `json:"endpoint"`

	// Description is a human-readable summary of the endpoint.
	Description string `json:"description"`

	// Capabilities are free-form capability tags from discovery.
	Capabilities []string `json:"capabilities"`

	// Method is the HTTP method (always GET for public ingestion).
	Method string `json:"method"`
}

// SupportsPagination reports whether the endpoint is cursor-paginated.
func (d Descriptor) SupportsPagination() bool {
	for _, c := range d.Capabilities {
		if c == CapabilityPagination {
			return true
		}
	}
	return false
}

// IsParameterized reports whether the path contains an unresolved {param}
// placeholder. Parameterized endpoints are skipped in bulk mode.
func (d Descriptor) IsParameterized() bool {
	return strings.Contains(d.Path, "{")
}

// CollectionField resolves the response field holding the item collection.
// The field is derived once from the descriptor rather than probed per page:
// first from a "Returns 'X' field" capability tag, then from the leading path
// segment when it names a recognized collection. Returns "" when the field
// cannot be determined ahead of time; callers then probe KnownCollectionFields.
func (d Descriptor) CollectionField() string {
	for _, c := range d.Capabilities {
		for _, field := range KnownCollectionFields {
			if c == "Returns '"+field+"' field" {
				return field
			}
		}
	}

	segment := strings.Trim(d.Path, "/")
	if i := strings.Index(segment, "/"); i >= 0 {
		segment = segment[:i]
	}
	for _, field := range KnownCollectionFields {
		if segment == field {
			return field
		}
	}
	return ""
}

// PageLimit returns the per-page request limit for the endpoint. Heavier
// payload collections use smaller pages; the limit is fixed before
// pagination starts and never adapted mid-run.
func (d Descriptor) PageLimit() int {
	switch strings.Trim(d.Path, "/") {
	case "events":
		return 100
	case "series":
		return 200
	default:
		return 1000
	}
}

// Catalog is an ordered set of endpoint descriptors.
type Catalog struct {
	descriptors []Descriptor
}

// New creates a catalog from descriptors, preserving order.
func New(descriptors []Descriptor) *Catalog {
	return &Catalog{descriptors: descriptors}
}

// Descriptors returns the descriptors in catalog order.
func (c *Catalog) Descriptors() []Descriptor {
	return c.descriptors
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	return len(c.descriptors)
}

// Default returns the built-in endpoint catalog used when no discovery file
// is available.
func Default() *Catalog {
	return New([]Descriptor{
		{
			Path:         "/markets",
			Description:  "Retrieve all available markets with pagination support",
			Capabilities: []string{CapabilityPagination, "JSON response"},
			Method:       "GET",
		},
		{
			Path:         "/events",
			Description:  "Retrieve all events",
			Capabilities: []string{CapabilityPagination, "JSON response"},
			Method:       "GET",
		},
		{
			Path:         "/series",
			Description:  "Retrieve all market series",
			Capabilities: []string{"JSON response"},
			Method:       "GET",
		},
	})
}
