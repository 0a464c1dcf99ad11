package entities

import (
	"net/url"
	"strings"
	"time"
)

// ResourceKind selects which fetcher services a resource.
type ResourceKind string

const (
	// ResourceKindFile is a resource read from the local filesystem.
	ResourceKindFile ResourceKind = "file"

	// ResourceKindNetwork is a resource fetched over HTTP.
	ResourceKindNetwork ResourceKind = "network"
)

// Resource describes one unit of work for the file source.
type Resource struct {
	// PriorModified is the Last-Modified value of a cached copy, if any.
	PriorModified *time.Time `json:"prior_modified,omitempty"`

	// Headers are extra request headers (network resources only).
	Headers map[string]string `json:"headers,omitempty" validate:"omitempty,dive,keys,required,endkeys"`

	// Kind selects the fetcher. Inferred from URL when empty.
	Kind ResourceKind `json:"kind,omitempty" validate:"omitempty,oneof=file network"`

	// URL is the location of the resource: http(s)://, file:// or a plain path.
	URL string `json:"url" validate:"required"`

	// Method is the HTTP method. Defaults to GET.
	Method string `json:"method,omitempty" validate:"omitempty,oneof=GET HEAD get head"`

	// PriorETag is the entity tag of a cached copy, if any.
	PriorETag string `json:"prior_etag,omitempty"`
}

// ResolvedKind returns the explicit kind, or infers it from the URL scheme.
func (r Resource) ResolvedKind() ResourceKind {
	if r.Kind != "" {
		return r.Kind
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return ResourceKindFile
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "h3":
		return ResourceKindNetwork
	default:
		return ResourceKindFile
	}
}
