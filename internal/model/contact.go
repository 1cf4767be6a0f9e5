package model

// SourceKind ranks where a contact was discovered.
type SourceKind string

const (
	SourceOfficial   SourceKind = "official"   // the organization's own site
	SourceAggregator SourceKind = "aggregator" // directories, profile sites
	SourceSearch     SourceKind = "search"     // any other search result
	SourceManual     SourceKind = "manual"     // entered during review
)

// Contact is a discovered person (or role mailbox) at an organization.
type Contact struct {
	Name       string     `json:"name,omitempty"`
	Email      string     `json:"email"`
	Title      string     `json:"title,omitempty"`
	Source     string     `json:"source,omitempty"`
	SourceKind SourceKind `json:"source_kind,omitempty"`
	Confidence int        `json:"confidence"`
}

// DisplayName returns the contact name, falling back to title then a generic
// salutation target.
func (c *Contact) DisplayName() string {
	switch {
	case c == nil:
		return ""
	case c.Name != "":
		return c.Name
	case c.Title != "":
		return c.Title
	default:
		return "Administrator"
	}
}
