package model

import "time"

// ContentRecord is one successfully ingested source. Records are created
// once and never updated; existence for (source id, company id), or for
// the activity id alone on social items, is the idempotency fact checked
// before re-processing a source.
type ContentRecord struct {
	ID         string     `json:"id"`
	CompanyID  string     `json:"company_id"`
	PersonID   string     `json:"person_id,omitempty"` // empty for company-wide records
	SourceID   string     `json:"source_id"`
	ActivityID string     `json:"activity_id,omitempty"`
	Kind       SourceKind `json:"kind"`

	Category          string     `json:"category"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
	Summary           string     `json:"summary"`
	FocusOnCompany    bool       `json:"focus_on_company"`
	RequestingContact bool       `json:"requesting_contact"`

	MentionedPeople    []string `json:"mentioned_people,omitempty"`
	AssociatedProducts []string `json:"associated_products,omitempty"`

	Usage     UsageTotals `json:"usage"`
	CreatedAt time.Time   `json:"created_at"`
}

// WorkBatch is a contiguous slice of sources assigned to one shard worker.
// It lives only inside the fan-out pass and is never persisted.
type WorkBatch struct {
	Index   int            `json:"index"`
	Sources []SearchResult `json:"sources"`
}
