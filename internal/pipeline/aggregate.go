package pipeline

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/sells-group/outreach-research/internal/model"
)

// FreshnessCutoff returns the oldest publish date still included in a
// report aggregated at now.
func FreshnessCutoff(now time.Time, freshnessMonths int) time.Time {
	return now.AddDate(0, -freshnessMonths, 0)
}

// includable applies the shared content gate: a category assigned by
// extraction, a publish date inside the freshness window.
func includable(rec model.ContentRecord, cutoff time.Time) bool {
	if rec.Category == "" || rec.Category == model.CategoryNone || !model.ValidCategory(rec.Category) {
		return false
	}
	if rec.PublishedAt == nil || rec.PublishedAt.Before(cutoff) {
		return false
	}
	return true
}

// BuildSections groups company content into ordered report sections.
//
// A record is surfaced only if it focuses on the company, clears the
// freshness window, carries a real category, and is not a gated-contact
// page. Personal-category records belonging to a different lead are
// excluded so one lead's career news never leaks into another lead's
// report, while company-wide categories stay shared across all leads.
func BuildSections(records []model.ContentRecord, targetPersonID string, now time.Time, freshnessMonths int) []model.ReportSection {
	cutoff := FreshnessCutoff(now, freshnessMonths)

	// Duplicate ContentRecords from an ingestion race collapse here.
	type sectionKey struct{ category, sourceID string }
	seen := make(map[sectionKey]bool)

	byCategory := make(map[string][]model.Highlight)
	for _, rec := range records {
		if !includable(rec, cutoff) {
			continue
		}
		if !rec.FocusOnCompany || rec.RequestingContact {
			continue
		}
		if model.IsPersonalCategory(rec.Category) && rec.PersonID != targetPersonID {
			continue
		}

		key := sectionKey{rec.Category, rec.SourceID}
		if seen[key] {
			continue
		}
		seen[key] = true

		published := *rec.PublishedAt
		byCategory[rec.Category] = append(byCategory[rec.Category], model.Highlight{
			ContentID:        rec.ID,
			SourceID:         rec.SourceID,
			Summary:          rec.Summary,
			Category:         rec.Category,
			CategoryLabel:    model.CategoryLabel(rec.Category),
			PublishedAt:      rec.PublishedAt,
			PublishedDisplay: published.Format("January 2006"),
		})
	}

	sections := make([]model.ReportSection, 0, len(byCategory))
	for category, highlights := range byCategory {
		sort.SliceStable(highlights, func(i, j int) bool {
			return highlights[i].PublishedAt.After(*highlights[j].PublishedAt)
		})
		sections = append(sections, model.ReportSection{
			Category:   category,
			Label:      model.CategoryLabel(category),
			Highlights: highlights,
		})
	}
	sort.Slice(sections, func(i, j int) bool {
		return model.CategoryRank(sections[i].Category) < model.CategoryRank(sections[j].Category)
	})
	return sections
}

// BuildInsights derives ranked facets from the target person's own
// social activity. Mentions of the person's own name are dropped from
// the people facet: self-mention is an extraction artifact, not signal.
func BuildInsights(records []model.ContentRecord, targetPersonID, targetPersonName string, now time.Time, freshnessMonths int) *model.Insights {
	cutoff := FreshnessCutoff(now, freshnessMonths)
	folder := cases.Fold()
	selfKey := facetKey(folder, targetPersonName)

	people := newFacetCounter()
	products := newFacetCounter()

	for _, rec := range records {
		if rec.Kind != model.SourceKindSocialActivity || rec.PersonID != targetPersonID {
			continue
		}
		if !includable(rec, cutoff) {
			continue
		}
		for _, name := range rec.MentionedPeople {
			if facetKey(folder, name) == selfKey {
				continue
			}
			people.add(facetKey(folder, name), name)
		}
		for _, product := range rec.AssociatedProducts {
			products.add(facetKey(folder, product), product)
		}
	}

	return &model.Insights{
		MentionedPeople:    people.ranked(),
		AssociatedProducts: products.ranked(),
		FreshnessCutoff:    cutoff,
	}
}

// facetKey normalizes a name for counting: interior whitespace collapses
// to single spaces, then the result is case-folded. "Priya  Raman" and
// "priya raman" count as one person.
func facetKey(folder cases.Caser, s string) string {
	return folder.String(strings.Join(strings.Fields(s), " "))
}

// facetCounter tallies occurrences under fold-normalized keys while
// keeping the first-seen spelling as the display name.
type facetCounter struct {
	counts  map[string]int
	display map[string]string
}

func newFacetCounter() *facetCounter {
	return &facetCounter{
		counts:  make(map[string]int),
		display: make(map[string]string),
	}
}

func (f *facetCounter) add(key, display string) {
	if key == "" {
		return
	}
	if _, ok := f.display[key]; !ok {
		f.display[key] = display
	}
	f.counts[key]++
}

// ranked returns facets ordered by count descending, ties broken by
// name ascending.
func (f *facetCounter) ranked() []model.InsightFacet {
	out := make([]model.InsightFacet, 0, len(f.counts))
	for key, count := range f.counts {
		out = append(out, model.InsightFacet{Name: f.display[key], Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
