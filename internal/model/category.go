package model

// CategoryNone is the catch-all bucket assigned when extraction cannot
// place content in a meaningful category. Records carrying it never
// surface in report sections.
const CategoryNone = "none"

// categoryLabels maps category codes to their display labels. A code
// missing here is not a valid extraction category.
var categoryLabels = map[string]string{
	"funding":        "Funding & Financials",
	"product_launch": "Product Launches",
	"press_release":  "Press & Announcements",
	"partnership":    "Partnerships",
	"award":          "Awards & Recognition",
	"event":          "Events & Conferences",
	"hiring":         "Hiring & Growth",
	"job_change":     "Role Changes",
	"promotion":      "Promotions",
	"personal_post":  "Personal Updates",
	"interview":      "Interviews & Features",
	CategoryNone:     "Uncategorized",
}

// personalCategories is the subset of categories that describe the lead
// rather than the company. Records in these categories are visible only
// in their owning person's report.
var personalCategories = map[string]bool{
	"job_change":    true,
	"promotion":     true,
	"personal_post": true,
	"interview":     true,
}

// categoryOrder fixes the section ordering in the final report.
var categoryOrder = []string{
	"funding",
	"product_launch",
	"partnership",
	"press_release",
	"award",
	"event",
	"hiring",
	"job_change",
	"promotion",
	"interview",
	"personal_post",
}

// ValidCategory reports whether code is a known extraction category.
func ValidCategory(code string) bool {
	_, ok := categoryLabels[code]
	return ok
}

// CategoryLabel returns the display label for a category code, falling
// back to the code itself for unknown values.
func CategoryLabel(code string) string {
	if label, ok := categoryLabels[code]; ok {
		return label
	}
	return code
}

// IsPersonalCategory reports whether a category belongs to the
// person-scoped subset.
func IsPersonalCategory(code string) bool {
	return personalCategories[code]
}

// CategoryRank returns the section sort position for a category code.
// Unknown codes sort last.
func CategoryRank(code string) int {
	for i, c := range categoryOrder {
		if c == code {
			return i
		}
	}
	return len(categoryOrder)
}

// Categories returns all valid category codes in section order.
func Categories() []string {
	out := make([]string, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}
