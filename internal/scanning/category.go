package scanning

import "strings"

// CategoryOther is the catch-all expense category. Anything the model
// returns outside the closed set below is coerced to it.
const CategoryOther = "Other"

// Categories is the closed set of expense categories the extraction
// contract allows. The prompt, the coercion below, and the persistence
// defaults all share this one list.
var Categories = []string{
	"Meals & Entertainment",
	"Travel",
	"Office Supplies",
	"Software & Subscriptions",
	"Professional Services",
	"Utilities",
	"Equipment",
	"Fuel & Auto",
	"Insurance",
	"Marketing",
	CategoryOther,
}

// CoerceCategory maps a raw model reply to the closed category set.
// Matching ignores case and surrounding whitespace; anything else is a
// contract violation and falls back to "Other".
func CoerceCategory(raw string) string {
	cleaned := strings.TrimSpace(raw)
	for _, c := range Categories {
		if strings.EqualFold(cleaned, c) {
			return c
		}
	}
	return CategoryOther
}
