package governance

import (
	"strings"

	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// FilterSections returns the sections the state allows, in document order.
// In safe-mode only allow-listed ids survive. Otherwise a section is dropped
// when its capability is suppressed, and sub-sections follow their parent.
func FilterSections(sections []models.Section, st models.GovernanceState) []models.Section {
	out := []models.Section{}

	if st.Mode == models.ModeSafe {
		allowed := make(map[string]bool, len(st.AllowedSections))
		for _, id := range st.AllowedSections {
			allowed[id] = true
		}
		for _, s := range sections {
			if allowed[s.ID] {
				out = append(out, s)
			}
		}
		return out
	}

	parentDropped := false
	for _, s := range sections {
		if s.Level == models.SectionTop {
			parentDropped = false
		}
		drop := s.Capability != "" && st.Suppresses(s.Capability)
		if s.Level == models.SectionTop && drop {
			parentDropped = true
		}
		if drop || (s.Level == models.SectionSub && parentDropped) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// AnnotateSections attaches a limitation note to every section whose title
// mentions an excluded dimension. The input slice is not modified.
func AnnotateSections(sections []models.Section, constraints []models.ScopeConstraint) []models.Section {
	out := make([]models.Section, len(sections))
	for i, s := range sections {
		var notes []string
		for _, c := range constraints {
			if !MentionsDimension(s.Title, c.Dimension) {
				continue
			}
			note := "Out of scope: " + constraintTitle(c)
			if c.Detail != "" {
				note += ". " + c.Detail
			}
			notes = append(notes, note)
		}
		if len(notes) > 0 {
			s.Limitations = append(append([]string{}, s.Limitations...), notes...)
		}
		out[i] = s
	}
	return out
}

// MentionsDimension reports whether text contains the dimension name,
// case-insensitively. Underscores and hyphens in the name also match spaces,
// so "customer_age" matches "customer age".
func MentionsDimension(text, dimension string) bool {
	dim := strings.ToLower(strings.TrimSpace(dimension))
	if dim == "" {
		return false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, dim) {
		return true
	}
	spaced := strings.NewReplacer("_", " ", "-", " ").Replace(dim)
	if spaced != dim && strings.Contains(strings.NewReplacer("_", " ", "-", " ").Replace(lower), spaced) {
		return true
	}
	return false
}
