package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/insightgate/internal/capability"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// narrativeLabel is a fixed label followed by a number in the narrative text.
type narrativeLabel struct {
	metric  string
	unit    models.Unit
	pattern *regexp.Regexp
}

const numberExpr = `(-?\d{1,3}(?:,\d{3})+(?:\.\d+)?|-?\d+(?:\.\d+)?)`

func labelPattern(alternatives string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + alternatives + `)\**[ \t]*[:=|]?[ \t]*\**[ \t]*` + numberExpr)
}

// percentPattern is labelPattern for labels that also precede counts
// ("Churn risk: 251 customers"); the number must carry a percent sign.
func percentPattern(alternatives string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + alternatives + `)\**[ \t]*[:=|]?[ \t]*\**[ \t]*` + numberExpr + `[ \t]*%`)
}

// Labels compiled once at package init. Order is the order metrics appear in the result.
var narrativeLabels = []narrativeLabel{
	{models.MetricDataQuality, models.UnitPercentage, labelPattern(`data quality score|data quality`)},
	{models.MetricConfidenceLevel, models.UnitPercentage, labelPattern(`confidence level|confidence score`)},
	{models.MetricAnomalyCount, models.UnitCount, labelPattern(`anomalies detected|anomaly count`)},
	{models.MetricRecordsAnalyzed, models.UnitCount, labelPattern(`records analy[sz]ed|total records`)},
	{models.MetricSegmentCount, models.UnitCount, labelPattern(`segments identified|number of segments`)},
	{models.MetricAtRiskPercentage, models.UnitPercentage, percentPattern(`at-risk customers|at risk customers|churn risk`)},
	{models.MetricSilhouetteScore, models.UnitScore, labelPattern(`silhouette score`)},
}

var (
	reHeading      = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	reFence        = regexp.MustCompile("^\\s*(```|~~~)")
	reEvidenceTag  = regexp.MustCompile(`(?i)\[evidence:\s*([A-Za-z0-9_.\-]+)\]`)
	reMarkup       = regexp.MustCompile("\\*+|`+|__")
	reLeadingJunk  = regexp.MustCompile(`^[^\p{L}\p{N}]+`)
	reNonSlug      = regexp.MustCompile(`[^a-z0-9]+`)
	rePersonaTitle = regexp.MustCompile(`(?i)^persona(?:\s*#?\d+)?\s*[:\-–—]\s*(.+)$`)
	rePersonaSize  = regexp.MustCompile(`(?i)\bsize\**\s*[:=]?\s*\**\s*(\d{1,3}(?:,\d{3})+|\d+)`)
	rePersonaShare = regexp.MustCompile(`(?i)\bshare\**\s*[:=]?\s*\**\s*(\d+(?:\.\d+)?)\s*%`)
)

// Canonical ids for the descriptive sections safe-mode may still show.
const (
	SectionDataOverview = "data_overview"
	SectionQuality      = "quality"
)

// extractNarrativeMetrics applies every label to the narrative. The first match
// for a label wins; later matches with a different value are reported as conflicts.
func extractNarrativeMetrics(text string) ([]models.Metric, []models.Diagnostic) {
	metrics := []models.Metric{}
	diags := []models.Diagnostic{}

	for _, lbl := range narrativeLabels {
		matches := lbl.pattern.FindAllStringSubmatchIndex(text, -1)
		var first *models.Metric
		for _, m := range matches {
			value, ok := parseNumber(text[m[2]:m[3]])
			if !ok {
				continue
			}
			if first == nil {
				first = &models.Metric{
					Name:       lbl.metric,
					Value:      value,
					Unit:       lbl.unit,
					EvidenceID: evidenceOnLine(text, m[0]),
					Source:     "narrative",
				}
				continue
			}
			if !sameValue(first.Value, value) {
				diags = append(diags, models.Diagnostic{
					Code:  models.DiagLabelConflict,
					Field: lbl.metric,
					Message: fmt.Sprintf("narrative reports %s as %s and later as %s; keeping the first",
						lbl.metric, formatFloat(first.Value), formatFloat(value)),
				})
			}
		}
		if first != nil {
			metrics = append(metrics, *first)
		}
	}

	return metrics, diags
}

// evidenceOnLine returns the evidence tag on the same line as offset, if any.
func evidenceOnLine(text string, offset int) string {
	start := strings.LastIndexByte(text[:offset], '\n') + 1
	end := strings.IndexByte(text[offset:], '\n')
	if end < 0 {
		end = len(text)
	} else {
		end += offset
	}
	if m := reEvidenceTag.FindStringSubmatch(text[start:end]); m != nil {
		return m[1]
	}
	return ""
}

// extractSections splits the narrative on ATX headings, skipping fenced code.
// Returns sections in document order with unique ids.
func extractSections(text string) ([]models.Section, []models.Diagnostic) {
	sections := []models.Section{}
	diags := []models.Diagnostic{}
	used := make(map[string]int)
	emitted := make(map[string]bool)

	var (
		current *models.Section
		body    []string
		inFence bool
	)

	flush := func() {
		if current == nil {
			body = nil
			return
		}
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		sections = append(sections, *current)
		body = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if reFence.MatchString(line) {
			inFence = !inFence
			body = append(body, line)
			continue
		}
		m := reHeading.FindStringSubmatch(line)
		if inFence || m == nil {
			body = append(body, line)
			continue
		}

		flush()
		title := cleanTitle(m[2])
		level := models.SectionTop
		if len(m[1]) >= 3 {
			level = models.SectionSub
		}

		base := sectionID(title)
		id := base
		if emitted[id] {
			n := used[base] + 1
			for emitted[fmt.Sprintf("%s_%d", base, n)] {
				n++
			}
			id = fmt.Sprintf("%s_%d", base, n)
			diags = append(diags, models.Diagnostic{
				Code:    models.DiagDuplicateSectionID,
				Field:   base,
				Message: fmt.Sprintf("heading %q repeats; assigned id %q", title, id),
			})
		}
		used[base]++
		emitted[id] = true

		current = &models.Section{
			ID:         id,
			Title:      title,
			Level:      level,
			Capability: capability.Classify(title),
		}
	}
	flush()

	return sections, diags
}

func cleanTitle(raw string) string {
	t := reMarkup.ReplaceAllString(raw, "")
	t = reLeadingJunk.ReplaceAllString(t, "")
	return strings.TrimSpace(t)
}

// sectionID maps well-known descriptive headings to canonical ids and
// slugifies everything else.
func sectionID(title string) string {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "data overview") || lower == "overview" || strings.Contains(lower, "dataset overview"):
		return SectionDataOverview
	case strings.Contains(lower, "data quality") || lower == "quality" || strings.HasPrefix(lower, "quality "):
		return SectionQuality
	}
	slug := strings.Trim(reNonSlug.ReplaceAllString(lower, "_"), "_")
	if slug == "" {
		return "section"
	}
	return slug
}

// extractPersonas reads persona sections ("Persona 1: Name") and their labeled size and share.
func extractPersonas(sections []models.Section) []models.Persona {
	personas := []models.Persona{}
	for _, s := range sections {
		m := rePersonaTitle.FindStringSubmatch(s.Title)
		if m == nil {
			continue
		}
		p := models.Persona{Name: strings.TrimSpace(m[1])}
		if sm := rePersonaSize.FindStringSubmatch(s.Body); sm != nil {
			if v, ok := parseNumber(sm[1]); ok && v >= 0 && v == math.Trunc(v) {
				size := int(v)
				p.Size = &size
			}
		}
		if sm := rePersonaShare.FindStringSubmatch(s.Body); sm != nil {
			if v, ok := parseNumber(sm[1]); ok && v >= 0 && v <= 100 {
				p.SharePct = &v
			}
		}
		p.Description = firstProseLine(s.Body)
		personas = append(personas, p)
	}
	return personas
}

// firstProseLine returns the first body line that is not a labeled value or list marker.
func firstProseLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		l := strings.TrimSpace(line)
		if l == "" || strings.HasPrefix(l, "-") || strings.HasPrefix(l, "*") || strings.HasPrefix(l, "|") {
			continue
		}
		if rePersonaSize.MatchString(l) || rePersonaShare.MatchString(l) {
			continue
		}
		return l
	}
	return ""
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func sameValue(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
