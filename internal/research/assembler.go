package research

import (
	"fmt"
	"strings"

	"github.com/portsight/portsight-back/internal/domain"
)

const maxSummaryLength = 280

// failedSectionBody marks a category whose query failed. Headers are
// emitted unconditionally so downstream consumers can count expected vs
// found sections without parsing ambiguity.
func failedSectionBody(reason string) string {
	if strings.TrimSpace(reason) == "" {
		reason = "no result returned"
	}
	return fmt.Sprintf("_Research unavailable: %s_", reason)
}

// Assemble merges per-category results into the canonical multi-section
// report and a short summary. Section order follows the closed section
// list for the entity type, never result arrival order.
func Assemble(entityType domain.EntityType, results []QueryResult) (report string, summary string) {
	byCategory := make(map[string]QueryResult, len(results))
	for _, result := range results {
		byCategory[result.Category] = result
	}

	var builder strings.Builder
	for _, section := range Sections(entityType) {
		builder.WriteString("## ")
		builder.WriteString(section.Header)
		builder.WriteString("\n\n")

		result, ok := byCategory[section.Category]
		switch {
		case !ok:
			builder.WriteString(failedSectionBody("no result returned"))
		case result.Failed:
			builder.WriteString(failedSectionBody(result.FailureReason))
		default:
			builder.WriteString(strings.TrimSpace(result.Text))
		}
		builder.WriteString("\n\n")

		if summary == "" && ok && !result.Failed {
			summary = summarize(result.Text)
		}
	}

	return strings.TrimSpace(builder.String()) + "\n", summary
}

// summarize extracts a scannable digest: the lead sentence of the first
// successful section, clamped.
func summarize(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	if index := strings.IndexAny(trimmed, "\n"); index > 0 {
		trimmed = strings.TrimSpace(trimmed[:index])
	}
	if index := strings.Index(trimmed, ". "); index > 0 {
		trimmed = trimmed[:index+1]
	}

	if len(trimmed) > maxSummaryLength {
		cut := trimmed[:maxSummaryLength]
		if space := strings.LastIndex(cut, " "); space > 0 {
			cut = cut[:space]
		}
		trimmed = cut + "…"
	}
	return trimmed
}
