package research

import (
	"strings"
	"testing"

	"github.com/portsight/portsight-back/internal/domain"
)

func TestAssembleEmitsEveryHeaderInOrder(t *testing.T) {
	results := []QueryResult{
		{Category: CategoryPortStrategic, Header: "Strategic Intelligence", Text: "Strategic body."},
		{Category: CategoryPortGovernance, Header: "Port Governance & Authority", Text: "Governance body."},
		{Category: CategoryPortISPS, Header: "ISPS Risk & Enforcement", Text: "ISPS body."},
	}

	report, _ := Assemble(domain.EntityPort, results)

	expectedOrder := []string{
		"## Port Governance & Authority",
		"## ISPS Risk & Enforcement",
		"## Strategic Intelligence",
	}
	previous := -1
	for _, header := range expectedOrder {
		index := strings.Index(report, header)
		if index < 0 {
			t.Fatalf("report missing header %q:\n%s", header, report)
		}
		if index < previous {
			t.Fatalf("header %q out of canonical order", header)
		}
		previous = index
	}
}

func TestAssembleRendersFailureMarkerUnderHeader(t *testing.T) {
	results := []QueryResult{
		{Category: CategoryTerminalLocation, Header: "Location & Connectivity", Text: "Near the river mouth."},
		{Category: CategoryTerminalCapacity, Header: "Capacity & Operations", Failed: true, FailureReason: "query timed out"},
	}

	report, summary := Assemble(domain.EntityTerminal, results)

	if !strings.Contains(report, "## Capacity & Operations") {
		t.Fatalf("failed section header must still be emitted:\n%s", report)
	}
	if !strings.Contains(report, "_Research unavailable: query timed out_") {
		t.Fatalf("expected failure marker in report:\n%s", report)
	}
	if summary != "Near the river mouth." {
		t.Fatalf("summary should come from the first successful section, got %q", summary)
	}
}

func TestAssembleAllSectionsFailed(t *testing.T) {
	results := []QueryResult{
		{Category: CategoryOperatorProfile, Failed: true, FailureReason: "upstream 503"},
		{Category: CategoryOperatorPortfolio, Failed: true, FailureReason: "upstream 503"},
		{Category: CategoryOperatorOutlook, Failed: true, FailureReason: "upstream 503"},
	}

	report, summary := Assemble(domain.EntityTerminalOperator, results)

	for _, section := range Sections(domain.EntityTerminalOperator) {
		if !strings.Contains(report, "## "+section.Header) {
			t.Fatalf("report missing header %q even though all queries failed", section.Header)
		}
	}
	if strings.Count(report, "_Research unavailable:") != 3 {
		t.Fatalf("expected 3 failure markers:\n%s", report)
	}
	if summary != "" {
		t.Fatalf("summary must be empty when no section succeeded, got %q", summary)
	}
}

func TestAssembleMissingCategoryBecomesFailureMarker(t *testing.T) {
	report, _ := Assemble(domain.EntityTerminal, []QueryResult{
		{Category: CategoryTerminalLocation, Text: "Body."},
	})

	if !strings.Contains(report, "_Research unavailable: no result returned_") {
		t.Fatalf("absent category should render the default marker:\n%s", report)
	}
}

func TestSummarizeClampsLongLeadSentence(t *testing.T) {
	long := strings.Repeat("word ", 120)
	summary := summarize(long)
	if len(summary) > maxSummaryLength+len("…") {
		t.Fatalf("summary exceeds clamp: %d chars", len(summary))
	}
	if !strings.HasSuffix(summary, "…") {
		t.Fatalf("clamped summary should end with ellipsis, got %q", summary)
	}
}

func TestSummarizeTakesFirstSentence(t *testing.T) {
	summary := summarize("First sentence. Second sentence follows.\nAnother line.")
	if summary != "First sentence." {
		t.Fatalf("expected lead sentence, got %q", summary)
	}
}
