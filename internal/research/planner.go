package research

import (
	"fmt"
	"strings"

	"github.com/portsight/portsight-back/internal/domain"
)

// ModelTier is the planner's cost/authority hint. The executor resolves
// tiers to concrete provider models from configuration.
type ModelTier string

const (
	TierStandard ModelTier = "standard"
	// TierPremium reserves the stronger (slower, costlier) model for
	// categories that need official-authority precision.
	TierPremium ModelTier = "premium"
)

// QueryConfig is one planned provider query. Ephemeral; never persisted.
type QueryConfig struct {
	Category     string
	Header       string
	Query        string
	Priority     int
	Tier         ModelTier
	SystemPrompt string
}

// Section pairs a category with its canonical report header. The set is
// closed per entity type; the assembler emits every section whether or
// not its query succeeded.
type Section struct {
	Category string
	Header   string
}

const (
	CategoryPortGovernance = "governance"
	CategoryPortISPS       = "isps_risk"
	CategoryPortStrategic  = "strategic"

	CategoryTerminalLocation = "location"
	CategoryTerminalCapacity = "capacity"

	CategoryOperatorProfile   = "profile"
	CategoryOperatorPortfolio = "portfolio"
	CategoryOperatorOutlook   = "outlook"
)

var portSections = []Section{
	{CategoryPortGovernance, "Port Governance & Authority"},
	{CategoryPortISPS, "ISPS Risk & Enforcement"},
	{CategoryPortStrategic, "Strategic Intelligence"},
}

var terminalSections = []Section{
	{CategoryTerminalLocation, "Location & Connectivity"},
	{CategoryTerminalCapacity, "Capacity & Operations"},
}

var operatorSections = []Section{
	{CategoryOperatorProfile, "Corporate Profile"},
	{CategoryOperatorPortfolio, "Terminal Portfolio"},
	{CategoryOperatorOutlook, "Strategic Outlook"},
}

// Sections returns the canonical section list for an entity type.
// Unknown types are a caller contract violation.
func Sections(entityType domain.EntityType) []Section {
	switch entityType {
	case domain.EntityPort:
		return portSections
	case domain.EntityTerminal:
		return terminalSections
	case domain.EntityTerminalOperator:
		return operatorSections
	default:
		panic(fmt.Sprintf("research: unknown entity type %q", entityType))
	}
}

const analystSystemPrompt = "You are a maritime infrastructure analyst. Answer with verifiable, " +
	"source-grounded facts and state clearly when information is uncertain or unavailable."

const governanceSystemPrompt = "You are a maritime governance researcher. Prefer official port " +
	"authority publications, government registries and regulatory filings over news coverage."

// Plan produces the ordered query set for one entity. Pure and
// deterministic: same inputs, same plan. It cannot fail; an unknown
// entity type panics because the closed set is a compile-time contract.
func Plan(entityType domain.EntityType, entity domain.EntityContext) []QueryConfig {
	switch entityType {
	case domain.EntityPort:
		return planPort(entity)
	case domain.EntityTerminal:
		return planTerminal(entity)
	case domain.EntityTerminalOperator:
		return planOperator(entity)
	default:
		panic(fmt.Sprintf("research: unknown entity type %q", entityType))
	}
}

func planPort(entity domain.EntityContext) []QueryConfig {
	subject := entity.Name
	if entity.Country != "" {
		subject = fmt.Sprintf("%s (%s)", entity.Name, entity.Country)
	}
	locode := ""
	if entity.UNLocode != "" {
		locode = fmt.Sprintf(" UN/LOCODE %s.", entity.UNLocode)
	}

	return []QueryConfig{
		{
			Category: CategoryPortGovernance,
			Header:   portSections[0].Header,
			Query: fmt.Sprintf(
				"Who governs and operates the port of %s?%s Identify the port authority, its ownership model, "+
					"key concession holders and any recent governance changes.",
				subject, locode,
			),
			Priority:     1,
			Tier:         TierPremium,
			SystemPrompt: governanceSystemPrompt,
		},
		{
			Category: CategoryPortISPS,
			Header:   portSections[1].Header,
			Query: fmt.Sprintf(
				"Summarize the ISPS security posture of the port of %s: compliance status, known enforcement "+
					"actions, smuggling or sanction incidents, and flag-state inspection findings.",
				subject,
			),
			Priority:     2,
			Tier:         TierStandard,
			SystemPrompt: analystSystemPrompt,
		},
		{
			Category: CategoryPortStrategic,
			Header:   portSections[2].Header,
			Query: fmt.Sprintf(
				"What is the strategic significance of the port of %s? Cover trade lanes served, hinterland "+
					"connections, foreign investment, expansion projects and competitive pressures in %s.",
				subject, regionOrDefault(entity.Region),
			),
			Priority:     3,
			Tier:         TierStandard,
			SystemPrompt: analystSystemPrompt,
		},
	}
}

func planTerminal(entity domain.EntityContext) []QueryConfig {
	subject := entity.Name
	if entity.PortName != "" {
		subject = fmt.Sprintf("%s at the port of %s", entity.Name, entity.PortName)
	}

	return []QueryConfig{
		{
			Category: CategoryTerminalLocation,
			Header:   terminalSections[0].Header,
			Query: fmt.Sprintf(
				"Describe the location and connectivity of the terminal %s: berth layout, water depth, "+
					"rail and road links, and proximity to anchorage and pilot stations.",
				subject,
			),
			Priority:     1,
			Tier:         TierStandard,
			SystemPrompt: analystSystemPrompt,
		},
		{
			Category: CategoryTerminalCapacity,
			Header:   terminalSections[1].Header,
			Query: fmt.Sprintf(
				"Detail the capacity and operations of the terminal %s: annual throughput, crane inventory, "+
					"cargo types handled, operating hours and recent or planned capacity expansions.",
				subject,
			),
			Priority:     2,
			Tier:         TierStandard,
			SystemPrompt: analystSystemPrompt,
		},
	}
}

func planOperator(entity domain.EntityContext) []QueryConfig {
	subject := entity.Name
	if entity.Parent != "" {
		subject = fmt.Sprintf("%s (subsidiary of %s)", entity.Name, entity.Parent)
	}

	return []QueryConfig{
		{
			Category: CategoryOperatorProfile,
			Header:   operatorSections[0].Header,
			Query: fmt.Sprintf(
				"Provide a corporate profile of the terminal operator %s: ownership structure, headquarters, "+
					"leadership, financial standing and regulatory history.",
				subject,
			),
			Priority:     1,
			Tier:         TierPremium,
			SystemPrompt: governanceSystemPrompt,
		},
		{
			Category: CategoryOperatorPortfolio,
			Header:   operatorSections[1].Header,
			Query: fmt.Sprintf(
				"List the terminal portfolio of %s: which terminals it operates, in which countries, under what "+
					"concession terms, and notable recent acquisitions or divestments.",
				subject,
			),
			Priority:     2,
			Tier:         TierStandard,
			SystemPrompt: analystSystemPrompt,
		},
		{
			Category: CategoryOperatorOutlook,
			Header:   operatorSections[2].Header,
			Query: fmt.Sprintf(
				"Assess the strategic outlook for the terminal operator %s: growth strategy, main competitors, "+
					"geopolitical exposure and automation or decarbonization initiatives.",
				subject,
			),
			Priority:     3,
			Tier:         TierStandard,
			SystemPrompt: analystSystemPrompt,
		},
	}
}

func regionOrDefault(region string) string {
	if strings.TrimSpace(region) == "" {
		return "its region"
	}
	return region
}
