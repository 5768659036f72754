package domain

import "time"

// ResearchDraft holds unreviewed AI-produced content on an entity. The
// dashboard renders it as a draft; it never feeds canonical fields
// directly — promotion goes through the apply gate.
type ResearchDraft struct {
	LastDeepResearchAt      *time.Time
	LastDeepResearchSummary string
	LastDeepResearchReport  string
}

// Port is a canonical port record plus its research draft.
type Port struct {
	ID             string
	Name           string
	UNLocode       string
	Country        string
	Region         string
	Latitude       float64
	Longitude      float64
	PortAuthority  string
	AnnualTEU      int64
	CargoTypes     []string
	StrategicNotes string

	Research ResearchDraft
}

// Terminal belongs to a port and may be run by an operator.
type Terminal struct {
	ID                string
	PortID            string
	Name              string
	OperatorID        string
	BerthCount        int
	MaxDraftMeters    float64
	CraneCount        int
	AnnualCapacityTEU int64
	CargoTypes        []string

	Research ResearchDraft
}

// TerminalOperator is a company operating one or more terminals.
type TerminalOperator struct {
	ID                   string
	Name                 string
	HeadquartersCountry  string
	ParentCompany        string
	TerminalsOperated    int
	CountriesOfOperation []string
	Competitors          []string
	StrategicNotes       string

	Research ResearchDraft
}

// PortCluster groups ports for pipeline-wide research runs.
type PortCluster struct {
	ID      string
	Name    string
	Region  string
	PortIDs []string
}

// EntityContext carries the identifying attributes the query planner
// interpolates into provider queries. It is a projection, not a record.
type EntityContext struct {
	Name     string
	Country  string
	Region   string
	UNLocode string
	PortName string
	Parent   string
}

func (p *Port) Context() EntityContext {
	return EntityContext{
		Name:     p.Name,
		Country:  p.Country,
		Region:   p.Region,
		UNLocode: p.UNLocode,
	}
}

func (t *Terminal) Context(portName string) EntityContext {
	return EntityContext{
		Name:     t.Name,
		PortName: portName,
	}
}

func (o *TerminalOperator) Context() EntityContext {
	return EntityContext{
		Name:    o.Name,
		Country: o.HeadquartersCountry,
		Parent:  o.ParentCompany,
	}
}
