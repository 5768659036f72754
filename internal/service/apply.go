package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/portsight/portsight-back/internal/domain"
	"github.com/portsight/portsight-back/internal/repository"
)

var (
	// ErrMissingPayload signals an apply request without data_to_update.
	ErrMissingPayload = errors.New("data_to_update is required")

	// ErrInvalidPayload signals a data_to_update body that does not match
	// the entity's update schema.
	ErrInvalidPayload = errors.New("invalid data_to_update payload")
)

// ApplyService is the review gate: the only path by which AI-drafted
// content becomes canonical data. Each entity kind has an explicit
// schema of optional fields; a field is promoted only when its name is
// approved AND a value is present in the payload.
type ApplyService struct {
	entities repository.EntitiesRepository
	logger   *log.Logger
	now      func() time.Time
}

func NewApplyService(entities repository.EntitiesRepository, logger *log.Logger) *ApplyService {
	return &ApplyService{
		entities: entities,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PortUpdate is the reviewable field schema for ports. Field names match
// the wire names callers list in approved_fields.
type PortUpdate struct {
	Name           *string  `json:"name"`
	UNLocode       *string  `json:"unlocode"`
	Country        *string  `json:"country"`
	Region         *string  `json:"region"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	PortAuthority  *string  `json:"port_authority"`
	AnnualTEU      *int64   `json:"annual_teu"`
	CargoTypes     []string `json:"cargo_types"`
	StrategicNotes *string  `json:"strategic_notes"`

	LastDeepResearchAt      *time.Time `json:"last_deep_research_at"`
	LastDeepResearchSummary *string    `json:"last_deep_research_summary"`
}

type TerminalUpdate struct {
	Name              *string  `json:"name"`
	OperatorID        *string  `json:"operator_id"`
	BerthCount        *int     `json:"berth_count"`
	MaxDraftMeters    *float64 `json:"max_draft_meters"`
	CraneCount        *int     `json:"crane_count"`
	AnnualCapacityTEU *int64   `json:"annual_capacity_teu"`
	CargoTypes        []string `json:"cargo_types"`

	LastDeepResearchAt      *time.Time `json:"last_deep_research_at"`
	LastDeepResearchSummary *string    `json:"last_deep_research_summary"`
}

type OperatorUpdate struct {
	Name                 *string  `json:"name"`
	HeadquartersCountry  *string  `json:"headquarters_country"`
	ParentCompany        *string  `json:"parent_company"`
	TerminalsOperated    *int     `json:"terminals_operated"`
	CountriesOfOperation []string `json:"countries_of_operation"`
	Competitors          []string `json:"competitors"`
	StrategicNotes       *string  `json:"strategic_notes"`

	LastDeepResearchAt      *time.Time `json:"last_deep_research_at"`
	LastDeepResearchSummary *string    `json:"last_deep_research_summary"`
}

// ApplyPort promotes approved fields from data onto the port record.
func (s *ApplyService) ApplyPort(
	ctx context.Context,
	portID string,
	data json.RawMessage,
	approvedFields []string,
) (*domain.Port, error) {
	update, err := decodeUpdate[PortUpdate](data)
	if err != nil {
		return nil, err
	}

	port, err := s.entities.GetPort(ctx, portID)
	if err != nil {
		return nil, err
	}

	approved := toSet(approvedFields)
	applyValue(approved, "name", update.Name, &port.Name)
	applyValue(approved, "unlocode", update.UNLocode, &port.UNLocode)
	applyValue(approved, "country", update.Country, &port.Country)
	applyValue(approved, "region", update.Region, &port.Region)
	applyValue(approved, "latitude", update.Latitude, &port.Latitude)
	applyValue(approved, "longitude", update.Longitude, &port.Longitude)
	applyValue(approved, "port_authority", update.PortAuthority, &port.PortAuthority)
	applyValue(approved, "annual_teu", update.AnnualTEU, &port.AnnualTEU)
	applyList(approved, "cargo_types", update.CargoTypes, &port.CargoTypes)
	applyValue(approved, "strategic_notes", update.StrategicNotes, &port.StrategicNotes)

	s.stampReview(&port.Research, update.LastDeepResearchAt, update.LastDeepResearchSummary)

	if err := s.entities.UpdatePort(ctx, port); err != nil {
		return nil, fmt.Errorf("update port: %w", err)
	}
	if s.logger != nil {
		s.logger.Printf("research applied type=port entity_id=%s approved=%d", portID, len(approvedFields))
	}
	return port, nil
}

// ApplyTerminal promotes approved fields from data onto the terminal record.
func (s *ApplyService) ApplyTerminal(
	ctx context.Context,
	terminalID string,
	data json.RawMessage,
	approvedFields []string,
) (*domain.Terminal, error) {
	update, err := decodeUpdate[TerminalUpdate](data)
	if err != nil {
		return nil, err
	}

	terminal, err := s.entities.GetTerminal(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	approved := toSet(approvedFields)
	applyValue(approved, "name", update.Name, &terminal.Name)
	applyValue(approved, "operator_id", update.OperatorID, &terminal.OperatorID)
	applyValue(approved, "berth_count", update.BerthCount, &terminal.BerthCount)
	applyValue(approved, "max_draft_meters", update.MaxDraftMeters, &terminal.MaxDraftMeters)
	applyValue(approved, "crane_count", update.CraneCount, &terminal.CraneCount)
	applyValue(approved, "annual_capacity_teu", update.AnnualCapacityTEU, &terminal.AnnualCapacityTEU)
	applyList(approved, "cargo_types", update.CargoTypes, &terminal.CargoTypes)

	s.stampReview(&terminal.Research, update.LastDeepResearchAt, update.LastDeepResearchSummary)

	if err := s.entities.UpdateTerminal(ctx, terminal); err != nil {
		return nil, fmt.Errorf("update terminal: %w", err)
	}
	if s.logger != nil {
		s.logger.Printf("research applied type=terminal entity_id=%s approved=%d", terminalID, len(approvedFields))
	}
	return terminal, nil
}

// ApplyOperator promotes approved fields from data onto the operator record.
func (s *ApplyService) ApplyOperator(
	ctx context.Context,
	operatorID string,
	data json.RawMessage,
	approvedFields []string,
) (*domain.TerminalOperator, error) {
	update, err := decodeUpdate[OperatorUpdate](data)
	if err != nil {
		return nil, err
	}

	operator, err := s.entities.GetOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	approved := toSet(approvedFields)
	applyValue(approved, "name", update.Name, &operator.Name)
	applyValue(approved, "headquarters_country", update.HeadquartersCountry, &operator.HeadquartersCountry)
	applyValue(approved, "parent_company", update.ParentCompany, &operator.ParentCompany)
	applyValue(approved, "terminals_operated", update.TerminalsOperated, &operator.TerminalsOperated)
	applyList(approved, "countries_of_operation", update.CountriesOfOperation, &operator.CountriesOfOperation)
	applyList(approved, "competitors", update.Competitors, &operator.Competitors)
	applyValue(approved, "strategic_notes", update.StrategicNotes, &operator.StrategicNotes)

	s.stampReview(&operator.Research, update.LastDeepResearchAt, update.LastDeepResearchSummary)

	if err := s.entities.UpdateOperator(ctx, operator); err != nil {
		return nil, fmt.Errorf("update operator: %w", err)
	}
	if s.logger != nil {
		s.logger.Printf("research applied type=terminal_operator entity_id=%s approved=%d", operatorID, len(approvedFields))
	}
	return operator, nil
}

// stampReview records the review moment on the entity regardless of the
// approved set: these are bookkeeping fields, not gated canonical data.
func (s *ApplyService) stampReview(draft *domain.ResearchDraft, at *time.Time, summary *string) {
	stamped := s.now()
	if at != nil {
		stamped = *at
	}
	draft.LastDeepResearchAt = &stamped

	if summary != nil {
		draft.LastDeepResearchSummary = *summary
	} else {
		draft.LastDeepResearchSummary = ""
	}
}

func decodeUpdate[T any](data json.RawMessage) (*T, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, ErrMissingPayload
	}
	var update T
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &update, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		set[value] = true
	}
	return set
}

func applyValue[T any](approved map[string]bool, field string, value *T, target *T) {
	if approved[field] && value != nil {
		*target = *value
	}
}

func applyList(approved map[string]bool, field string, value []string, target *[]string) {
	if approved[field] && value != nil {
		*target = append([]string(nil), value...)
	}
}
