package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portsight/portsight-back/internal/domain"
)

// PostgresEntitiesRepository persists entities with pgx. String-list
// attributes are stored as JSON text columns; the encoding never leaves
// this layer.
type PostgresEntitiesRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresEntitiesRepository(pool *pgxpool.Pool) *PostgresEntitiesRepository {
	return &PostgresEntitiesRepository{pool: pool}
}

const portColumns = `id, name, unlocode, country, region, latitude, longitude, port_authority,
	annual_teu, cargo_types, strategic_notes,
	last_deep_research_at, last_deep_research_summary, last_deep_research_report`

func (r *PostgresEntitiesRepository) GetPort(ctx context.Context, id string) (*domain.Port, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+portColumns+` FROM ports WHERE id = $1`, id)
	return scanPort(row)
}

func (r *PostgresEntitiesRepository) ListPorts(ctx context.Context) ([]*domain.Port, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+portColumns+` FROM ports ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	defer rows.Close()

	ports := make([]*domain.Port, 0)
	for rows.Next() {
		port, err := scanPort(rows)
		if err != nil {
			return nil, err
		}
		ports = append(ports, port)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate ports: %w", rows.Err())
	}
	return ports, nil
}

func (r *PostgresEntitiesRepository) UpdatePort(ctx context.Context, port *domain.Port) error {
	cargoTypes, err := encodeList(port.CargoTypes)
	if err != nil {
		return err
	}
	command, err := r.pool.Exec(ctx, `
		UPDATE ports
		SET name = $2,
			unlocode = $3,
			country = $4,
			region = $5,
			latitude = $6,
			longitude = $7,
			port_authority = $8,
			annual_teu = $9,
			cargo_types = $10,
			strategic_notes = $11,
			last_deep_research_at = $12,
			last_deep_research_summary = $13
		WHERE id = $1
	`,
		port.ID,
		port.Name,
		port.UNLocode,
		port.Country,
		port.Region,
		port.Latitude,
		port.Longitude,
		port.PortAuthority,
		port.AnnualTEU,
		cargoTypes,
		port.StrategicNotes,
		port.Research.LastDeepResearchAt,
		port.Research.LastDeepResearchSummary,
	)
	if err != nil {
		return fmt.Errorf("update port: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const terminalColumns = `id, port_id, name, operator_id, berth_count, max_draft_meters, crane_count,
	annual_capacity_teu, cargo_types,
	last_deep_research_at, last_deep_research_summary, last_deep_research_report`

func (r *PostgresEntitiesRepository) GetTerminal(ctx context.Context, id string) (*domain.Terminal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+terminalColumns+` FROM terminals WHERE id = $1`, id)
	return scanTerminal(row)
}

func (r *PostgresEntitiesRepository) ListTerminals(ctx context.Context) ([]*domain.Terminal, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+terminalColumns+` FROM terminals ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list terminals: %w", err)
	}
	defer rows.Close()

	terminals := make([]*domain.Terminal, 0)
	for rows.Next() {
		terminal, err := scanTerminal(rows)
		if err != nil {
			return nil, err
		}
		terminals = append(terminals, terminal)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate terminals: %w", rows.Err())
	}
	return terminals, nil
}

func (r *PostgresEntitiesRepository) UpdateTerminal(ctx context.Context, terminal *domain.Terminal) error {
	cargoTypes, err := encodeList(terminal.CargoTypes)
	if err != nil {
		return err
	}
	command, err := r.pool.Exec(ctx, `
		UPDATE terminals
		SET name = $2,
			operator_id = $3,
			berth_count = $4,
			max_draft_meters = $5,
			crane_count = $6,
			annual_capacity_teu = $7,
			cargo_types = $8,
			last_deep_research_at = $9,
			last_deep_research_summary = $10
		WHERE id = $1
	`,
		terminal.ID,
		terminal.Name,
		terminal.OperatorID,
		terminal.BerthCount,
		terminal.MaxDraftMeters,
		terminal.CraneCount,
		terminal.AnnualCapacityTEU,
		cargoTypes,
		terminal.Research.LastDeepResearchAt,
		terminal.Research.LastDeepResearchSummary,
	)
	if err != nil {
		return fmt.Errorf("update terminal: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const operatorColumns = `id, name, headquarters_country, parent_company, terminals_operated,
	countries_of_operation, competitors, strategic_notes,
	last_deep_research_at, last_deep_research_summary, last_deep_research_report`

func (r *PostgresEntitiesRepository) GetOperator(ctx context.Context, id string) (*domain.TerminalOperator, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+operatorColumns+` FROM terminal_operators WHERE id = $1`, id)
	return scanOperator(row)
}

func (r *PostgresEntitiesRepository) ListOperators(ctx context.Context) ([]*domain.TerminalOperator, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+operatorColumns+` FROM terminal_operators ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	defer rows.Close()

	operators := make([]*domain.TerminalOperator, 0)
	for rows.Next() {
		operator, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		operators = append(operators, operator)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate operators: %w", rows.Err())
	}
	return operators, nil
}

func (r *PostgresEntitiesRepository) UpdateOperator(ctx context.Context, operator *domain.TerminalOperator) error {
	countries, err := encodeList(operator.CountriesOfOperation)
	if err != nil {
		return err
	}
	competitors, err := encodeList(operator.Competitors)
	if err != nil {
		return err
	}
	command, err := r.pool.Exec(ctx, `
		UPDATE terminal_operators
		SET name = $2,
			headquarters_country = $3,
			parent_company = $4,
			terminals_operated = $5,
			countries_of_operation = $6,
			competitors = $7,
			strategic_notes = $8,
			last_deep_research_at = $9,
			last_deep_research_summary = $10
		WHERE id = $1
	`,
		operator.ID,
		operator.Name,
		operator.HeadquartersCountry,
		operator.ParentCompany,
		operator.TerminalsOperated,
		countries,
		competitors,
		operator.StrategicNotes,
		operator.Research.LastDeepResearchAt,
		operator.Research.LastDeepResearchSummary,
	)
	if err != nil {
		return fmt.Errorf("update operator: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresEntitiesRepository) GetCluster(ctx context.Context, id string) (*domain.PortCluster, error) {
	var (
		cluster domain.PortCluster
		portIDs string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, region, port_ids FROM port_clusters WHERE id = $1
	`, id).Scan(&cluster.ID, &cluster.Name, &cluster.Region, &portIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query cluster: %w", err)
	}
	cluster.PortIDs, err = decodeList(portIDs)
	if err != nil {
		return nil, err
	}
	return &cluster, nil
}

func (r *PostgresEntitiesRepository) ListClusters(ctx context.Context) ([]*domain.PortCluster, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, region, port_ids FROM port_clusters ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	clusters := make([]*domain.PortCluster, 0)
	for rows.Next() {
		var (
			cluster domain.PortCluster
			portIDs string
		)
		if err := rows.Scan(&cluster.ID, &cluster.Name, &cluster.Region, &portIDs); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		cluster.PortIDs, err = decodeList(portIDs)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, &cluster)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate clusters: %w", rows.Err())
	}
	return clusters, nil
}

func (r *PostgresEntitiesRepository) ClearResearchDraft(
	ctx context.Context,
	entityType domain.EntityType,
	id string,
) error {
	table, err := entityTable(entityType)
	if err != nil {
		return err
	}
	command, err := r.pool.Exec(ctx, `
		UPDATE `+table+`
		SET last_deep_research_at = NULL,
			last_deep_research_summary = NULL,
			last_deep_research_report = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("clear research draft: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresEntitiesRepository) SaveResearchDraft(
	ctx context.Context,
	entityType domain.EntityType,
	id string,
	draft domain.ResearchDraft,
) error {
	table, err := entityTable(entityType)
	if err != nil {
		return err
	}
	command, err := r.pool.Exec(ctx, `
		UPDATE `+table+`
		SET last_deep_research_at = $2,
			last_deep_research_summary = $3,
			last_deep_research_report = $4
		WHERE id = $1
	`, id, draft.LastDeepResearchAt, draft.LastDeepResearchSummary, draft.LastDeepResearchReport)
	if err != nil {
		return fmt.Errorf("save research draft: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func entityTable(entityType domain.EntityType) (string, error) {
	switch entityType {
	case domain.EntityPort:
		return "ports", nil
	case domain.EntityTerminal:
		return "terminals", nil
	case domain.EntityTerminalOperator:
		return "terminal_operators", nil
	default:
		return "", fmt.Errorf("unknown entity type: %s", entityType)
	}
}

func scanPort(row pgx.Row) (*domain.Port, error) {
	var (
		port       domain.Port
		cargoTypes string
		draft      draftColumns
	)
	err := row.Scan(
		&port.ID,
		&port.Name,
		&port.UNLocode,
		&port.Country,
		&port.Region,
		&port.Latitude,
		&port.Longitude,
		&port.PortAuthority,
		&port.AnnualTEU,
		&cargoTypes,
		&port.StrategicNotes,
		&draft.at,
		&draft.summary,
		&draft.report,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan port: %w", err)
	}
	port.CargoTypes, err = decodeList(cargoTypes)
	if err != nil {
		return nil, err
	}
	port.Research = draft.toDomain()
	return &port, nil
}

func scanTerminal(row pgx.Row) (*domain.Terminal, error) {
	var (
		terminal   domain.Terminal
		cargoTypes string
		draft      draftColumns
	)
	err := row.Scan(
		&terminal.ID,
		&terminal.PortID,
		&terminal.Name,
		&terminal.OperatorID,
		&terminal.BerthCount,
		&terminal.MaxDraftMeters,
		&terminal.CraneCount,
		&terminal.AnnualCapacityTEU,
		&cargoTypes,
		&draft.at,
		&draft.summary,
		&draft.report,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan terminal: %w", err)
	}
	terminal.CargoTypes, err = decodeList(cargoTypes)
	if err != nil {
		return nil, err
	}
	terminal.Research = draft.toDomain()
	return &terminal, nil
}

func scanOperator(row pgx.Row) (*domain.TerminalOperator, error) {
	var (
		operator    domain.TerminalOperator
		countries   string
		competitors string
		draft       draftColumns
	)
	err := row.Scan(
		&operator.ID,
		&operator.Name,
		&operator.HeadquartersCountry,
		&operator.ParentCompany,
		&operator.TerminalsOperated,
		&countries,
		&competitors,
		&operator.StrategicNotes,
		&draft.at,
		&draft.summary,
		&draft.report,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan operator: %w", err)
	}
	operator.CountriesOfOperation, err = decodeList(countries)
	if err != nil {
		return nil, err
	}
	operator.Competitors, err = decodeList(competitors)
	if err != nil {
		return nil, err
	}
	operator.Research = draft.toDomain()
	return &operator, nil
}

type draftColumns struct {
	at      *time.Time
	summary *string
	report  *string
}

func (d draftColumns) toDomain() domain.ResearchDraft {
	draft := domain.ResearchDraft{LastDeepResearchAt: d.at}
	if d.summary != nil {
		draft.LastDeepResearchSummary = *d.summary
	}
	if d.report != nil {
		draft.LastDeepResearchReport = *d.report
	}
	return draft
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode string list: %w", err)
	}
	return string(encoded), nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	return values, nil
}
