package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/portsight/portsight-back/internal/domain"
)

// EntitiesRepository abstracts persistence for the researched entities
// and their clusters. Research jobs touch only the draft fields here;
// canonical fields change only through the apply gate's Update calls.
type EntitiesRepository interface {
	GetPort(ctx context.Context, id string) (*domain.Port, error)
	GetTerminal(ctx context.Context, id string) (*domain.Terminal, error)
	GetOperator(ctx context.Context, id string) (*domain.TerminalOperator, error)
	GetCluster(ctx context.Context, id string) (*domain.PortCluster, error)

	ListPorts(ctx context.Context) ([]*domain.Port, error)
	ListTerminals(ctx context.Context) ([]*domain.Terminal, error)
	ListOperators(ctx context.Context) ([]*domain.TerminalOperator, error)
	ListClusters(ctx context.Context) ([]*domain.PortCluster, error)

	// ClearResearchDraft nulls the draft fields so stale content is never
	// shown next to an in-flight job.
	ClearResearchDraft(ctx context.Context, entityType domain.EntityType, id string) error

	// SaveResearchDraft writes the assembled report, summary and timestamp.
	SaveResearchDraft(ctx context.Context, entityType domain.EntityType, id string, draft domain.ResearchDraft) error

	UpdatePort(ctx context.Context, port *domain.Port) error
	UpdateTerminal(ctx context.Context, terminal *domain.Terminal) error
	UpdateOperator(ctx context.Context, operator *domain.TerminalOperator) error
}

// MemoryEntitiesRepository backs local development and tests.
type MemoryEntitiesRepository struct {
	mu        sync.RWMutex
	ports     map[string]*domain.Port
	terminals map[string]*domain.Terminal
	operators map[string]*domain.TerminalOperator
	clusters  map[string]*domain.PortCluster
}

func NewMemoryEntitiesRepository() *MemoryEntitiesRepository {
	return &MemoryEntitiesRepository{
		ports:     make(map[string]*domain.Port),
		terminals: make(map[string]*domain.Terminal),
		operators: make(map[string]*domain.TerminalOperator),
		clusters:  make(map[string]*domain.PortCluster),
	}
}

// SeedPort and friends are intended for dev bootstrapping and tests.
func (r *MemoryEntitiesRepository) SeedPort(port *domain.Port) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ports[port.ID] = clonePort(port)
}

func (r *MemoryEntitiesRepository) SeedTerminal(terminal *domain.Terminal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminals[terminal.ID] = cloneTerminal(terminal)
}

func (r *MemoryEntitiesRepository) SeedOperator(operator *domain.TerminalOperator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operators[operator.ID] = cloneOperator(operator)
}

func (r *MemoryEntitiesRepository) SeedCluster(cluster *domain.PortCluster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *cluster
	clone.PortIDs = append([]string(nil), cluster.PortIDs...)
	r.clusters[cluster.ID] = &clone
}

func (r *MemoryEntitiesRepository) GetPort(_ context.Context, id string) (*domain.Port, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	port, ok := r.ports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePort(port), nil
}

func (r *MemoryEntitiesRepository) GetTerminal(_ context.Context, id string) (*domain.Terminal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	terminal, ok := r.terminals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTerminal(terminal), nil
}

func (r *MemoryEntitiesRepository) GetOperator(_ context.Context, id string) (*domain.TerminalOperator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	operator, ok := r.operators[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOperator(operator), nil
}

func (r *MemoryEntitiesRepository) GetCluster(_ context.Context, id string) (*domain.PortCluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cluster, ok := r.clusters[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *cluster
	clone.PortIDs = append([]string(nil), cluster.PortIDs...)
	return &clone, nil
}

func (r *MemoryEntitiesRepository) ListPorts(_ context.Context) ([]*domain.Port, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ports := make([]*domain.Port, 0, len(r.ports))
	for _, port := range r.ports {
		ports = append(ports, clonePort(port))
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

func (r *MemoryEntitiesRepository) ListTerminals(_ context.Context) ([]*domain.Terminal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	terminals := make([]*domain.Terminal, 0, len(r.terminals))
	for _, terminal := range r.terminals {
		terminals = append(terminals, cloneTerminal(terminal))
	}
	sort.Slice(terminals, func(i, j int) bool { return terminals[i].Name < terminals[j].Name })
	return terminals, nil
}

func (r *MemoryEntitiesRepository) ListOperators(_ context.Context) ([]*domain.TerminalOperator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	operators := make([]*domain.TerminalOperator, 0, len(r.operators))
	for _, operator := range r.operators {
		operators = append(operators, cloneOperator(operator))
	}
	sort.Slice(operators, func(i, j int) bool { return operators[i].Name < operators[j].Name })
	return operators, nil
}

func (r *MemoryEntitiesRepository) ListClusters(_ context.Context) ([]*domain.PortCluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clusters := make([]*domain.PortCluster, 0, len(r.clusters))
	for _, cluster := range r.clusters {
		clone := *cluster
		clone.PortIDs = append([]string(nil), cluster.PortIDs...)
		clusters = append(clusters, &clone)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Name < clusters[j].Name })
	return clusters, nil
}

func (r *MemoryEntitiesRepository) ClearResearchDraft(
	_ context.Context,
	entityType domain.EntityType,
	id string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	draft, err := r.draftRef(entityType, id)
	if err != nil {
		return err
	}
	*draft = domain.ResearchDraft{}
	return nil
}

func (r *MemoryEntitiesRepository) SaveResearchDraft(
	_ context.Context,
	entityType domain.EntityType,
	id string,
	value domain.ResearchDraft,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	draft, err := r.draftRef(entityType, id)
	if err != nil {
		return err
	}
	if value.LastDeepResearchAt != nil {
		at := *value.LastDeepResearchAt
		value.LastDeepResearchAt = &at
	}
	*draft = value
	return nil
}

func (r *MemoryEntitiesRepository) UpdatePort(_ context.Context, port *domain.Port) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[port.ID]; !ok {
		return ErrNotFound
	}
	r.ports[port.ID] = clonePort(port)
	return nil
}

func (r *MemoryEntitiesRepository) UpdateTerminal(_ context.Context, terminal *domain.Terminal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.terminals[terminal.ID]; !ok {
		return ErrNotFound
	}
	r.terminals[terminal.ID] = cloneTerminal(terminal)
	return nil
}

func (r *MemoryEntitiesRepository) UpdateOperator(_ context.Context, operator *domain.TerminalOperator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.operators[operator.ID]; !ok {
		return ErrNotFound
	}
	r.operators[operator.ID] = cloneOperator(operator)
	return nil
}

func (r *MemoryEntitiesRepository) draftRef(entityType domain.EntityType, id string) (*domain.ResearchDraft, error) {
	switch entityType {
	case domain.EntityPort:
		port, ok := r.ports[id]
		if !ok {
			return nil, ErrNotFound
		}
		return &port.Research, nil
	case domain.EntityTerminal:
		terminal, ok := r.terminals[id]
		if !ok {
			return nil, ErrNotFound
		}
		return &terminal.Research, nil
	case domain.EntityTerminalOperator:
		operator, ok := r.operators[id]
		if !ok {
			return nil, ErrNotFound
		}
		return &operator.Research, nil
	default:
		return nil, ErrNotFound
	}
}

func clonePort(port *domain.Port) *domain.Port {
	clone := *port
	clone.CargoTypes = append([]string(nil), port.CargoTypes...)
	clone.Research.LastDeepResearchAt = cloneTime(port.Research.LastDeepResearchAt)
	return &clone
}

func cloneTerminal(terminal *domain.Terminal) *domain.Terminal {
	clone := *terminal
	clone.CargoTypes = append([]string(nil), terminal.CargoTypes...)
	clone.Research.LastDeepResearchAt = cloneTime(terminal.Research.LastDeepResearchAt)
	return &clone
}

func cloneOperator(operator *domain.TerminalOperator) *domain.TerminalOperator {
	clone := *operator
	clone.CountriesOfOperation = append([]string(nil), operator.CountriesOfOperation...)
	clone.Competitors = append([]string(nil), operator.Competitors...)
	clone.Research.LastDeepResearchAt = cloneTime(operator.Research.LastDeepResearchAt)
	return &clone
}
