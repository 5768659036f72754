package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/portsight/portsight-back/internal/domain"
	"github.com/portsight/portsight-back/internal/repository"
)

// Ports serves /v1/ports, /v1/ports/{id} and the port deep-research
// subroutes. Terminals and Operators follow the same shape.
func (api *API) Ports(w http.ResponseWriter, r *http.Request) {
	api.entityRoutes(w, r, "/v1/ports", domain.EntityPort,
		func() (any, error) {
			ports, err := api.entities.ListPorts(r.Context())
			if err != nil {
				return nil, err
			}
			items := make([]portResponse, 0, len(ports))
			for _, port := range ports {
				items = append(items, toPortResponse(port))
			}
			return items, nil
		},
		func(id string) (any, error) {
			port, err := api.entities.GetPort(r.Context(), id)
			if err != nil {
				return nil, err
			}
			return toPortResponse(port), nil
		},
	)
}

func (api *API) Terminals(w http.ResponseWriter, r *http.Request) {
	api.entityRoutes(w, r, "/v1/terminals", domain.EntityTerminal,
		func() (any, error) {
			terminals, err := api.entities.ListTerminals(r.Context())
			if err != nil {
				return nil, err
			}
			items := make([]terminalResponse, 0, len(terminals))
			for _, terminal := range terminals {
				items = append(items, toTerminalResponse(terminal))
			}
			return items, nil
		},
		func(id string) (any, error) {
			terminal, err := api.entities.GetTerminal(r.Context(), id)
			if err != nil {
				return nil, err
			}
			return toTerminalResponse(terminal), nil
		},
	)
}

func (api *API) Operators(w http.ResponseWriter, r *http.Request) {
	api.entityRoutes(w, r, "/v1/operators", domain.EntityTerminalOperator,
		func() (any, error) {
			operators, err := api.entities.ListOperators(r.Context())
			if err != nil {
				return nil, err
			}
			items := make([]operatorResponse, 0, len(operators))
			for _, operator := range operators {
				items = append(items, toOperatorResponse(operator))
			}
			return items, nil
		},
		func(id string) (any, error) {
			operator, err := api.entities.GetOperator(r.Context(), id)
			if err != nil {
				return nil, err
			}
			return toOperatorResponse(operator), nil
		},
	)
}

// Clusters serves the read-only cluster listing and detail routes.
func (api *API) Clusters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/clusters"), "/")
	if rest == "" {
		clusters, err := api.entities.ListClusters(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		items := make([]clusterResponse, 0, len(clusters))
		for _, cluster := range clusters {
			items = append(items, toClusterResponse(cluster))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
		return
	}
	if strings.Contains(rest, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "unknown cluster route")
		return
	}

	cluster, err := api.entities.GetCluster(r.Context(), rest)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "cluster not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toClusterResponse(cluster))
}

// entityRoutes dispatches the shared per-collection route shape:
// list, detail, deep-research/start and deep-research/apply.
func (api *API) entityRoutes(
	w http.ResponseWriter,
	r *http.Request,
	prefix string,
	entityType domain.EntityType,
	list func() (any, error),
	detail func(id string) (any, error),
) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "":
		api.serveList(w, r, list)
	case len(parts) == 1:
		api.serveDetail(w, r, parts[0], detail)
	case len(parts) == 3 && parts[1] == "deep-research" && parts[2] == "start":
		api.startDeepResearch(w, r, entityType, parts[0])
	case len(parts) == 3 && parts[1] == "deep-research" && parts[2] == "apply":
		api.applyDeepResearch(w, r, entityType, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "unknown route")
	}
}

func (api *API) serveList(w http.ResponseWriter, r *http.Request, list func() (any, error)) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	items, err := list()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (api *API) serveDetail(w http.ResponseWriter, r *http.Request, id string, detail func(string) (any, error)) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	item, err := detail(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type portResponse struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	UNLocode       string                `json:"unlocode,omitempty"`
	Country        string                `json:"country,omitempty"`
	Region         string                `json:"region,omitempty"`
	Latitude       float64               `json:"latitude,omitempty"`
	Longitude      float64               `json:"longitude,omitempty"`
	PortAuthority  string                `json:"port_authority,omitempty"`
	AnnualTEU      int64                 `json:"annual_teu,omitempty"`
	CargoTypes     []string              `json:"cargo_types,omitempty"`
	StrategicNotes string                `json:"strategic_notes,omitempty"`
	Research       researchDraftResponse `json:"research"`
}

func toPortResponse(port *domain.Port) portResponse {
	return portResponse{
		ID:             port.ID,
		Name:           port.Name,
		UNLocode:       port.UNLocode,
		Country:        port.Country,
		Region:         port.Region,
		Latitude:       port.Latitude,
		Longitude:      port.Longitude,
		PortAuthority:  port.PortAuthority,
		AnnualTEU:      port.AnnualTEU,
		CargoTypes:     port.CargoTypes,
		StrategicNotes: port.StrategicNotes,
		Research:       toDraftResponse(port.Research),
	}
}

type terminalResponse struct {
	ID                string                `json:"id"`
	PortID            string                `json:"port_id"`
	Name              string                `json:"name"`
	OperatorID        string                `json:"operator_id,omitempty"`
	BerthCount        int                   `json:"berth_count,omitempty"`
	MaxDraftMeters    float64               `json:"max_draft_meters,omitempty"`
	CraneCount        int                   `json:"crane_count,omitempty"`
	AnnualCapacityTEU int64                 `json:"annual_capacity_teu,omitempty"`
	CargoTypes        []string              `json:"cargo_types,omitempty"`
	Research          researchDraftResponse `json:"research"`
}

func toTerminalResponse(terminal *domain.Terminal) terminalResponse {
	return terminalResponse{
		ID:                terminal.ID,
		PortID:            terminal.PortID,
		Name:              terminal.Name,
		OperatorID:        terminal.OperatorID,
		BerthCount:        terminal.BerthCount,
		MaxDraftMeters:    terminal.MaxDraftMeters,
		CraneCount:        terminal.CraneCount,
		AnnualCapacityTEU: terminal.AnnualCapacityTEU,
		CargoTypes:        terminal.CargoTypes,
		Research:          toDraftResponse(terminal.Research),
	}
}

type operatorResponse struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	HeadquartersCountry  string                `json:"headquarters_country,omitempty"`
	ParentCompany        string                `json:"parent_company,omitempty"`
	TerminalsOperated    int                   `json:"terminals_operated,omitempty"`
	CountriesOfOperation []string              `json:"countries_of_operation,omitempty"`
	Competitors          []string              `json:"competitors,omitempty"`
	StrategicNotes       string                `json:"strategic_notes,omitempty"`
	Research             researchDraftResponse `json:"research"`
}

func toOperatorResponse(operator *domain.TerminalOperator) operatorResponse {
	return operatorResponse{
		ID:                   operator.ID,
		Name:                 operator.Name,
		HeadquartersCountry:  operator.HeadquartersCountry,
		ParentCompany:        operator.ParentCompany,
		TerminalsOperated:    operator.TerminalsOperated,
		CountriesOfOperation: operator.CountriesOfOperation,
		Competitors:          operator.Competitors,
		StrategicNotes:       operator.StrategicNotes,
		Research:             toDraftResponse(operator.Research),
	}
}

type clusterResponse struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Region  string   `json:"region,omitempty"`
	PortIDs []string `json:"port_ids"`
}

func toClusterResponse(cluster *domain.PortCluster) clusterResponse {
	return clusterResponse{
		ID:      cluster.ID,
		Name:    cluster.Name,
		Region:  cluster.Region,
		PortIDs: cluster.PortIDs,
	}
}
