package httpserver

import (
	"log"
	"net/http"

	"github.com/portsight/portsight-back/internal/http/handlers"
	"github.com/portsight/portsight-back/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Health         handlers.HealthDeps
	Logger         *log.Logger
	AuthToken      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.API.Health(deps.Health))

	mux.HandleFunc("/v1/ports", deps.API.Ports)
	mux.HandleFunc("/v1/ports/", deps.API.Ports)
	mux.HandleFunc("/v1/terminals", deps.API.Terminals)
	mux.HandleFunc("/v1/terminals/", deps.API.Terminals)
	mux.HandleFunc("/v1/operators", deps.API.Operators)
	mux.HandleFunc("/v1/operators/", deps.API.Operators)
	mux.HandleFunc("/v1/clusters", deps.API.Clusters)
	mux.HandleFunc("/v1/clusters/", deps.API.Clusters)

	mux.HandleFunc("/v1/research/pipeline/start", deps.API.PipelineStart)
	mux.HandleFunc("/v1/research/jobs/", deps.API.ResearchJobs)

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.AuthToken)(handler)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
