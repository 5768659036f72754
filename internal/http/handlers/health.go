package handlers

import (
	"net/http"
	"time"
)

// HealthDeps reports which optional backends the process is wired to.
type HealthDeps struct {
	Postgres bool
	Redis    bool
	Provider bool
	Worker   bool
}

func (api *API) Health(deps HealthDeps) http.HandlerFunc {
	startedAt := time.Now().UTC()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"uptime_seconds": int(time.Since(startedAt).Seconds()),
			"components": map[string]bool{
				"postgres": deps.Postgres,
				"redis":    deps.Redis,
				"provider": deps.Provider,
				"worker":   deps.Worker,
			},
		})
	}
}
