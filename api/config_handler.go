// Configuration and strategy catalogue endpoints.

package api

import (
	"net/http"

	"github.com/seenimoa/trendbench/internal/backtest"
)

// StrategyInfo describes one built-in strategy.
type StrategyInfo struct {
	Name     string          `json:"name"`
	Default  bool            `json:"default"`
	Defaults backtest.Params `json:"defaults"`
}

// handleGetConfig returns the running configuration.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.cfg})
}

// handleStrategies lists the strategies POST /backtest accepts. The
// configured strategy is flagged as the default.
func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	names := backtest.BuiltinStrategies()
	infos := make([]StrategyInfo, len(names))
	for i, name := range names {
		infos[i] = StrategyInfo{
			Name:     name,
			Default:  name == s.cfg.Strategy.Name,
			Defaults: backtest.DefaultParams(),
		}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: infos})
}
