// Package stats exposes the passive cache counters as JSON endpoints.
package stats

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"streamedge/internal/cache"
)

// Tier couples one cache tier's counters with its current entry count.
type Tier struct {
	Stats *cache.Stats
	Size  func() int
}

type ModuleCtx struct {
	logger zerolog.Logger
	tiers  map[string]Tier
}

func New(tiers map[string]Tier) *ModuleCtx {
	return &ModuleCtx{
		logger: log.With().Str("module", "stats").Logger(),
		tiers:  tiers,
	}
}

func (m *ModuleCtx) Shutdown() {}

type tierReport struct {
	cache.StatsSnapshot
	Entries int `json:"entries"`
}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// /cache/stats reports everything, /cache/<tier>/stats one tier
	name := ""
	if parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/"); len(parts) == 3 && parts[2] == "stats" {
		name = parts[1]
	}

	report := map[string]tierReport{}
	for tierName, tier := range m.tiers {
		if name != "" && tierName != name {
			continue
		}
		report[tierName] = tierReport{
			StatsSnapshot: tier.Stats.Snapshot(),
			Entries:       tier.size(),
		}
	}

	if len(report) == 0 {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(report); err != nil {
		m.logger.Err(err).Msg("stats encode failed")
	}
}

func (t Tier) size() int {
	if t.Size == nil {
		return 0
	}
	return t.Size()
}
