// Package httpstatus exposes a small read-only HTTP surface over the
// runtime's registries: a liveness probe and a JSON metrics snapshot. It
// never accepts writes and holds no state of its own beyond what Sources
// reports at request time.
package httpstatus

import (
	"encoding/json"
	"net/http"

	"github.com/flowcore/swarmbus/peering"
	"github.com/go-chi/chi/v5"
)

// AgentRegistry is the narrow surface httpstatus needs from agentbus.Bus.
type AgentRegistry interface {
	ChannelMembers(channel string) []string
	RoleMembers(role string) []string
}

// Sources bundles the read-only views exposed over HTTP.
type Sources struct {
	Agents     AgentRegistry
	Peering    *peering.Coordinator
	Channels   []string // channel names to report membership counts for
	Roles      []string // role names to report membership counts for
}

// NewRouter builds a chi.Router serving /healthz and /metrics over src.
func NewRouter(src Sources) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		snapshot := buildSnapshot(src)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(snapshot)
	})

	return r
}

// MetricsSnapshot is the JSON body served by /metrics.
type MetricsSnapshot struct {
	ChannelMemberCounts map[string]int        `json:"channelMemberCounts,omitempty"`
	RoleMemberCounts    map[string]int        `json:"roleMemberCounts,omitempty"`
	Network             peering.NetworkMetrics `json:"network"`
}

func buildSnapshot(src Sources) MetricsSnapshot {
	snap := MetricsSnapshot{}

	if src.Agents != nil {
		if len(src.Channels) > 0 {
			snap.ChannelMemberCounts = make(map[string]int, len(src.Channels))
			for _, c := range src.Channels {
				snap.ChannelMemberCounts[c] = len(src.Agents.ChannelMembers(c))
			}
		}
		if len(src.Roles) > 0 {
			snap.RoleMemberCounts = make(map[string]int, len(src.Roles))
			for _, role := range src.Roles {
				snap.RoleMemberCounts[role] = len(src.Agents.RoleMembers(role))
			}
		}
	}

	if src.Peering != nil {
		snap.Network = src.Peering.NetworkMetrics()
	}

	return snap
}
